// Copyright © 2021 Rak Laptudirm <raklaptudirm@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scanner

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/bitforge/gossamer/pkg/bencode/token"
)

// New creates a new Scanner over data.
func New(data []byte) *Scanner {
	return &Scanner{Data: data}
}

// Valid reports whether data is a single well-formed bencode value with
// nothing trailing it.
func Valid(data []byte) bool {
	return New(data).Valid() == nil
}

// Scanner tokenizes bencode data one top-level value at a time, checking
// syntax as it goes and appending every token it emits to Tokens.
type Scanner struct {
	Data []byte

	ch       rune // byte under the cursor
	offset   int  // start of the token currently being scanned
	rdOffset int  // read cursor

	Tokens []token.Token
}

const eof = -1

// SyntaxError reports a malformed-bencode position and reason.
type SyntaxError struct {
	msg    string
	Offset int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d: %s", e.Offset, e.msg)
}

// Next scans one top-level bencode value. Unlike Valid, it does not
// object to trailing bytes after that value.
func (s *Scanner) Next() error {
	return s.scanValue()
}

// Valid scans one top-level value via Next and additionally requires
// that the scanner has consumed all of its input.
func (s *Scanner) Valid() error {
	if err := s.Next(); err != nil {
		return err
	}
	if !s.atEnd() {
		return s.runeError("after top-level value")
	}
	return nil
}

// scanValue dispatches on the next byte to the scanner for the matching
// container or scalar kind.
func (s *Scanner) scanValue() error {
	switch r := s.peek(); {
	case r == 'd':
		return s.scanDict()
	case r == 'l':
		return s.scanList()
	case r == 'i':
		return s.scanInt()
	case unicode.IsDigit(r):
		return s.scanStr()
	case r == eof:
		return s.error("unexpected end of input")
	default:
		return s.error("looking for beginning of value")
	}
}

// scanContainer scans a bencode container already identified by its
// opening byte (open): consume that byte, emit its start token, call
// scanMember once per member until 'e' or eof is reached, then consume
// and emit the closing 'e'. scanDict and scanList both reduce to this,
// differing only in what counts as one member.
func (s *Scanner) scanContainer(open byte, name string, start token.Type, scanMember func() error) error {
	if !s.consume(rune(open)) {
		return s.error("looking for beginning of " + name)
	}

	s.emit(start)

	for r := s.peek(); r != 'e' && r != eof; r = s.peek() {
		if err := scanMember(); err != nil {
			return err
		}
	}

	if !s.consume('e') {
		// the loop above only exits on 'e' or eof, so this is eof
		return s.error("unexpected end of input while scanning " + name)
	}

	s.emit(token.END)
	return nil
}

// scanDict scans a bencode dictionary: d <string key> <value>... e.
//
// Dictionary key order is not checked here: the canonical-ordering
// guarantee is an encoder property (sorted on output), not a decoder
// requirement. A decoder that rejected out-of-order input could not
// round-trip torrents produced by non-canonical bencoders in the wild.
func (s *Scanner) scanDict() error {
	return s.scanContainer('d', "dictionary", token.DICT, func() error {
		if err := s.scanStr(); err != nil {
			return err
		}
		return s.scanValue()
	})
}

// scanList scans a bencode list: l <value>... e.
func (s *Scanner) scanList() error {
	return s.scanContainer('l', "list", token.LIST, s.scanValue)
}

// scanInt scans a bencode integer: i <number> e.
func (s *Scanner) scanInt() error {
	if !s.consume('i') {
		return s.error("looking for beginning of integer")
	}

	if err := s.scanNumber('e'); err != nil {
		return err
	}

	s.emit(token.NUMBER)
	return nil
}

// scanStr scans a bencode byte-string: <length>:<bytes>.
func (s *Scanner) scanStr() error {
	if !unicode.IsDigit(s.peek()) {
		return s.error("looking for beginning of string")
	}

	if err := s.scanNumber(':'); err != nil {
		return err
	}

	lengthDigits := s.literal()
	lengthDigits = lengthDigits[:len(lengthDigits)-1] // drop trailing ':'

	length, err := strconv.Atoi(string(lengthDigits))
	if err != nil {
		return err
	}

	if len(s.Data)-s.rdOffset < length {
		s.rdOffset = len(s.Data)
		return s.error("unexpected end of input while scanning string")
	}
	s.rdOffset += length

	s.emit(token.STRING)
	return nil
}

// scanNumber scans the digits making up a string length or an integer
// value, stopping at delimiter delim. A proper number is 0, or an optional
// '-' followed by a non-zero digit and more digits.
func (s *Scanner) scanNumber(delim rune) error {
	negative := s.consume('-')

	switch r := s.peek(); {
	case r == delim:
		return s.error("looking for a number")
	case !unicode.IsDigit(r):
		return s.runeError("in number literal")
	case r == '0':
		if negative {
			return s.error("leading 0 in negative number literal")
		}
		s.next()
		if !s.consume(delim) {
			if unicode.IsDigit(s.peek()) {
				return s.error("leading zero in number")
			}
			return s.runeError("in number literal")
		}
		return nil
	}

	for r := s.peek(); r != delim && r != eof; r = s.peek() {
		if !unicode.IsDigit(r) {
			return s.runeError("in number literal")
		}
		s.next()
	}

	if !s.consume(delim) {
		// the loop above only exits on delim or eof, so this is eof
		return s.error("unexpected end of input while scanning number")
	}
	return nil
}

// literal returns the raw bytes scanned since the last emit/reset.
func (s *Scanner) literal() []byte {
	return s.Data[s.offset:s.rdOffset]
}

func (s *Scanner) reset() {
	s.offset = s.rdOffset
}

// consume advances past r if it is the next byte, reporting whether it did.
func (s *Scanner) consume(r rune) bool {
	if s.peek() != r {
		return false
	}
	s.next()
	return true
}

func (s *Scanner) next() {
	s.ch = s.peek()
	if s.ch != eof {
		s.rdOffset++
	}
}

// peek returns the next unread byte, or eof past the end of Data.
func (s *Scanner) peek() rune {
	if s.atEnd() {
		return eof
	}
	return rune(s.Data[s.rdOffset])
}

func (s *Scanner) atEnd() bool {
	return s.rdOffset >= len(s.Data)
}

func (s *Scanner) runeError(msg string) error {
	return s.error(fmt.Sprintf("invalid character %q %s", s.peek(), msg))
}

func (s *Scanner) error(msg string) error {
	return &SyntaxError{msg, s.rdOffset}
}

// emit appends a token of type t spanning the bytes scanned since the
// last emit, then resets the scanner for the next token.
func (s *Scanner) emit(t token.Type) {
	lit := string(s.literal())
	s.Tokens = append(s.Tokens, token.Token{
		Type:    t,
		Literal: lit,
		Value:   stripFraming(t, lit),
		Offset:  s.offset,
	})
	s.reset()
}

// stripFraming returns lit with its bencode delimiters removed: the
// "<len>:" prefix of a STRING, or the surrounding "i"/"e" of a NUMBER.
// Every other token type carries its literal unchanged.
func stripFraming(t token.Type, lit string) string {
	switch t {
	case token.STRING:
		if i := strings.IndexByte(lit, ':'); i >= 0 {
			return lit[i+1:]
		}
		return ""
	case token.NUMBER:
		return lit[1 : len(lit)-1]
	default:
		return lit
	}
}
