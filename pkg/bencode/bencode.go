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

package bencode

import "fmt"

// BencodeError is returned by Decode and Encode when the input is
// malformed bencode or the value being encoded has no bencode
// representation. It wraps the lower-level scanner/decoder/encoder
// error that triggered it.
type BencodeError struct {
	Op  string // "decode" or "encode"
	Err error  // underlying cause
}

func (e *BencodeError) Error() string {
	return fmt.Sprintf("bencode: %s: %v", e.Op, e.Err)
}

func (e *BencodeError) Unwrap() error {
	return e.Err
}

// Decode decodes data into a self-describing value tree: int64 for
// integers, string for byte-strings, []any
// for lists, and map[string]any for dictionaries. Truncated input,
// an unterminated container, or an unrecognized leading byte all
// produce a *BencodeError.
func Decode(data []byte) (any, error) {
	var v any
	if err := Unmarshal(data, &v); err != nil {
		return nil, &BencodeError{Op: "decode", Err: err}
	}
	return v, nil
}

// Encode encodes a value tree (as produced by Decode, or hand-built
// from int64/string/[]any/map[string]any, or any struct tagged with
// `bencode:"..."`) into its canonical bencode form: dictionary keys,
// whether from a map or a struct, are always emitted in ascending
// lexicographic order of their raw bytes, so Encode(Decode(b)) is
// stable across encoders even when b's own key order was not sorted.
func Encode(v any) ([]byte, error) {
	s, err := Marshal(v)
	if err != nil {
		return nil, &BencodeError{Op: "encode", Err: err}
	}
	return []byte(s), nil
}
