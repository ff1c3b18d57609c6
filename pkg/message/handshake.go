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

package message

import (
	"fmt"
	"io"
)

// ProtocolName is the wire protocol name this client advertises and
// requires of peers during the handshake.
const ProtocolName = "BitTorrent protocol"

// handshakeTailLen is the length, in bytes, of everything in a
// handshake frame after the protocol name: 8 reserved bytes, a 20-byte
// info hash, and a 20-byte peer identifier.
const handshakeTailLen = 8 + 20 + 20

// Handshake is the fixed frame exchanged before any length-prefixed
// peer message: [len(Protocol)][Protocol][Reserved][InfoHash][Identifier].
type Handshake struct {
	Protocol   string
	Reserved   [8]byte
	InfoHash   [20]byte
	Identifier [20]byte
}

// NewHandshake builds a Handshake for hash under the standard protocol
// name, advertising identifier name and no reserved extension bits.
func NewHandshake(hash, name [20]byte) *Handshake {
	return &Handshake{
		Protocol:   ProtocolName,
		InfoHash:   hash,
		Identifier: name,
	}
}

// Serialize encodes h into its wire form.
func (h *Handshake) Serialize() []byte {
	out := make([]byte, 0, 1+len(h.Protocol)+handshakeTailLen)
	out = append(out, byte(len(h.Protocol)))
	out = append(out, h.Protocol...)
	out = append(out, h.Reserved[:]...)
	out = append(out, h.InfoHash[:]...)
	out = append(out, h.Identifier[:]...)
	return out
}

// Verify reports an error if h does not advertise the expected protocol
// name and info hash.
func (h *Handshake) Verify(hash [20]byte) error {
	if h.Protocol != ProtocolName {
		return fmt.Errorf("handshake: unexpected protocol %q", h.Protocol)
	}
	if h.InfoHash != hash {
		return fmt.Errorf("handshake: info hash mismatch %x", h.InfoHash)
	}
	return nil
}

// ReadHandshake reads and decodes one Handshake frame from r.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	var nameLen [1]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return nil, err
	}

	protocol := make([]byte, nameLen[0])
	if _, err := io.ReadFull(r, protocol); err != nil {
		return nil, err
	}

	// reserved, info hash, and identifier are fixed-length and adjacent,
	// so one read covers all three.
	var tail [handshakeTailLen]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return nil, err
	}

	h := &Handshake{Protocol: string(protocol)}
	copy(h.Reserved[:], tail[0:8])
	copy(h.InfoHash[:], tail[8:28])
	copy(h.Identifier[:], tail[28:48])
	return h, nil
}
