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

package peer

import (
	"encoding/binary"
	"fmt"
	"net"
)

// compactPeerLen is the size in bytes of one BEP 23 compact peer
// record: a 4-byte IPv4 address followed by a 2-byte big-endian port.
const compactPeerLen = 6

// Peer identifies a reachable peer by address.
type Peer struct {
	IP   net.IP
	Port uint16
}

// String formats p as host:port.
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), fmt.Sprint(p.Port))
}

// Unmarshal decodes a compact peer list: consecutive compactPeerLen-byte
// records, as returned by both HTTP and UDP trackers.
func Unmarshal(buffer []byte) ([]Peer, error) {
	if len(buffer)%compactPeerLen != 0 {
		return nil, fmt.Errorf("peer: compact list length %d is not a multiple of %d", len(buffer), compactPeerLen)
	}

	peers := make([]Peer, 0, len(buffer)/compactPeerLen)
	for offset := 0; offset < len(buffer); offset += compactPeerLen {
		record := buffer[offset : offset+compactPeerLen]
		peers = append(peers, Peer{
			IP:   net.IP(record[:4]),
			Port: binary.BigEndian.Uint16(record[4:6]),
		})
	}
	return peers, nil
}

// Marshal encodes peers back into compact form, the inverse of
// Unmarshal. Addresses that are not IPv4 are skipped rather than
// erroring, since the compact encoding has no room for anything else.
func Marshal(peers []Peer) []byte {
	out := make([]byte, 0, len(peers)*compactPeerLen)
	for _, p := range peers {
		v4 := p.IP.To4()
		if v4 == nil {
			continue
		}

		var record [compactPeerLen]byte
		copy(record[:4], v4)
		binary.BigEndian.PutUint16(record[4:6], p.Port)
		out = append(out, record[:]...)
	}
	return out
}
