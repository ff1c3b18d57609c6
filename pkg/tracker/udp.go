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

package tracker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/bitforge/gossamer/pkg/peer"
)

// protocolMagic is the UDP tracker protocol's fixed connect-request
// constant, per BEP 15.
const protocolMagic = 0x41727101980

const (
	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
	actionError    uint32 = 3
)

var eventCode = map[Event]uint32{
	EventNone:      0,
	EventCompleted: 1,
	EventStarted:   2,
	EventStopped:   3,
}

// udpTimeout bounds how long a single connect or announce round trip
// waits for a datagram before failing.
const udpTimeout = 5 * time.Second

// announceUDP performs the two-step UDP tracker protocol: a connect
// exchange to obtain a connection-id, then an announce carrying it.
//
// The connect and announce round trips each block on a single UDP
// read with its own deadline; ctx is honored by racing it against
// that read via cancelOnContext, which yanks the deadline to "now"
// the moment ctx is done, unblocking whichever read is in flight.
func (c *Client) announceUDP(ctx context.Context, u *url.URL, req Request) (*Response, error) {
	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, &TrackerError{Op: "announce_udp", Err: err}
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, &TrackerError{Op: "announce_udp", Err: err}
	}
	defer conn.Close()

	stopWatching := cancelOnContext(ctx, conn)
	defer stopWatching()

	connectionID, err := udpConnect(conn)
	if err != nil {
		return nil, ctxError(ctx, err)
	}

	resp, err := udpAnnounce(conn, connectionID, c.PeerID, req)
	return resp, ctxError(ctx, err)
}

// cancelOnContext forces conn's pending read/write to unblock as soon
// as ctx is canceled, by pulling its deadline to the present. Call the
// returned stop func once the round trip is done so the watcher goroutine
// doesn't leak past a successful exchange.
func cancelOnContext(ctx context.Context, conn *net.UDPConn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		case <-done:
		}
	}()
	return func() { close(done) }
}

// ctxError reports ctx's cancellation reason in place of the raw timeout
// error that cancelOnContext's deadline yank produces, when ctx is what
// actually ended the round trip.
func ctxError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &TrackerError{Op: "announce_udp", Err: ctx.Err()}
	}
	return err
}

func udpConnect(conn *net.UDPConn) (uint64, error) {
	transactionID, err := randomUint32()
	if err != nil {
		return 0, &TrackerError{Op: "connect", Err: err}
	}

	packet := make([]byte, 16)
	binary.BigEndian.PutUint64(packet[0:8], protocolMagic)
	binary.BigEndian.PutUint32(packet[8:12], actionConnect)
	binary.BigEndian.PutUint32(packet[12:16], transactionID)

	conn.SetDeadline(time.Now().Add(udpTimeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(packet); err != nil {
		return 0, &TrackerError{Op: "connect", Err: err}
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, &TrackerError{Op: "connect", Err: fmt.Errorf("receiving timed out: %w", err)}
	}
	if n < 16 {
		return 0, &TrackerError{Op: "connect", Err: fmt.Errorf("short connect response: %d bytes", n)}
	}

	if action := binary.BigEndian.Uint32(resp[0:4]); action != actionConnect {
		return 0, &TrackerError{Op: "connect", Err: fmt.Errorf("unexpected action %d", action)}
	}
	if got := binary.BigEndian.Uint32(resp[4:8]); got != transactionID {
		return 0, &TrackerError{Op: "connect", Err: fmt.Errorf("transaction id mismatch")}
	}

	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func udpAnnounce(conn *net.UDPConn, connectionID uint64, peerID [20]byte, req Request) (*Response, error) {
	transactionID, err := randomUint32()
	if err != nil {
		return nil, &TrackerError{Op: "announce_udp", Err: err}
	}

	key, err := randomUint32()
	if err != nil {
		return nil, &TrackerError{Op: "announce_udp", Err: err}
	}
	if req.Key != 0 {
		key = req.Key
	}

	numWant := int32(-1)
	if req.NumWant > 0 {
		numWant = int32(req.NumWant)
	}

	var ip uint32
	if parsed := net.ParseIP(req.IP).To4(); parsed != nil {
		ip = binary.BigEndian.Uint32(parsed)
	}

	packet := make([]byte, 98)
	binary.BigEndian.PutUint64(packet[0:8], connectionID)
	binary.BigEndian.PutUint32(packet[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(packet[12:16], transactionID)
	copy(packet[16:36], req.InfoHash[:])
	copy(packet[36:56], peerID[:])
	binary.BigEndian.PutUint64(packet[56:64], uint64(req.Downloaded))
	binary.BigEndian.PutUint64(packet[64:72], uint64(req.Left))
	binary.BigEndian.PutUint64(packet[72:80], uint64(req.Uploaded))
	binary.BigEndian.PutUint32(packet[80:84], eventCode[req.Event])
	binary.BigEndian.PutUint32(packet[84:88], ip)
	binary.BigEndian.PutUint32(packet[88:92], key)
	binary.BigEndian.PutUint32(packet[92:96], uint32(numWant))
	binary.BigEndian.PutUint16(packet[96:98], req.Port)

	conn.SetDeadline(time.Now().Add(udpTimeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(packet); err != nil {
		return nil, &TrackerError{Op: "announce_udp", Err: err}
	}

	resp := make([]byte, 1024)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, &TrackerError{Op: "announce_udp", Err: fmt.Errorf("receiving timed out: %w", err)}
	}
	if n < 8 {
		return nil, &TrackerError{Op: "announce_udp", Err: fmt.Errorf("short announce response: %d bytes", n)}
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	if action == actionError {
		return nil, &TrackerError{Op: "announce_udp", Err: fmt.Errorf("%s", string(resp[8:n]))}
	}
	if action != actionAnnounce {
		return nil, &TrackerError{Op: "announce_udp", Err: fmt.Errorf("unexpected action %d", action)}
	}
	if got := binary.BigEndian.Uint32(resp[4:8]); got != transactionID {
		return nil, &TrackerError{Op: "announce_udp", Err: fmt.Errorf("transaction id mismatch")}
	}
	if n < 20 {
		return nil, &TrackerError{Op: "announce_udp", Err: fmt.Errorf("short announce response: %d bytes", n)}
	}

	peerBytes := resp[20:n]
	if len(peerBytes)%6 != 0 {
		return nil, &TrackerError{Op: "announce_udp", Err: fmt.Errorf("peer list length %d is not a multiple of 6", len(peerBytes))}
	}

	compact, err := peer.Unmarshal(peerBytes)
	if err != nil {
		return nil, &TrackerError{Op: "announce_udp", Err: err}
	}

	peers := make([]Peer, len(compact))
	for i, p := range compact {
		peers[i] = Peer{IP: p.IP, Port: p.Port}
	}

	return &Response{
		Peers:    peers,
		Interval: int(binary.BigEndian.Uint32(resp[8:12])),
		Leechers: int(binary.BigEndian.Uint32(resp[12:16])),
		Seeders:  int(binary.BigEndian.Uint32(resp[16:20])),
	}, nil
}

func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
