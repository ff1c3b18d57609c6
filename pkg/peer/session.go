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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bitforge/gossamer/pkg/bitfield"
	"github.com/bitforge/gossamer/pkg/message"
)

// handshakeTimeout bounds how long the initial handshake and bitfield
// exchange may take before a Session gives up on a peer.
const handshakeTimeout = 5 * time.Second

// pollInterval is how often Serve polls the socket for a new frame while
// also checking for the keep-alive threshold.
const pollInterval = time.Second

// keepAliveInterval is the longest a Session goes without writing to its
// peer before Serve emits a keep-alive of its own.
const keepAliveInterval = 60 * time.Second

// maxPieceIndex bounds the piece index a have message may report. It is
// far beyond any real torrent's piece count; its only job is to keep a
// hostile peer from driving Bitfield.AddPiece into allocating hundreds
// of megabytes off one four-byte have message.
const maxPieceIndex = 1 << 20

// PeerError reports a failure tied to a specific peer Session: a bad
// handshake, a malformed message, or a write against a closed Session.
type PeerError struct {
	Op   string
	Peer Peer
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s: %s: %v", e.Peer, e.Op, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

// Session is a live connection to a single peer. It tracks the four
// choke/interest flags required by BEP 3 and dispatches incoming
// messages to callbacks registered with On.
//
// Per BEP 3, both ends start choked and not interested: ClientChoked
// and PeerChoked default true, ClientInterested and PeerInterested
// default false.
type Session struct {
	conn net.Conn
	open bool

	LocalID  [20]byte
	InfoHash [20]byte
	Peer     Peer

	ClientChoked     bool // whether the peer is choking the local client
	ClientInterested bool // whether the local client is interested in the peer
	PeerChoked       bool // whether the local client is choking the peer
	PeerInterested   bool // whether the peer is interested in the local client

	Bitfield *bitfield.Bitfield

	lastWrite time.Time

	mu        sync.Mutex
	callbacks map[string][]func(*message.Message)
}

// On registers fn to run whenever a message of the named kind arrives.
// event is one of the message.Kind names ("choke", "have", "piece", ...),
// "keepalive" for a zero-length frame, or "message", which fires for
// every frame other than a keep-alive. Unknown wire message kinds are
// routed to "unknown" and "message" only. No "handshake" event is
// emitted: the handshake completes inside Dial, before any callback can
// be registered.
func (s *Session) On(event string, fn func(*message.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callbacks == nil {
		s.callbacks = make(map[string][]func(*message.Message))
	}
	s.callbacks[event] = append(s.callbacks[event], fn)
}

func (s *Session) emit(event string, m *message.Message) {
	s.mu.Lock()
	fns := append([]func(*message.Message){}, s.callbacks[event]...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}

// Dial opens a TCP connection to peer, completes the handshake with
// localID/infoHash, and awaits the peer's initial bitfield.
func Dial(peer Peer, infoHash, localID [20]byte) (*Session, error) {
	conn, err := net.DialTimeout("tcp", peer.String(), handshakeTimeout)
	if err != nil {
		return nil, &PeerError{Op: "dial", Peer: peer, Err: err}
	}

	s := &Session{
		conn:         conn,
		open:         true,
		LocalID:      localID,
		InfoHash:     infoHash,
		Peer:         peer,
		ClientChoked: true,
		PeerChoked:   true,
		Bitfield:     &bitfield.Bitfield{},
	}

	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := s.awaitBitfield(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) handshake() error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	req := message.NewHandshake(s.InfoHash, s.LocalID)
	if _, err := s.conn.Write(req.Serialize()); err != nil {
		return &PeerError{Op: "handshake", Peer: s.Peer, Err: err}
	}

	res, err := message.ReadHandshake(s.conn)
	if err != nil {
		return &PeerError{Op: "handshake", Peer: s.Peer, Err: err}
	}

	if err := res.Verify(s.InfoHash); err != nil {
		return &PeerError{Op: "handshake", Peer: s.Peer, Err: err}
	}

	s.lastWrite = time.Now()
	return nil
}

func (s *Session) awaitBitfield() error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	m, err := message.Read(s.conn)
	if err != nil {
		return &PeerError{Op: "bitfield", Peer: s.Peer, Err: err}
	}
	if m == nil || m.Kind != message.Bitfield {
		return &PeerError{Op: "bitfield", Peer: s.Peer, Err: fmt.Errorf("expected bitfield message first")}
	}

	s.Bitfield = bitfield.New(m.Payload)
	return nil
}

// Serve reads frames off the wire until the connection closes or stop is
// closed, dispatching each to its registered callbacks and updating the
// choke/interest flags as the corresponding messages arrive. It also
// emits an outbound keep-alive whenever the connection has been idle for
// keepAliveInterval.
func (s *Session) Serve(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(pollInterval))
		m, err := message.Read(s.conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// nothing arrived during this poll window; only now is
				// it safe to say the connection has been idle.
				if time.Since(s.lastWrite) >= keepAliveInterval {
					if err := s.writeFrame((*message.Message)(nil)); err != nil {
						return err
					}
				}
				continue
			}
			return &PeerError{Op: "read", Peer: s.Peer, Err: err}
		}

		if m == nil {
			s.emit("keepalive", nil)
			continue
		}

		if err := s.handle(m); err != nil {
			return err
		}
	}
}

func (s *Session) handle(m *message.Message) error {
	switch m.Kind {
	case message.Choke:
		s.ClientChoked = true
	case message.Unchoke:
		s.ClientChoked = false
	case message.Interested:
		s.PeerInterested = true
	case message.NotInterested:
		s.PeerInterested = false
	case message.Have:
		index, err := message.ParseHave(m)
		if err != nil {
			return &PeerError{Op: "have", Peer: s.Peer, Err: err}
		}
		if index < 0 || index > maxPieceIndex {
			return &PeerError{Op: "have", Peer: s.Peer, Err: fmt.Errorf("piece index %d out of range", index)}
		}
		s.Bitfield.AddPiece(index)
	case message.Bitfield:
		s.Bitfield = bitfield.New(m.Payload)
	}

	if m.Kind == message.Unknown {
		s.emit("unknown", m)
	} else {
		s.emit(m.Kind.String(), m)
	}
	s.emit("message", m)
	return nil
}

func (s *Session) writeFrame(m *message.Message) error {
	if !s.open {
		return &PeerError{Op: "write", Peer: s.Peer, Err: fmt.Errorf("session closed")}
	}

	if _, err := s.conn.Write(m.Serialize()); err != nil {
		return &PeerError{Op: "write", Peer: s.Peer, Err: err}
	}
	s.lastWrite = time.Now()
	return nil
}

// Choke sends a choke message and updates PeerChoked (our choke of the peer).
func (s *Session) Choke() error {
	if err := s.writeFrame(message.NewChoke()); err != nil {
		return err
	}
	s.PeerChoked = true
	return nil
}

// Unchoke sends an unchoke message and updates PeerChoked (our choke of the peer).
func (s *Session) Unchoke() error {
	if err := s.writeFrame(message.NewUnchoke()); err != nil {
		return err
	}
	s.PeerChoked = false
	return nil
}

// Interested sends an interested message and updates ClientInterested.
func (s *Session) Interested() error {
	if err := s.writeFrame(message.NewInterested()); err != nil {
		return err
	}
	s.ClientInterested = true
	return nil
}

// NotInterested sends a not-interested message and updates ClientInterested.
func (s *Session) NotInterested() error {
	if err := s.writeFrame(message.NewNotInterested()); err != nil {
		return err
	}
	s.ClientInterested = false
	return nil
}

// Have sends a have message announcing a newly acquired piece.
func (s *Session) Have(index int) error {
	return s.writeFrame(message.NewHave(index))
}

// Request sends a request message for a block.
func (s *Session) Request(index, begin, length int) error {
	return s.writeFrame(message.NewRequest(index, begin, length))
}

// Cancel sends a cancel message for a previously requested block.
func (s *Session) Cancel(index, begin, length int) error {
	return s.writeFrame(message.NewCancel(index, begin, length))
}

// SendPiece sends a piece message carrying block at (index, begin).
func (s *Session) SendPiece(index, begin int, block []byte) error {
	return s.writeFrame(message.NewPiece(index, begin, block))
}

// Port sends a port message announcing the local client's DHT port.
func (s *Session) Port(port uint16) error {
	return s.writeFrame(message.NewPort(port))
}

// Close closes the underlying connection. A closed Session cannot be
// reused; calling any write method on it afterwards returns a PeerError.
func (s *Session) Close() error {
	s.open = false
	return s.conn.Close()
}
