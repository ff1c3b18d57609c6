package peer

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServeEmitsKeepAliveOnlyAfterIdleTimeout exercises the idle-timer
// scenario directly against unexported state: lastWrite is backdated
// past keepAliveInterval so the test doesn't have to actually wait 60s+
// for Serve to notice the connection has gone quiet. Serve must emit
// exactly one zero-length keep-alive frame, and only once the read
// poll has timed out with nothing inbound — not unconditionally.
func TestServeEmitsKeepAliveOnlyAfterIdleTimeout(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	s := &Session{
		conn:      clientConn,
		open:      true,
		lastWrite: time.Now().Add(-(keepAliveInterval + time.Second)),
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.Serve(stop) }()
	defer func() {
		close(stop)
		<-done
	}()

	require.NoError(t, peerConn.SetReadDeadline(time.Now().Add(3*pollInterval)))
	frame := make([]byte, 4)
	_, err := io.ReadFull(peerConn, frame)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, frame)

	// Writing the keep-alive resets lastWrite, so the next poll window
	// should stay quiet rather than firing again immediately.
	require.NoError(t, peerConn.SetReadDeadline(time.Now().Add(2*pollInterval)))
	_, err = peerConn.Read(frame)
	ne, ok := err.(net.Error)
	assert.True(t, ok && ne.Timeout(), "expected a second read to time out, got %v", err)
}
