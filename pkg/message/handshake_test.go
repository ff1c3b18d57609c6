package message_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitforge/gossamer/pkg/message"
)

func TestHandshakeSerializeReadRoundtrip(t *testing.T) {
	hash := [20]byte{1, 2, 3}
	id := [20]byte{4, 5, 6}

	in := message.NewHandshake(hash, id)
	buf := bytes.NewBuffer(in.Serialize())

	out, err := message.ReadHandshake(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.NoError(t, out.Verify(hash))
}

func TestHandshakeVerifyRejectsMismatch(t *testing.T) {
	in := message.NewHandshake([20]byte{1}, [20]byte{2})
	err := in.Verify([20]byte{9})
	require.Error(t, err)
}
