package bitfield_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitforge/gossamer/pkg/bitfield"
)

func TestHasIsMSBFirst(t *testing.T) {
	// bit 0 is bit 7 (MSB) of byte 0
	b := bitfield.New([]byte{0b1000_0000, 0b0000_0001})

	assert.True(t, b.Has(0))
	assert.False(t, b.Has(1))
	assert.True(t, b.Has(15))
	assert.False(t, b.Has(14))
}

func TestHasOutOfRangeIsFalse(t *testing.T) {
	b := bitfield.New(nil)
	assert.False(t, b.Has(0))
	assert.False(t, b.Has(100))
}

func TestAddPieceGrows(t *testing.T) {
	var b bitfield.Bitfield

	b.AddPiece(17)
	assert.True(t, b.Has(17))
	assert.Len(t, b.Bytes(), 3)

	// growing never shrinks or clobbers earlier bits
	b.AddPiece(2)
	assert.True(t, b.Has(2))
	assert.True(t, b.Has(17))
}

func TestRemovePiece(t *testing.T) {
	b := bitfield.New([]byte{0xFF})
	b.RemovePiece(3)

	assert.False(t, b.Has(3))
	assert.True(t, b.Has(0))

	// no-op when out of range
	b.RemovePiece(100)
}

func TestPiecesEnumeratesSetBits(t *testing.T) {
	b := bitfield.New([]byte{0b1010_0000, 0b0000_0001})
	assert.Equal(t, []int{0, 2, 15}, b.Pieces())
}
