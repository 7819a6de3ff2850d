package valmem

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipbus/uhal-go/pkg/wire"
)

func fill(m *Mem, words ...uint32) {
	for i, w := range words {
		binary.BigEndian.PutUint32(m.Bytes()[i*wire.WordSize:], w)
	}
}

func TestValWordUnresolvedBeforeValidate(t *testing.T) {
	m := NewMem(1, binary.BigEndian)
	w := NewWord[uint32](m, 0xFFFFFFFF)

	assert.False(t, w.Valid())
	_, err := w.Value()
	assert.ErrorIs(t, err, ErrUnresolvedValue)

	fill(m, 0xCAFEBABE)
	require.True(t, m.Validate())

	for range 3 {
		v, err := w.Value()
		require.NoError(t, err)
		assert.Equal(t, uint32(0xCAFEBABE), v)
	}
}

func TestMemSizedInBusWords(t *testing.T) {
	m := NewMem(3, nil)
	assert.Len(t, m.Bytes(), 3*wire.WordSize)
	assert.Equal(t, 3, m.Words())
}

func TestMemValidateOnce(t *testing.T) {
	m := NewMem(1, nil)
	assert.True(t, m.Validate())
	assert.False(t, m.Validate())
	assert.True(t, m.Valid())
}

func TestValWordMask(t *testing.T) {
	m := NewMem(1, binary.BigEndian)
	fill(m, 0x12345678)
	m.Validate()

	tests := []struct {
		mask uint32
		want uint32
	}{
		{0xFFFFFFFF, 0x12345678},
		{0x0000FF00, 0x56},
		{0xF0000000, 0x1},
		{0x00000001, 0x0},
		{0x0, 0x0},
	}
	for _, tt := range tests {
		v, err := NewWord[uint32](m, tt.mask).Value()
		require.NoError(t, err)
		assert.Equalf(t, tt.want, v, "mask 0x%08x", tt.mask)
	}
}

func TestValWordSigned(t *testing.T) {
	m := NewMem(1, binary.LittleEndian)
	binary.LittleEndian.PutUint32(m.Bytes(), 0xFFFFFFFE)
	m.Validate()

	v, err := NewWord[int32](m, 0xFFFFFFFF).Value()
	require.NoError(t, err)
	assert.Equal(t, int32(-2), v)
}

func TestValVector(t *testing.T) {
	m := NewMem(3, binary.BigEndian)
	vec := NewVector[int32](m)
	assert.Equal(t, 3, vec.Size())

	_, err := vec.Value()
	assert.ErrorIs(t, err, ErrUnresolvedValue)
	_, err = vec.At(0)
	assert.ErrorIs(t, err, ErrUnresolvedValue)

	fill(m, 1, 0xFFFFFFFF, 3)
	m.Validate()

	got, err := vec.Value()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -1, 3}, got)

	// Value hands out a copy.
	got[0] = 42
	again, _ := vec.Value()
	assert.Equal(t, int32(1), again[0])

	_, err = vec.At(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestZeroHandle(t *testing.T) {
	var w ValWord[uint32]
	assert.False(t, w.Valid())
	_, err := w.Value()
	assert.ErrorIs(t, err, ErrUnresolvedValue)

	var v ValVector[uint32]
	assert.Equal(t, 0, v.Size())
}

func TestMaskShift(t *testing.T) {
	assert.Equal(t, uint(0), MaskShift(0x1))
	assert.Equal(t, uint(8), MaskShift(0xFF00))
	assert.Equal(t, uint(31), MaskShift(0x80000000))
	assert.Equal(t, uint32(0x3), ApplyMask(0xC0, 0xC0))
}
