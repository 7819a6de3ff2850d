package valmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/ipbus/uhal-go/pkg/wire"
)

// Handle errors.
var (
	// ErrUnresolvedValue is returned when a handle is read before the dispatch
	// that fills it has completed, or after that dispatch failed.
	ErrUnresolvedValue = errors.New("value not yet resolved by a successful dispatch")

	// ErrIndexOutOfRange is returned by ValVector.At for a bad index.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Word constrains handle element types to 32-bit bus words.
type Word interface {
	~uint32 | ~int32
}

// Mem is the shared backing cell of a result handle. Its byte region is the
// reply destination registered with the packer.
type Mem struct {
	valid atomic.Bool
	raw   []byte
	order binary.ByteOrder
}

// NewMem allocates a cell for words reply words decoded with order.
func NewMem(words int, order binary.ByteOrder) *Mem {
	if order == nil {
		order = binary.BigEndian
	}
	return &Mem{
		raw:   make([]byte, words*wire.WordSize),
		order: order,
	}
}

// Bytes returns the reply region. It must only be written before Validate.
func (m *Mem) Bytes() []byte {
	return m.raw
}

// Words returns the number of bus words the cell holds.
func (m *Mem) Words() int {
	return len(m.raw) / wire.WordSize
}

// Valid reports whether the cell has been filled by a successful dispatch.
func (m *Mem) Valid() bool {
	return m.valid.Load()
}

// Validate marks the cell valid. It returns false if it already was.
func (m *Mem) Validate() bool {
	return m.valid.CompareAndSwap(false, true)
}

func (m *Mem) word(i int) uint32 {
	return m.order.Uint32(m.raw[i*wire.WordSize:])
}

// ValWord is a deferred single-word result.
type ValWord[T Word] struct {
	mem  *Mem
	mask uint32
}

// NewWord wraps m as a scalar handle. A mask of 0xFFFFFFFF leaves the value
// untouched; any other mask selects those bits and shifts them down to bit 0.
func NewWord[T Word](m *Mem, mask uint32) ValWord[T] {
	return ValWord[T]{mem: m, mask: mask}
}

// Valid reports whether the value is available.
func (v ValWord[T]) Valid() bool {
	return v.mem != nil && v.mem.Valid()
}

// Mask returns the mask applied on retrieval.
func (v ValWord[T]) Mask() uint32 {
	return v.mask
}

// Value returns the masked value.
func (v ValWord[T]) Value() (T, error) {
	if !v.Valid() {
		return 0, ErrUnresolvedValue
	}
	return T(ApplyMask(v.mem.word(0), v.mask)), nil
}

// ValVector is a deferred block result.
type ValVector[T Word] struct {
	mem *Mem
}

// NewVector wraps m as a block handle.
func NewVector[T Word](m *Mem) ValVector[T] {
	return ValVector[T]{mem: m}
}

// Valid reports whether the values are available.
func (v ValVector[T]) Valid() bool {
	return v.mem != nil && v.mem.Valid()
}

// Size returns the number of words the handle will hold.
func (v ValVector[T]) Size() int {
	if v.mem == nil {
		return 0
	}
	return v.mem.Words()
}

// Value returns a copy of the block.
func (v ValVector[T]) Value() ([]T, error) {
	if !v.Valid() {
		return nil, ErrUnresolvedValue
	}
	out := make([]T, v.mem.Words())
	for i := range out {
		out[i] = T(v.mem.word(i))
	}
	return out, nil
}

// At returns the i-th word of the block.
func (v ValVector[T]) At(i int) (T, error) {
	if !v.Valid() {
		return 0, ErrUnresolvedValue
	}
	if i < 0 || i >= v.mem.Words() {
		return 0, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, v.mem.Words())
	}
	return T(v.mem.word(i)), nil
}

// ApplyMask selects the bits of value under mask and shifts them down so the
// lowest set bit of mask lands on bit 0.
func ApplyMask(value, mask uint32) uint32 {
	if mask == 0 {
		return 0
	}
	return (value & mask) >> MaskShift(mask)
}

// MaskShift returns the position of the lowest set bit of mask.
func MaskShift(mask uint32) uint {
	if mask == 0 {
		return 0
	}
	return uint(bits.TrailingZeros32(mask))
}
