// Copyright 2026 The dogos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bitmap provides a flat, fixed-size bitmap. It is used for small
// bookkeeping sets such as the frames of a page-table pool; the frame
// allocator itself uses the hierarchical tree in package pmm.
package bitmap

import (
	"errors"
	"fmt"

	"dogos.dev/dogos/pkg/bits"
)

// ErrNoUnsetBits is returned by FirstZero when every bit from the requested
// start is set.
var ErrNoUnsetBits = errors.New("bitmap has no unset bits")

// ErrNoSetBits is returned by FirstOne when no bit from the requested start
// is set.
var ErrNoSetBits = errors.New("bitmap has no set bits")

// Bitmap is a set of the integers [0, Size()).
type Bitmap struct {
	words []uint64
	size  uint32
	ones  uint32
}

// New returns an empty Bitmap of size bits.
func New(size uint32) Bitmap {
	return Bitmap{words: make([]uint64, (size+63)/64), size: size}
}

// Size returns the number of addressable bits in the bitmap.
func (b *Bitmap) Size() uint32 {
	return b.size
}

// GetNumOnes returns the number of set bits.
func (b *Bitmap) GetNumOnes() uint32 {
	return b.ones
}

// IsSet returns whether bit i is set. Bits outside the bitmap read as unset.
func (b *Bitmap) IsSet(i uint32) bool {
	return i < b.size && bits.IsAnyOn64(b.words[i/64], bits.MaskOf64(int(i%64)))
}

// FirstZero returns the first unset bit in [start, Size()).
func (b *Bitmap) FirstZero(start uint32) (uint32, error) {
	if i, ok := b.scan(start, bits.FirstZero64); ok {
		return i, nil
	}
	return 0, ErrNoUnsetBits
}

// FirstOne returns the first set bit in [start, Size()).
func (b *Bitmap) FirstOne(start uint32) (uint32, error) {
	if i, ok := b.scan(start, bits.FirstOne64); ok {
		return i, nil
	}
	return 0, ErrNoSetBits
}

// scan applies find to each word from start on and returns the first hit
// below Size().
func (b *Bitmap) scan(start uint32, find func(w uint64, from int) int) (uint32, bool) {
	for w := start / 64; start < b.size && int(w) < len(b.words); w++ {
		from := 0
		if w == start/64 {
			from = int(start % 64)
		}
		if j := find(b.words[w], from); j < 64 {
			i := w*64 + uint32(j)
			return i, i < b.size
		}
	}
	return 0, false
}

// Add sets bit i. It panics if i is outside the bitmap.
func (b *Bitmap) Add(i uint32) {
	b.set(i, true)
}

// Remove clears bit i. It panics if i is outside the bitmap.
func (b *Bitmap) Remove(i uint32) {
	b.set(i, false)
}

func (b *Bitmap) set(i uint32, on bool) {
	if i >= b.size {
		panic(fmt.Sprintf("bitmap: bit %d out of range [0, %d)", i, b.size))
	}
	if b.IsSet(i) == on {
		return
	}
	b.words[i/64] ^= bits.MaskOf64(int(i % 64))
	if on {
		b.ones++
	} else {
		b.ones--
	}
}

// ToSlice returns the set bits in increasing order. For example, a bitmap of
// [0, 1, 0, 1] gives [1, 3].
func (b *Bitmap) ToSlice() []uint32 {
	s := make([]uint32, 0, b.ones)
	for w, word := range b.words {
		bits.ForEachSetBit64(word, func(j int) {
			s = append(s, uint32(w*64+j))
		})
	}
	return s
}
