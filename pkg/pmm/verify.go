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

package pmm

import (
	"fmt"

	"dogos.dev/dogos/pkg/bits"
)

// Verify checks every word of the tree: a bit above level 1 must be set iff
// the word below it is full, every section past the backed ones must be
// marked used, and the free count must match the level 1 words.
func (t *Tree) Verify() error {
	var free uint64
	l5 := t.read(l5Offset)
	for g := 0; g < 64; g++ {
		l4 := t.read(WordOffset(4, Index{L5: g}))
		for b := 0; b < 64; b++ {
			s := g*64 + b
			if s >= t.sections {
				if !bits.IsAnyOn64(l4, bits.MaskOf64(b)) {
					return fmt.Errorf("section %d is not backed but its level 4 bit is clear", s)
				}
				continue
			}
			full, n, err := t.verifySection(Index{L5: g, L4: b})
			if err != nil {
				return err
			}
			free += n
			if err := checkBit(4, Index{L5: g, L4: b}, l4, b, full); err != nil {
				return err
			}
		}
		if err := checkBit(5, Index{L5: g}, l5, g, l4 == bits.Full64); err != nil {
			return err
		}
	}
	if free != t.free {
		return fmt.Errorf("free count is %d, level 1 words have %d clear bits", t.free, free)
	}
	return nil
}

// verifySection checks one backed section and returns whether it is full
// and how many frames in it are free.
func (t *Tree) verifySection(idx Index) (full bool, free uint64, err error) {
	l3 := t.read(WordOffset(3, idx))
	for i3 := 0; i3 < 64; i3++ {
		idx.L3 = i3
		l2 := t.read(WordOffset(2, idx))
		for i2 := 0; i2 < 64; i2++ {
			idx.L2 = i2
			l1 := t.read(WordOffset(1, idx))
			free += uint64(64 - bits.OnesCount64(l1))
			if err := checkBit(2, idx, l2, i2, l1 == bits.Full64); err != nil {
				return false, 0, err
			}
		}
		if err := checkBit(3, idx, l3, i3, l2 == bits.Full64); err != nil {
			return false, 0, err
		}
	}
	return l3 == bits.Full64, free, nil
}

func checkBit(level int, idx Index, w uint64, b int, childFull bool) error {
	if set := bits.IsAnyOn64(w, bits.MaskOf64(b)); set != childFull {
		return fmt.Errorf("level %d bit %d under %v is %t but the word below is full=%t", level, b, idx, set, childFull)
	}
	return nil
}
