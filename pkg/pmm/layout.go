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

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
)

// Span of one bit at each level.
const (
	l1Span = hostarch.PageSize
	l2Span = 64 * l1Span // 256 KiB
	l3Span = 64 * l2Span // 16 MiB
	l4Span = 64 * l3Span // 1 GiB, one section
	l5Span = 64 * l4Span // 64 GiB, one group

	// Ceiling is the first address past the trackable range.
	Ceiling = 64 * l5Span

	// FramesPerSection is the number of frames tracked by one section.
	FramesPerSection = l4Span / l1Span
)

// Layout of a section. Every section is self-contained: its level 3 word,
// then 64 level 2 slots each made of the level 2 word followed by its 64
// level 1 words. The level 5 word and the 64 level 4 words live in the
// unused tail of section 0.
const (
	sectionBytes = bootinfo.SectionBytes
	l2SlotBytes  = 8 + 64*8
	l2Base       = 8
	l5Offset     = 0x8800
	l4Offset     = l5Offset + 8
)

// Index is the decomposition of a physical address into its bit index at
// every level of the tree.
type Index struct {
	L5, L4, L3, L2, L1 int
}

// Decompose splits addr into its tree indices. ok is false when addr is at
// or above Ceiling.
func Decompose(addr hostarch.Addr) (idx Index, ok bool) {
	l5 := uint64(addr) / l5Span
	if l5 >= 64 {
		return Index{}, false
	}
	return Index{
		L5: int(l5),
		L4: int((uint64(addr) % l5Span) / l4Span),
		L3: int((uint64(addr) % l4Span) / l3Span),
		L2: int((uint64(addr) % l3Span) / l2Span),
		L1: int((uint64(addr) % l2Span) / l1Span),
	}, true
}

// Addr is the inverse of Decompose.
func (i Index) Addr() hostarch.Addr {
	i.check()
	return hostarch.Addr(uint64(i.L5)*l5Span + uint64(i.L4)*l4Span + uint64(i.L3)*l3Span + uint64(i.L2)*l2Span + uint64(i.L1)*l1Span)
}

// Section returns the number of the section holding i.
func (i Index) Section() int {
	return i.L5*64 + i.L4
}

// String implements fmt.Stringer.String.
func (i Index) String() string {
	return fmt.Sprintf("[%d %d %d %d %d]", i.L5, i.L4, i.L3, i.L2, i.L1)
}

// check panics if any index is outside of its word. An index out of range
// means address arithmetic went wrong upstream; writing anyway would
// corrupt an unrelated part of the tree.
func (i Index) check() {
	for level, v := range [...]int{i.L1, i.L2, i.L3, i.L4, i.L5} {
		if v < 0 || v >= 64 {
			panic(fmt.Sprintf("pmm: level %d index %d out of range in %v", level+1, v, i))
		}
	}
}

// WordOffset returns the offset, from the start of the bitmap window, of
// the word at level that holds the bit for i. Indices below level are
// ignored.
func WordOffset(level int, i Index) uint64 {
	i.check()
	switch level {
	case 5:
		return l5Offset
	case 4:
		return l4Offset + 8*uint64(i.L5)
	case 3:
		return uint64(i.Section()) * sectionBytes
	case 2:
		return uint64(i.Section())*sectionBytes + l2Base + uint64(i.L3)*l2SlotBytes
	case 1:
		return uint64(i.Section())*sectionBytes + l2Base + uint64(i.L3)*l2SlotBytes + 8 + uint64(i.L2)*8
	default:
		panic(fmt.Sprintf("pmm: no level %d", level))
	}
}

// Bit returns the bit index of i within its word at level.
func (i Index) Bit(level int) int {
	switch level {
	case 5:
		return i.L5
	case 4:
		return i.L4
	case 3:
		return i.L3
	case 2:
		return i.L2
	case 1:
		return i.L1
	default:
		panic(fmt.Sprintf("pmm: no level %d", level))
	}
}
