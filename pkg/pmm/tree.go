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

// Package pmm implements the physical frame allocator.
//
// Every 4 KiB frame up to 4 TiB has one bit in a five level tree of 64-bit
// words. A bit at level 1 is set when its frame is used; a bit at a higher
// level is set iff all 64 bits of the word below it are set. Searching for a
// free frame is therefore bounded by the depth of the tree.
//
// The tree lives in a bitmap window (see package bootinfo): one 36 KiB
// section per GiB of physical memory, laid out by WordOffset. Only the
// sections listed in the section table are backed; the sections past them
// are permanently marked used and never touched.
//
// A Tree is not safe for concurrent use.
package pmm

import (
	"errors"
	"fmt"

	"dogos.dev/dogos/pkg/bits"
	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/physmem"
)

var (
	// ErrNoMemory is returned by AllocateNext when every frame is used.
	ErrNoMemory = errors.New("out of physical frames")

	// ErrNoRange is returned by AllocateContiguous when no run of free
	// frames is long enough.
	ErrNoRange = errors.New("no contiguous range of free frames")
)

// Tree is a frame bitmap tree stored in a bitmap window.
type Tree struct {
	// mem holds the window; base is the address of section 0 in it.
	mem  physmem.Memory
	base hostarch.Addr

	// sections is the number of backed sections, starting at section 0.
	sections int

	// free is the number of clear level 1 bits in backed sections.
	free uint64

	// cursor is where AllocateNext resumes, valid if resume is set.
	cursor Index
	resume bool
}

// New returns a Tree over the window at base in mem, with the given number
// of backed sections. The window is not modified; call Reset or
// InitFromMemoryMap before allocating.
func New(mem physmem.Memory, base hostarch.Addr, sections int) (*Tree, error) {
	if sections <= 0 || sections > bootinfo.MaxSections {
		return nil, fmt.Errorf("invalid section count %d, must be in [1, %d]", sections, bootinfo.MaxSections)
	}
	return &Tree{
		mem:      mem,
		base:     base,
		sections: sections,
	}, nil
}

// Stats summarizes a Tree.
type Stats struct {
	Sections int
	Frames   uint64
	Free     uint64
}

// Stats returns the current Stats.
func (t *Tree) Stats() Stats {
	return Stats{
		Sections: t.sections,
		Frames:   uint64(t.sections) * FramesPerSection,
		Free:     t.free,
	}
}

// FreeFrames returns the number of free frames.
func (t *Tree) FreeFrames() uint64 {
	return t.free
}

// Limit returns the first physical address past the backed sections.
func (t *Tree) Limit() hostarch.Addr {
	return hostarch.Addr(uint64(t.sections) * l4Span)
}

func (t *Tree) read(off uint64) uint64 {
	return t.mem.Read64(t.base + hostarch.Addr(off))
}

func (t *Tree) write(off uint64, v uint64) {
	t.mem.Write64(t.base+hostarch.Addr(off), v)
}

// index decomposes addr, rejecting addresses outside the backed sections.
func (t *Tree) index(addr hostarch.Addr) (Index, bool) {
	idx, ok := Decompose(addr)
	if !ok || idx.Section() >= t.sections {
		return Index{}, false
	}
	return idx, true
}

// Reset marks every frame of the backed sections free and every section
// past them used.
func (t *Tree) Reset() {
	for s := 0; s < t.sections; s++ {
		t.mem.Zero(t.base+hostarch.Addr(s*sectionBytes), sectionBytes)
	}
	var l5 uint64
	for g := 0; g < 64; g++ {
		var w uint64
		switch first := g * 64; {
		case t.sections <= first:
			w = bits.Full64
		case t.sections < first+64:
			w = bits.RangeMask64(t.sections-first, 64)
		}
		t.write(WordOffset(4, Index{L5: g}), w)
		if w == bits.Full64 {
			l5 |= bits.MaskOf64(g)
		}
	}
	t.write(l5Offset, l5)
	t.free = uint64(t.sections) * FramesPerSection
	t.resume = false
}

// set ORs mask into the level 1 word of idx and propagates fullness up.
func (t *Tree) set(idx Index, mask uint64) {
	off := WordOffset(1, idx)
	old := t.read(off)
	w := old | mask
	if w == old {
		return
	}
	t.write(off, w)
	t.free -= uint64(bits.OnesCount64(w &^ old))
	for level := 2; w == bits.Full64 && level <= 5; level++ {
		off = WordOffset(level, idx)
		w = t.read(off) | bits.MaskOf64(idx.Bit(level))
		t.write(off, w)
	}
}

// clear clears mask from the level 1 word of idx and propagates the change
// up while the word it cleared was full.
func (t *Tree) clear(idx Index, mask uint64) {
	off := WordOffset(1, idx)
	old := t.read(off)
	w := old &^ mask
	if w == old {
		return
	}
	t.write(off, w)
	t.free += uint64(bits.OnesCount64(old &^ w))
	for level := 2; old == bits.Full64 && level <= 5; level++ {
		off = WordOffset(level, idx)
		old = t.read(off)
		t.write(off, old&^bits.MaskOf64(idx.Bit(level)))
	}
}

// MarkUsed marks the frame holding addr used. It returns false, and does
// nothing, if addr is outside the backed sections.
func (t *Tree) MarkUsed(addr hostarch.Addr) bool {
	idx, ok := t.index(addr)
	if !ok {
		return false
	}
	t.set(idx, bits.MaskOf64(idx.L1))
	return true
}

// MarkFree marks the frame holding addr free. It returns false, and does
// nothing, if addr is outside the backed sections.
func (t *Tree) MarkFree(addr hostarch.Addr) bool {
	idx, ok := t.index(addr)
	if !ok {
		return false
	}
	t.clear(idx, bits.MaskOf64(idx.L1))
	return true
}

// IsUsed returns whether the frame holding addr is used. Frames outside the
// backed sections are always used.
func (t *Tree) IsUsed(addr hostarch.Addr) bool {
	idx, ok := t.index(addr)
	if !ok {
		return true
	}
	return bits.IsAnyOn64(t.read(WordOffset(1, idx)), bits.MaskOf64(idx.L1))
}

// MarkRangeUsed marks every frame overlapping ar used. The part of ar
// outside the backed sections is ignored.
func (t *Tree) MarkRangeUsed(ar hostarch.AddrRange) {
	t.forEachWord(ar, t.set)
}

// MarkRangeFree marks every frame overlapping ar free. The part of ar
// outside the backed sections is ignored.
func (t *Tree) MarkRangeFree(ar hostarch.AddrRange) {
	t.forEachWord(ar, t.clear)
}

// forEachWord calls fn once per level 1 word overlapping ar, with the mask
// of the frames of ar in that word.
func (t *Tree) forEachWord(ar hostarch.AddrRange, fn func(Index, uint64)) {
	start := ar.Start.RoundDown()
	end, ok := ar.End.RoundUp()
	if !ok || end > t.Limit() {
		end = t.Limit()
	}
	for addr := start; addr < end; {
		idx, _ := Decompose(addr)
		n := min(64-idx.L1, int((end-addr)>>hostarch.PageShift))
		fn(idx, bits.RangeMask64(idx.L1, n))
		addr += hostarch.Addr(n << hostarch.PageShift)
	}
}
