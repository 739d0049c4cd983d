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
	"dogos.dev/dogos/pkg/hostarch"
)

// AllocateNext finds a free frame, marks it used and returns its address.
//
// The search resumes where the previous call stopped and only wraps around
// to the start of the tree when it reaches the end, so sweeping the whole
// tree one frame at a time costs time linear in the number of frames.
func (t *Tree) AllocateNext() (hostarch.Addr, error) {
	if t.read(l5Offset) == bits.Full64 {
		return 0, ErrNoMemory
	}
	idx, ok := Index{}, false
	if t.resume {
		idx, ok = t.search(t.cursor)
	}
	if !ok {
		idx, ok = t.search(Index{})
	}
	if !ok {
		return 0, ErrNoMemory
	}
	t.set(idx, bits.MaskOf64(idx.L1))
	t.cursor, t.resume = idx, true
	return idx.Addr(), nil
}

// search returns the first free frame at or after from.
func (t *Tree) search(from Index) (Index, bool) {
	idx := from
	level, start := 1, from.L1
	for {
		w := t.read(WordOffset(level, idx))
		if j := bits.FirstZero64(w, start); j < 64 {
			idx.setBit(level, j)
			break
		}
		if level == 5 {
			return Index{}, false
		}
		// The word below is exhausted past idx; continue after it.
		level++
		start = idx.Bit(level) + 1
	}
	for level--; level >= 1; level-- {
		w := t.read(WordOffset(level, idx))
		j := bits.FirstZero64(w, 0)
		if j == 64 {
			panic(fmt.Sprintf("pmm: corrupted tree, level %d word of %v is full under a clear bit", level, idx))
		}
		idx.setBit(level, j)
	}
	return idx, true
}

// setBit moves idx to bit j at level and to bit 0 at every level below.
func (i *Index) setBit(level, j int) {
	switch level {
	case 5:
		i.L5, i.L4, i.L3, i.L2, i.L1 = j, 0, 0, 0, 0
	case 4:
		i.L4, i.L3, i.L2, i.L1 = j, 0, 0, 0
	case 3:
		i.L3, i.L2, i.L1 = j, 0, 0
	case 2:
		i.L2, i.L1 = j, 0
	case 1:
		i.L1 = j
	}
}

// AllocateContiguous finds n physically contiguous free frames, marks them
// used and returns the address of the first one.
//
// The search is first fit in address order and crosses word and section
// boundaries: a run may start in one level 1 word and continue into the
// next. Subtrees whose bit is set are skipped without being read, and end
// the current run. On failure the tree is left unchanged.
func (t *Tree) AllocateContiguous(n uint64) (hostarch.Addr, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: zero frames requested", ErrNoRange)
	}
	if n > t.free {
		return 0, fmt.Errorf("%w: %d frames requested, %d free", ErrNoRange, n, t.free)
	}
	r := run{want: n}
	if !t.scan(5, Index{}, &r) {
		return 0, fmt.Errorf("%w: %d frames requested", ErrNoRange, n)
	}
	t.MarkRangeUsed(hostarch.PageRange(r.start, n))
	return r.start, nil
}

// run is the state of a contiguous search.
type run struct {
	start  hostarch.Addr
	length uint64
	want   uint64
}

// extend adds count free frames starting at addr to the run and reports
// whether it is now long enough.
func (r *run) extend(addr hostarch.Addr, count uint64) bool {
	if r.length == 0 {
		r.start = addr
	}
	r.length += count
	return r.length >= r.want
}

// scan walks the word at level for idx in address order, descending into
// every subtree that is not full. It returns true once r is long enough.
func (t *Tree) scan(level int, idx Index, r *run) bool {
	w := t.read(WordOffset(level, idx))
	if level == 1 && w == 0 {
		idx.setBit(1, 0)
		return r.extend(idx.Addr(), 64)
	}
	for b := 0; b < 64; b++ {
		idx.setBit(level, b)
		switch {
		case bits.IsAnyOn64(w, bits.MaskOf64(b)):
			r.length = 0
		case level == 1:
			if r.extend(idx.Addr(), 1) {
				return true
			}
		default:
			if t.scan(level-1, idx, r) {
				return true
			}
		}
	}
	return false
}
