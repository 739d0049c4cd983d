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

package physmem

import (
	"encoding/binary"

	"github.com/mohae/deepcopy"

	"dogos.dev/dogos/pkg/hostarch"
)

type page [hostarch.PageSize]byte

// Sparse is a Memory that only stores pages that have been written. Reads
// of untouched pages return zeroes. It can describe terabytes of physical
// address space while holding only the bookkeeping that is actually used.
type Sparse struct {
	limit hostarch.Addr
	pages map[uint64]*page
}

// NewSparse returns an empty sparse arena covering [0, limit).
func NewSparse(limit hostarch.Addr) *Sparse {
	return &Sparse{
		limit: limit,
		pages: make(map[uint64]*page),
	}
}

// Limit implements Memory.Limit.
func (s *Sparse) Limit() hostarch.Addr {
	return s.limit
}

// Resident returns the number of pages that hold data.
func (s *Sparse) Resident() int {
	return len(s.pages)
}

func (s *Sparse) lookup(pa hostarch.Addr) *page {
	return s.pages[uint64(pa)>>hostarch.PageShift]
}

func (s *Sparse) lookupOrCreate(pa hostarch.Addr) *page {
	pn := uint64(pa) >> hostarch.PageShift
	p, ok := s.pages[pn]
	if !ok {
		p = new(page)
		s.pages[pn] = p
	}
	return p
}

// Read64 implements Memory.Read64.
func (s *Sparse) Read64(pa hostarch.Addr) uint64 {
	checkWord(pa, s.limit)
	p := s.lookup(pa)
	if p == nil {
		return 0
	}
	off := pa.PageOffset()
	return binary.LittleEndian.Uint64(p[off : off+8])
}

// Write64 implements Memory.Write64.
func (s *Sparse) Write64(pa hostarch.Addr, v uint64) {
	checkWord(pa, s.limit)
	if v == 0 && s.lookup(pa) == nil {
		return
	}
	off := pa.PageOffset()
	binary.LittleEndian.PutUint64(s.lookupOrCreate(pa)[off:off+8], v)
}

// ReadAt implements Memory.ReadAt.
func (s *Sparse) ReadAt(p []byte, pa hostarch.Addr) {
	checkRange(pa, uint64(len(p)), s.limit)
	for len(p) > 0 {
		off := pa.PageOffset()
		n := copyLen(off, len(p))
		if pg := s.lookup(pa); pg != nil {
			copy(p[:n], pg[off:])
		} else {
			clear(p[:n])
		}
		p = p[n:]
		pa += hostarch.Addr(n)
	}
}

// WriteAt implements Memory.WriteAt.
func (s *Sparse) WriteAt(p []byte, pa hostarch.Addr) {
	checkRange(pa, uint64(len(p)), s.limit)
	for len(p) > 0 {
		off := pa.PageOffset()
		n := copyLen(off, len(p))
		copy(s.lookupOrCreate(pa)[off:], p[:n])
		p = p[n:]
		pa += hostarch.Addr(n)
	}
}

// Zero implements Memory.Zero. Whole pages are released.
func (s *Sparse) Zero(pa hostarch.Addr, length uint64) {
	checkRange(pa, length, s.limit)
	for length > 0 {
		off := pa.PageOffset()
		n := uint64(copyLen(off, int(min(length, hostarch.PageSize))))
		if off == 0 && n == hostarch.PageSize {
			delete(s.pages, uint64(pa)>>hostarch.PageShift)
		} else if pg := s.lookup(pa); pg != nil {
			clear(pg[off : off+n])
		}
		length -= n
		pa += hostarch.Addr(n)
	}
}

// Clone returns an independent copy of the arena.
func (s *Sparse) Clone() *Sparse {
	return &Sparse{
		limit: s.limit,
		pages: deepcopy.Copy(s.pages).(map[uint64]*page),
	}
}

// copyLen returns how many of want bytes starting at page offset off fit in
// the page.
func copyLen(off uint64, want int) int {
	if room := int(hostarch.PageSize - off); want > room {
		return room
	}
	return want
}
