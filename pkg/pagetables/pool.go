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

package pagetables

import (
	"fmt"

	"dogos.dev/dogos/pkg/bitmap"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/physmem"
)

// Pool is an Allocator handing out the frames of one physically contiguous
// range. Keeping every table in one range lets the whole tree be mapped
// through a single window and moved with one copy.
type Pool struct {
	mem  physmem.Memory
	base hostarch.Addr

	// used has one bit per frame of the pool.
	used bitmap.Bitmap
}

// NewPool returns an empty Pool of frames starting at base.
func NewPool(mem physmem.Memory, base hostarch.Addr, frames uint32) *Pool {
	if !base.IsPageAligned() || frames == 0 {
		panic(fmt.Sprintf("bad pool [%v, +%d frames)", base, frames))
	}
	return &Pool{
		mem:  mem,
		base: base,
		used: bitmap.New(frames),
	}
}

// Range returns the physical range of the pool.
func (p *Pool) Range() hostarch.AddrRange {
	return hostarch.PageRange(p.base, uint64(p.used.Size()))
}

// Frames returns the size of the pool in frames.
func (p *Pool) Frames() uint32 {
	return p.used.Size()
}

// Used returns the number of frames holding tables.
func (p *Pool) Used() uint32 {
	return p.used.GetNumOnes()
}

// Free returns the number of unused frames.
func (p *Pool) Free() uint32 {
	return p.Frames() - p.Used()
}

// NewTable implements Allocator.NewTable.
func (p *Pool) NewTable() (hostarch.Addr, error) {
	i, err := p.used.FirstZero(0)
	if err != nil {
		return 0, ErrPoolExhausted
	}
	p.used.Add(i)
	addr := p.base + hostarch.Addr(uint64(i)*hostarch.PageSize)
	p.mem.Zero(addr, hostarch.PageSize)
	return addr, nil
}

// FreeTable implements Allocator.FreeTable.
func (p *Pool) FreeTable(addr hostarch.Addr) {
	p.used.Remove(p.frame(addr))
}

func (p *Pool) frame(addr hostarch.Addr) uint32 {
	if !addr.IsPageAligned() || !p.Range().Contains(addr) {
		panic(fmt.Sprintf("table %v is not in pool %v", addr, p.Range()))
	}
	return uint32((addr - p.base) / hostarch.PageSize)
}

// Adopt marks the tables of pt as used and makes the pool pt's allocator.
// Every table must be inside the pool.
func (p *Pool) Adopt(pt *PageTables) error {
	tables := pt.Tables()
	for _, table := range tables {
		if !table.IsPageAligned() || !p.Range().Contains(table) {
			return fmt.Errorf("table %v is outside of the pool %v", table, p.Range())
		}
	}
	for _, table := range tables {
		p.used.Add(p.frame(table))
	}
	pt.Allocator = p
	log.Debugf("Adopted %d page tables into pool %v", len(tables), p.Range())
	return nil
}

// Relocate copies the pool to a new range of frames starting at base, which
// must be at least as large, and rewrites pt to use the copies. It returns
// the new pool, which becomes pt's allocator. The old frames are no longer
// referenced and may be released by the caller.
func (p *Pool) Relocate(pt *PageTables, base hostarch.Addr, frames uint32) (*Pool, error) {
	if frames < p.Frames() {
		return nil, fmt.Errorf("cannot shrink pool from %d to %d frames", p.Frames(), frames)
	}
	np := NewPool(p.mem, base, frames)
	if np.Range().Overlaps(p.Range()) {
		return nil, fmt.Errorf("new pool %v overlaps %v", np.Range(), p.Range())
	}
	physmem.Copy(p.mem, base, p.base, uint64(p.Frames())*hostarch.PageSize)
	np.mem.Zero(np.Range().Start+hostarch.Addr(uint64(p.Frames())*hostarch.PageSize), uint64(frames-p.Frames())*hostarch.PageSize)
	for _, i := range p.used.ToSlice() {
		np.used.Add(i)
	}
	pt.Rebase(p.Range(), base)
	pt.Allocator = np
	log.Infof("Relocated page tables from %v to %v", p.Range(), np.Range())
	return np, nil
}
