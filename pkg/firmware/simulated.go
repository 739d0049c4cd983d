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

package firmware

import (
	"fmt"
	"sort"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/physmem"
)

// Simulated is firmware over a physical memory arena.
//
// Allocations are carved top-down from the highest Conventional region that
// fits, which keeps physical address 0 free for as long as possible.
type Simulated struct {
	mem     physmem.Memory
	fb      bootinfo.Framebuffer
	runtime hostarch.Addr

	// entries is the memory map, sorted and coalesced.
	entries []bootinfo.Entry

	// key changes with every change of entries.
	key uint64

	// exitFaults is the number of upcoming ExitBootServices calls that
	// find the map changed.
	exitFaults int

	exited bool
}

// NewSimulated returns firmware describing regions over mem.
//
// Regions must be page aligned and must not overlap. RAM regions (every
// type but Reserved, MMIO, MMIOPortSpace and Unusable) must lie within mem.
func NewSimulated(mem physmem.Memory, regions []bootinfo.Entry, fb bootinfo.Framebuffer, runtime hostarch.Addr) (*Simulated, error) {
	entries := make([]bootinfo.Entry, 0, len(regions))
	for _, r := range regions {
		if !r.PhysStart.IsPageAligned() || r.Pages == 0 {
			return nil, fmt.Errorf("%w: region %v", ErrInvalidParameter, r)
		}
		if _, ok := r.PhysStart.AddLength(r.Pages * hostarch.PageSize); !ok {
			return nil, fmt.Errorf("%w: region %v overflows", ErrInvalidParameter, r)
		}
		if r.Type.IsRAM() && r.Range().End > mem.Limit() {
			return nil, fmt.Errorf("%w: region %v is past the end of memory %v", ErrInvalidParameter, r, mem.Limit())
		}
		entries = append(entries, r)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PhysStart < entries[j].PhysStart })
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Range().Overlaps(entries[i].Range()) {
			return nil, fmt.Errorf("%w: regions %v and %v overlap", ErrInvalidParameter, entries[i-1], entries[i])
		}
	}
	s := &Simulated{
		mem:     mem,
		fb:      fb,
		runtime: runtime,
		entries: entries,
		key:     1,
	}
	s.coalesce()
	return s, nil
}

// InjectMapChanges makes the next n calls to ExitBootServices find that the
// memory map changed, as if an event handler had allocated memory.
func (s *Simulated) InjectMapChanges(n int) {
	s.exitFaults = n
}

// Exited returns true once boot services have exited.
func (s *Simulated) Exited() bool {
	return s.exited
}

// Memory implements Services.Memory.
func (s *Simulated) Memory() physmem.Memory {
	return s.mem
}

// Framebuffer implements Services.Framebuffer.
func (s *Simulated) Framebuffer() bootinfo.Framebuffer {
	return s.fb
}

// RuntimeServices implements Services.RuntimeServices.
func (s *Simulated) RuntimeServices() hostarch.Addr {
	return s.runtime
}

// MemoryMap implements Services.MemoryMap.
func (s *Simulated) MemoryMap() (MemoryMap, error) {
	if s.exited {
		return MemoryMap{}, ErrExited
	}
	entries := make([]bootinfo.Entry, len(s.entries))
	copy(entries, s.entries)
	return MemoryMap{Entries: entries, Key: s.key}, nil
}

// AllocatePages implements Services.AllocatePages.
func (s *Simulated) AllocatePages(t bootinfo.MemoryType, pages uint64) (hostarch.Addr, error) {
	if err := s.checkAllocation(t, pages); err != nil {
		return 0, err
	}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.Type != bootinfo.Conventional || e.Pages < pages {
			continue
		}
		addr := e.Range().End - hostarch.Addr(pages*hostarch.PageSize)
		s.retype(i, hostarch.PageRange(addr, pages), t)
		return addr, nil
	}
	log.Debugf("Firmware: no room for %d pages of %v", pages, t)
	return 0, fmt.Errorf("%w: %d pages of %v", ErrOutOfResources, pages, t)
}

// AllocatePagesAt implements Services.AllocatePagesAt.
func (s *Simulated) AllocatePagesAt(t bootinfo.MemoryType, addr hostarch.Addr, pages uint64) error {
	if err := s.checkAllocation(t, pages); err != nil {
		return err
	}
	if !addr.IsPageAligned() {
		return fmt.Errorf("%w: unaligned address %v", ErrInvalidParameter, addr)
	}
	ar := hostarch.PageRange(addr, pages)
	i, ok := s.find(ar)
	if !ok || s.entries[i].Type != bootinfo.Conventional {
		return fmt.Errorf("%w: %v is not free", ErrNotFound, ar)
	}
	s.retype(i, ar, t)
	return nil
}

// FreePages implements Services.FreePages.
func (s *Simulated) FreePages(addr hostarch.Addr, pages uint64) error {
	if s.exited {
		return ErrExited
	}
	if !addr.IsPageAligned() || pages == 0 {
		return fmt.Errorf("%w: free of %d pages at %v", ErrInvalidParameter, pages, addr)
	}
	ar := hostarch.PageRange(addr, pages)
	i, ok := s.find(ar)
	if !ok || !allocatable(s.entries[i].Type) {
		return fmt.Errorf("%w: %v", ErrNotFound, ar)
	}
	s.retype(i, ar, bootinfo.Conventional)
	return nil
}

// ExitBootServices implements Services.ExitBootServices.
func (s *Simulated) ExitBootServices(key uint64) error {
	if s.exited {
		return ErrExited
	}
	if s.exitFaults > 0 {
		s.exitFaults--
		s.key++
	}
	if key != s.key {
		return fmt.Errorf("%w: got %d, current %d", ErrInvalidMapKey, key, s.key)
	}
	s.exited = true
	return nil
}

func (s *Simulated) checkAllocation(t bootinfo.MemoryType, pages uint64) error {
	if s.exited {
		return ErrExited
	}
	if !allocatable(t) || pages == 0 {
		return fmt.Errorf("%w: %d pages of %v", ErrInvalidParameter, pages, t)
	}
	return nil
}

// find returns the index of the entry containing ar.
func (s *Simulated) find(ar hostarch.AddrRange) (int, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Range().End > ar.Start
	})
	if i == len(s.entries) {
		return 0, false
	}
	r := s.entries[i].Range()
	return i, r.Start <= ar.Start && ar.End <= r.End
}

// retype changes the type of ar, which lies inside entry i, to t.
func (s *Simulated) retype(i int, ar hostarch.AddrRange, t bootinfo.MemoryType) {
	e := s.entries[i]
	r := e.Range()
	var split []bootinfo.Entry
	if r.Start < ar.Start {
		split = append(split, region(e.Type, e.Attribute, hostarch.AddrRange{Start: r.Start, End: ar.Start}))
	}
	split = append(split, region(t, e.Attribute, ar))
	if ar.End < r.End {
		split = append(split, region(e.Type, e.Attribute, hostarch.AddrRange{Start: ar.End, End: r.End}))
	}
	s.entries = append(s.entries[:i], append(split, s.entries[i+1:]...)...)
	s.coalesce()
	s.key++
}

func region(t bootinfo.MemoryType, attr bootinfo.Attribute, ar hostarch.AddrRange) bootinfo.Entry {
	return bootinfo.Entry{
		Type:      t,
		Attribute: attr,
		PhysStart: ar.Start,
		Pages:     ar.Length() / hostarch.PageSize,
	}
}

// coalesce merges adjacent entries of the same type and attributes.
func (s *Simulated) coalesce() {
	out := s.entries[:0]
	for _, e := range s.entries {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Type == e.Type && last.Attribute == e.Attribute && last.Range().End == e.PhysStart {
				last.Pages += e.Pages
				continue
			}
		}
		out = append(out, e)
	}
	s.entries = out
}
