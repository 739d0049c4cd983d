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

// Package pagetables provides a generic implementation of x86-64 four level
// page tables.
//
// Tables live in physical memory (a physmem.Memory) and are obtained from an
// injected Allocator, so the same code builds the boot address space, extends
// the live one in the kernel, and runs against an in-process arena in tests.
// Only 4 KiB mappings are made.
package pagetables

import (
	"errors"
	"fmt"
	"sort"

	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/physmem"
)

const (
	// levels is the number of translation levels. Level 3 is the root
	// (PML4), level 0 holds the leaf entries.
	levels = 4

	// entriesPerTable is the number of entries in a table.
	entriesPerTable = hostarch.EntriesPerTable

	// lowerTop and upperBottom delimit the canonical halves.
	lowerTop    hostarch.Addr = 0x0000_7fff_ffff_ffff
	upperBottom hostarch.Addr = 0xffff_8000_0000_0000
)

var (
	// ErrAlreadyMapped is returned by Map for a page that is already mapped.
	ErrAlreadyMapped = errors.New("page already mapped")

	// ErrNotMapped is returned by callers of Lookup for a page that must be
	// mapped but is not.
	ErrNotMapped = errors.New("page not mapped")

	// ErrPoolExhausted is returned by Pool.NewTable when every frame of the
	// pool is in use.
	ErrPoolExhausted = errors.New("page table pool exhausted")
)

// Allocator provides frames for page tables.
type Allocator interface {
	// NewTable returns the physical address of a zeroed frame.
	NewTable() (hostarch.Addr, error)

	// FreeTable releases a frame returned by NewTable.
	FreeTable(addr hostarch.Addr)
}

// PageTables is a set of page tables.
type PageTables struct {
	// Allocator is used to allocate and free tables.
	Allocator Allocator

	// mem holds the tables.
	mem physmem.Memory

	// root is the physical address of the PML4.
	root hostarch.Addr
}

// New returns new PageTables with a fresh root from allocator.
func New(mem physmem.Memory, allocator Allocator) (*PageTables, error) {
	root, err := allocator.NewTable()
	if err != nil {
		return nil, fmt.Errorf("allocating root table: %w", err)
	}
	return &PageTables{Allocator: allocator, mem: mem, root: root}, nil
}

// NewWithRoot returns PageTables for an existing tree rooted at root, such
// as the one a CR3 value points at.
func NewWithRoot(mem physmem.Memory, allocator Allocator, root hostarch.Addr) *PageTables {
	if !root.IsPageAligned() {
		panic(fmt.Sprintf("unaligned root table %v", root))
	}
	return &PageTables{Allocator: allocator, mem: mem, root: root}
}

// Root returns the physical address of the root table.
func (p *PageTables) Root() hostarch.Addr {
	return p.root
}

func (p *PageTables) read(entry hostarch.Addr) PTE {
	return PTE(p.mem.Read64(entry))
}

func (p *PageTables) write(entry hostarch.Addr, v PTE) {
	p.mem.Write64(entry, uint64(v))
}

// empty returns true iff the table at addr has no valid entry.
func (p *PageTables) empty(table hostarch.Addr) bool {
	for i := 0; i < entriesPerTable; i++ {
		if p.read(table + hostarch.Addr(8*i)).Valid() {
			return false
		}
	}
	return true
}

// checkRange panics if [addr, addr+length) is misaligned or not inside one
// canonical half of the address space.
func checkRange(addr hostarch.Addr, length uint64) hostarch.Addr {
	end, ok := addr.AddLength(length)
	if !addr.IsPageAligned() || length%hostarch.PageSize != 0 || !ok {
		panic(fmt.Sprintf("bad range [%v, +%#x)", addr, length))
	}
	if length == 0 {
		return end
	}
	last := end - 1
	if !(last <= lowerTop || addr >= upperBottom) {
		panic(fmt.Sprintf("non-canonical range [%v, %v)", addr, end))
	}
	return end
}

// Map installs a mapping with the given physical address.
//
// The range is mapped page by page. If any page is already mapped or a table
// cannot be allocated, the pages mapped by this call are unmapped again and
// an error is returned.
func (p *PageTables) Map(addr hostarch.Addr, length uint64, opts MapOpts, physical hostarch.Addr) error {
	if !opts.AccessType.Any() {
		return fmt.Errorf("mapping %v with no access", addr)
	}
	end := checkRange(addr, length)
	if !physical.IsPageAligned() {
		panic(fmt.Sprintf("unaligned physical address %v", physical))
	}
	v := &mapVisitor{pageTables: p, target: addr, physical: physical, opts: opts}
	w := walker{pageTables: p, visitor: v}
	if w.iterateRange(addr, end) {
		return nil
	}
	failed := addr + hostarch.Addr(v.mapped*hostarch.PageSize)
	if v.mapped > 0 {
		p.Unmap(addr, v.mapped*hostarch.PageSize)
	}
	if w.err != nil {
		return fmt.Errorf("mapping %v: %w", failed, w.err)
	}
	return fmt.Errorf("mapping %v: %w", failed, ErrAlreadyMapped)
}

// Unmap unmaps the given range, freeing tables that become empty. It returns
// the number of pages that were mapped.
func (p *PageTables) Unmap(addr hostarch.Addr, length uint64) uint64 {
	end := checkRange(addr, length)
	v := &unmapVisitor{pageTables: p}
	w := walker{pageTables: p, visitor: v, release: true}
	w.iterateRange(addr, end)
	return v.count
}

// Lookup returns the physical address and options for addr.
func (p *PageTables) Lookup(addr hostarch.Addr) (physical hostarch.Addr, opts MapOpts, ok bool) {
	page := addr.RoundDown()
	if page > lowerTop && page < upperBottom {
		return 0, MapOpts{}, false
	}
	v := &lookupVisitor{}
	w := walker{pageTables: p, visitor: v}
	w.iterateRange(page, page+hostarch.PageSize)
	if !v.pte.Valid() {
		return 0, MapOpts{}, false
	}
	return v.pte.Address() + hostarch.Addr(addr.PageOffset()), v.pte.Opts(), true
}

// Tables returns the physical addresses of all tables, root included, in
// ascending order.
func (p *PageTables) Tables() []hostarch.Addr {
	tables := []hostarch.Addr{p.root}
	p.forEachSubtable(levels-1, p.root, func(table hostarch.Addr) {
		tables = append(tables, table)
	})
	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
	return tables
}

func (p *PageTables) forEachSubtable(level int, table hostarch.Addr, fn func(hostarch.Addr)) {
	if level == 0 {
		return
	}
	for i := 0; i < entriesPerTable; i++ {
		pte := p.read(table + hostarch.Addr(8*i))
		if !pte.Valid() {
			continue
		}
		fn(pte.Address())
		p.forEachSubtable(level-1, pte.Address(), fn)
	}
}

// Rebase rewrites every reference to a table inside from so that it points
// at the same offset from to. The tables must already have been copied to
// their new location; the copies are the ones rewritten.
func (p *PageTables) Rebase(from hostarch.AddrRange, to hostarch.Addr) {
	move := func(addr hostarch.Addr) hostarch.Addr {
		if from.Contains(addr) {
			return to + (addr - from.Start)
		}
		return addr
	}
	p.root = move(p.root)
	var rebase func(level int, table hostarch.Addr)
	rebase = func(level int, table hostarch.Addr) {
		if level == 0 {
			return
		}
		for i := 0; i < entriesPerTable; i++ {
			entry := table + hostarch.Addr(8*i)
			pte := p.read(entry)
			if !pte.Valid() {
				continue
			}
			sub := move(pte.Address())
			if sub != pte.Address() {
				p.write(entry, pte&^addressMask|PTE(sub))
			}
			rebase(level-1, sub)
		}
	}
	rebase(levels-1, p.root)
}

// MissingTables returns the number of tables Map would allocate to map
// [addr, addr+length).
func (p *PageTables) MissingTables(addr hostarch.Addr, length uint64) uint64 {
	end := checkRange(addr, length)
	return p.missing(levels-1, p.root, addr, end)
}

func (p *PageTables) missing(level int, table, start, end hostarch.Addr) uint64 {
	if level == 0 {
		return 0
	}
	var n uint64
	size := uint64(1) << levelShift(level)
	for start < end {
		next := addrEnd(start, end, size)
		pte := p.read(entryAddr(table, level, start))
		if pte.Valid() {
			n += p.missing(level-1, pte.Address(), start, next)
		} else {
			for l := level; l > 0; l-- {
				n += blocks(start, next, levelShift(l))
			}
		}
		start = next
	}
	return n
}

// levelShift returns the log2 of the span of one entry at level.
func levelShift(level int) uint {
	return hostarch.PageShift + 9*uint(level)
}

// entryAddr returns the address of the entry for addr in the table at the
// given level.
func entryAddr(table hostarch.Addr, level int, addr hostarch.Addr) hostarch.Addr {
	index := (uint64(addr) >> levelShift(level)) & (entriesPerTable - 1)
	return table + hostarch.Addr(8*index)
}

// blocks returns the number of aligned blocks of 1<<shift bytes touched by
// [start, end).
func blocks(start, end hostarch.Addr, shift uint) uint64 {
	if start >= end {
		return 0
	}
	return uint64((end-1)>>shift) - uint64(start>>shift) + 1
}
