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
	"dogos.dev/dogos/pkg/hostarch"
)

// visitor is called for every leaf entry in a walked range.
type visitor interface {
	// visit is called for the entry at entry, mapping the page at addr.
	// Returning false stops the walk.
	visit(addr, entry hostarch.Addr, pte PTE) bool

	// requiresAlloc indicates that missing tables are allocated. Otherwise
	// missing tables are skipped and leaves without a mapping are not
	// visited.
	requiresAlloc() bool
}

// walker walks page tables.
type walker struct {
	// pageTables are the tables to walk.
	pageTables *PageTables

	// visitor is the visitor.
	visitor visitor

	// release frees tables that are empty after the walk.
	release bool

	// err is the error that stopped the walk, if any.
	err error
}

// addrEnd returns the next boundary of size after addr, or end if that comes
// first. size is a power of two.
func addrEnd(addr, end hostarch.Addr, size uint64) hostarch.Addr {
	next := (addr + hostarch.Addr(size)) &^ hostarch.Addr(size-1)
	if next < addr || next > end {
		return end
	}
	return next
}

// iterateRange iterates over all levels of the tables for [start, end).
func (w *walker) iterateRange(start, end hostarch.Addr) bool {
	if start >= end {
		return true
	}
	ok, _ := w.walkLevel(levels-1, w.pageTables.root, start, end)
	return ok
}

// walkLevel iterates over the entries of table covering [start, end).
//
// Returns:
//   - ok: whether the walk was successful.
//   - clearEntries: number of clear entries seen.
func (w *walker) walkLevel(level int, table, start, end hostarch.Addr) (bool, int) {
	var clearEntries int
	size := uint64(1) << levelShift(level)
	p := w.pageTables
	for start < end {
		nextBoundary := addrEnd(start, end, size)
		entry := entryAddr(table, level, start)
		pte := p.read(entry)

		if level == 0 {
			if !pte.Valid() && !w.visitor.requiresAlloc() {
				clearEntries++
				start = nextBoundary
				continue
			}
			if !w.visitor.visit(start, entry, pte) {
				return false, clearEntries
			}
			if !p.read(entry).Valid() && !w.visitor.requiresAlloc() {
				clearEntries++
			}
			start = nextBoundary
			continue
		}

		var next hostarch.Addr
		fresh := false
		if !pte.Valid() {
			if !w.visitor.requiresAlloc() {
				// Skip over this entry.
				clearEntries++
				start = nextBoundary
				continue
			}

			// Allocate the next level.
			addr, err := p.Allocator.NewTable()
			if err != nil {
				w.err = err
				return false, clearEntries
			}
			p.write(entry, tablePTE(addr))
			next, fresh = addr, true
		} else {
			next = pte.Address()
		}

		// Map the next level, since this is valid.
		ok, clearNext := w.walkLevel(level-1, next, start, nextBoundary)

		// Check if we no longer need this table. A partially walked
		// table is only released after checking the other entries.
		if clearNext == entriesPerTable || ((w.release || fresh) && p.empty(next)) {
			p.write(entry, 0)
			p.Allocator.FreeTable(next)
			clearEntries++
		}
		if !ok {
			return false, clearEntries
		}
		start = nextBoundary
	}
	return true, clearEntries
}

// mapVisitor installs leaf entries for a physically contiguous range.
type mapVisitor struct {
	pageTables *PageTables
	target     hostarch.Addr
	physical   hostarch.Addr
	opts       MapOpts

	// mapped is the number of pages installed.
	mapped uint64
}

func (*mapVisitor) requiresAlloc() bool { return true }

func (v *mapVisitor) visit(addr, entry hostarch.Addr, pte PTE) bool {
	if pte.Valid() {
		return false
	}
	v.pageTables.write(entry, leafPTE(v.physical+(addr-v.target), v.opts))
	v.mapped++
	return true
}

// unmapVisitor clears leaf entries.
type unmapVisitor struct {
	pageTables *PageTables

	// count is the number of pages unmapped.
	count uint64
}

func (*unmapVisitor) requiresAlloc() bool { return false }

func (v *unmapVisitor) visit(_, entry hostarch.Addr, _ PTE) bool {
	v.pageTables.write(entry, 0)
	v.count++
	return true
}

// lookupVisitor records the leaf entry of a single page.
type lookupVisitor struct {
	pte PTE
}

func (*lookupVisitor) requiresAlloc() bool { return false }

func (v *lookupVisitor) visit(_, _ hostarch.Addr, pte PTE) bool {
	v.pte = pte
	return true
}
