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

package vmm

import (
	"fmt"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/cleanup"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/pagetables"
)

var (
	// heapOpts maps kernel heap pages.
	heapOpts = pagetables.MapOpts{AccessType: hostarch.ReadWrite, Global: true}

	// selfOpts maps the page table window.
	selfOpts = pagetables.MapOpts{AccessType: hostarch.ReadWrite, Global: true}
)

// ExpandKernelHeap maps pages fresh zeroed frames at the end of the kernel
// heap and returns the address of the first one.
//
// If the page table pool cannot hold the tables the new mappings need, the
// tables are first moved to a larger pool and CR3 is reloaded. Otherwise
// the expansion is all or nothing: on failure every frame taken is
// released, every page mapped is unmapped and the heap end is unchanged.
// A relocation that completed before the failure is kept.
func (m *Manager) ExpandKernelHeap(pages uint64) (hostarch.Addr, error) {
	start := m.heapEnd
	if pages == 0 {
		return start, nil
	}
	end, ok := start.AddLength(pages * hostarch.PageSize)
	if !ok || end > bootinfo.HeapEnd {
		return 0, fmt.Errorf("%w: %d pages at %v", ErrHeapExhausted, pages, start)
	}

	if need := m.tables.MissingTables(start, pages*hostarch.PageSize); need > uint64(m.pool.Free()) {
		if err := m.relocate(need); err != nil {
			return 0, fmt.Errorf("growing the page table pool for %d tables: %w", need, err)
		}
	}

	var cu cleanup.Cleanup
	defer cu.Clean()
	for i := uint64(0); i < pages; i++ {
		va := start + hostarch.Addr(i*hostarch.PageSize)
		pa, err := m.frames.AllocateNext()
		if err != nil {
			return 0, fmt.Errorf("expanding the heap at %v: %w", va, err)
		}
		cu.Add(func() { m.frames.MarkFree(pa) })
		m.mem.Zero(pa, hostarch.PageSize)
		if err := m.tables.Map(va, hostarch.PageSize, heapOpts, pa); err != nil {
			return 0, fmt.Errorf("expanding the heap: %w", err)
		}
		cu.Add(func() {
			m.tables.Unmap(va, hostarch.PageSize)
			m.cpu.Invlpg(va)
		})
	}
	cu.Release()
	m.heapEnd = end
	log.Debugf("vmm: heap grew by %d pages to %v", pages, end)
	return start, nil
}

// relocate moves the page tables to a pool with room for need more tables.
//
// The new pool is at least twice the size of the old one. It is mapped at
// bootinfo.PageTablesBase in place of the old one, CR3 is loaded with the
// new root and only then are the old frames released.
func (m *Manager) relocate(need uint64) error {
	old := m.pool
	oldFrames := uint64(old.Frames())
	used := uint64(old.Used())

	// Mapping the larger pool may itself take tables.
	frames := max(2*oldFrames, used+need)
	for {
		grow := m.tables.MissingTables(bootinfo.PageTablesBase+hostarch.Addr(oldFrames*hostarch.PageSize), (frames-oldFrames)*hostarch.PageSize)
		if used+need+grow <= frames {
			break
		}
		frames = used + need + grow
	}
	if frames > bootinfo.PageTablesMaxPages {
		return fmt.Errorf("%d frames exceed the page table window", frames)
	}

	base, err := m.frames.AllocateContiguous(frames)
	if err != nil {
		return err
	}
	pool, err := old.Relocate(m.tables, base, uint32(frames))
	if err != nil {
		m.frames.MarkRangeFree(hostarch.PageRange(base, frames))
		return err
	}

	// The tables are live copies in the new pool from here on; the pool
	// was sized so that remapping the window cannot fail.
	m.tables.Unmap(bootinfo.PageTablesBase, oldFrames*hostarch.PageSize)
	if err := m.tables.Map(bootinfo.PageTablesBase, frames*hostarch.PageSize, selfOpts, base); err != nil {
		panic(fmt.Sprintf("remapping the page table window at %v: %v", base, err))
	}
	m.cpu.LoadCR3(m.tables.Root())
	m.frames.MarkRangeFree(old.Range())

	m.pool = pool
	m.relocations++
	log.Infof("vmm: page table pool grew from %d to %d frames at %v", oldFrames, frames, base)
	return nil
}
