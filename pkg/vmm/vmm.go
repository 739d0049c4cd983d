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

// Package vmm is the kernel side of the memory core. It takes over the
// address space the boot stage built: the page tables rooted at CR3, the
// bitmap sections mapped at bootinfo.BitmapBase and the raw memory map
// mapped at bootinfo.MemoryMapBase.
//
// A Manager is not safe for concurrent use.
package vmm

import (
	"errors"
	"fmt"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/pagetables"
	"dogos.dev/dogos/pkg/physmem"
	"dogos.dev/dogos/pkg/pmm"
	"dogos.dev/dogos/pkg/ring0"
)

var (
	// ErrHeapExhausted is returned when the kernel heap would grow past
	// bootinfo.HeapEnd.
	ErrHeapExhausted = errors.New("kernel heap window exhausted")

	// ErrBadFrame is returned when freeing a frame that is not allocated.
	ErrBadFrame = errors.New("frame is not allocated")
)

// Manager owns the kernel address space and the physical frames.
type Manager struct {
	cpu    *ring0.CPU
	mem    physmem.Memory
	params bootinfo.KernelParams

	tables *pagetables.PageTables
	pool   *pagetables.Pool
	frames *pmm.Tree

	// heapEnd is the first unmapped heap address.
	heapEnd     hostarch.Addr
	relocations int
}

// New takes over the address space cpu runs in. params is the physical
// address of the parameter block the boot stage passed to the kernel.
func New(cpu *ring0.CPU, params hostarch.Addr) (*Manager, error) {
	mem := cpu.Memory()
	kp, err := bootinfo.ReadKernelParams(mem, params)
	if err != nil {
		return nil, fmt.Errorf("reading kernel parameters at %v: %w", params, err)
	}

	root := cpu.CR3()
	if root == 0 {
		return nil, fmt.Errorf("paging is not enabled")
	}
	if kp.PageTableEntries == 0 || kp.PageTableEntries%512 != 0 {
		return nil, fmt.Errorf("page table pool of %d entries is not a whole number of frames", kp.PageTableEntries)
	}
	frames := kp.PageTableEntries / 512
	if frames > bootinfo.PageTablesMaxPages {
		return nil, fmt.Errorf("page table pool of %d frames exceeds its window", frames)
	}
	pool := pagetables.NewPool(mem, root, uint32(frames))
	tables := pagetables.NewWithRoot(mem, nil, root)
	if err := pool.Adopt(tables); err != nil {
		return nil, fmt.Errorf("adopting the page tables: %w", err)
	}
	pa, _, ok := tables.Lookup(bootinfo.PageTablesBase)
	if !ok {
		return nil, fmt.Errorf("page table window at %v: %w", bootinfo.PageTablesBase, pagetables.ErrNotMapped)
	}
	if pa != root {
		return nil, fmt.Errorf("page table window maps %v, not the pool at %v", pa, root)
	}

	if kp.MemoryMapSize%bootinfo.EntrySize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", bootinfo.ErrUnalignedMemoryMap, kp.MemoryMapSize)
	}
	entries, err := bootinfo.ReadMemoryMap(cpu.Virtual(), bootinfo.MemoryMapBase, kp.MemoryMapSize)
	if err != nil {
		return nil, fmt.Errorf("reading the memory map: %w", err)
	}

	sections := mappedSections(cpu)
	if sections == 0 {
		return nil, fmt.Errorf("no bitmap section is mapped at %v", bootinfo.BitmapBase)
	}
	tree, err := pmm.New(cpu.Virtual(), bootinfo.BitmapBase, sections)
	if err != nil {
		return nil, err
	}
	tree.InitFromMemoryMap(entries)
	// Zero is the null physical address, and not a valid CR3.
	tree.MarkUsed(0)

	log.Infof("vmm: %d regions, %d bitmap sections, %d of %d page table frames used, %d frames free",
		len(entries), sections, pool.Used(), pool.Frames(), tree.FreeFrames())
	return &Manager{
		cpu:     cpu,
		mem:     mem,
		params:  kp,
		tables:  tables,
		pool:    pool,
		frames:  tree,
		heapEnd: bootinfo.HeapStart,
	}, nil
}

// mappedSections counts the bitmap slots mapped writable from the start of
// the bitmap window.
func mappedSections(cpu *ring0.CPU) int {
	n := 0
	for n < bootinfo.MaxSections {
		slot := bootinfo.BitmapBase + hostarch.Addr(n*bootinfo.SectionBytes)
		if _, err := cpu.Translate(slot, hostarch.ReadWrite); err != nil {
			break
		}
		n++
	}
	return n
}

// Params returns the parameter block the kernel was entered with.
func (m *Manager) Params() bootinfo.KernelParams {
	return m.params
}

// Frames returns the physical frame allocator.
func (m *Manager) Frames() *pmm.Tree {
	return m.frames
}

// Tables returns the kernel page tables.
func (m *Manager) Tables() *pagetables.PageTables {
	return m.tables
}

// Pool returns the frames holding the page tables.
func (m *Manager) Pool() *pagetables.Pool {
	return m.pool
}

// HeapEnd returns the first address past the kernel heap.
func (m *Manager) HeapEnd() hostarch.Addr {
	return m.heapEnd
}

// Relocations returns the number of times the page tables were moved to a
// larger pool.
func (m *Manager) Relocations() int {
	return m.relocations
}

// AllocateFrame allocates one physical frame.
func (m *Manager) AllocateFrame() (hostarch.Addr, error) {
	return m.frames.AllocateNext()
}

// AllocateFrames allocates n physically contiguous frames.
func (m *Manager) AllocateFrames(n uint64) (hostarch.Addr, error) {
	return m.frames.AllocateContiguous(n)
}

// FreeFrame releases the frame at pa.
func (m *Manager) FreeFrame(pa hostarch.Addr) error {
	if !pa.IsPageAligned() {
		return fmt.Errorf("%w: %v is not page aligned", ErrBadFrame, pa)
	}
	if !m.frames.IsUsed(pa) {
		return fmt.Errorf("%w: %v is already free", ErrBadFrame, pa)
	}
	if !m.frames.MarkFree(pa) {
		return fmt.Errorf("%w: %v is not tracked", ErrBadFrame, pa)
	}
	return nil
}

// Translate returns the physical address va maps to.
func (m *Manager) Translate(va hostarch.Addr) (hostarch.Addr, error) {
	return m.cpu.Translate(va, hostarch.NoAccess)
}
