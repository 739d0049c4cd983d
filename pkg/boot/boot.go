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

// Package boot implements the boot stage: it builds the kernel address space
// while firmware boot services are still available, exits them, and hands
// control to the kernel.
//
// The sequence is
//
//	AllocateSectionTable  one bitmap section per GiB of RAM
//	AllocateRawMap        a buffer for the final memory map
//	SetupPaging           the page tables of the kernel address space
//	Handoff               exit boot services, fill in the map and the
//	                      parameter block, load CR3 and jump
//
// and Boot runs all of it. Any error is fatal to the boot; the caller halts.
package boot

import (
	"errors"
	"fmt"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/cleanup"
	"dogos.dev/dogos/pkg/firmware"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/ring0"
)

var (
	// ErrFramebufferTooLarge is returned when the frame buffer spans more
	// than bootinfo.MaxFramebufferPages.
	ErrFramebufferTooLarge = errors.New("frame buffer too large")

	// ErrNoPageTable is returned when the page tables could not be built.
	ErrNoPageTable = errors.New("no page table produced")

	// ErrMemoryMapTooLarge is returned when the final memory map does not
	// fit the buffer allocated for it.
	ErrMemoryMapTooLarge = errors.New("memory map does not fit its buffer")
)

// Kernel is a kernel image ready to be placed in memory.
type Kernel struct {
	// Image is copied to the start of the kernel window. It may not exceed
	// bootinfo.KernelSize.
	Image []byte

	// Entry is the offset of the entry point in Image.
	Entry uint64
}

// Result describes a completed boot.
type Result struct {
	// Params is the physical address of the parameter block, as passed to
	// the kernel.
	Params hostarch.Addr

	// Paging is the address space the kernel was entered with.
	Paging *Paging

	// MemoryMap is the final memory map.
	MemoryMap []bootinfo.Entry
}

// Boot places kernel, builds its address space and enters it on cpu.
func Boot(fw firmware.Services, cpu *ring0.CPU, kernel Kernel) (*Result, error) {
	if uint64(len(kernel.Image)) > bootinfo.KernelSize || kernel.Entry >= bootinfo.KernelSize {
		return nil, fmt.Errorf("kernel image of %d bytes with entry %#x does not fit the %#x byte window", len(kernel.Image), kernel.Entry, bootinfo.KernelSize)
	}
	mem := fw.Memory()

	// Everything allocated here is either handed to the kernel or
	// released on failure.
	var cu cleanup.Cleanup
	defer cu.Clean()
	alloc := func(t bootinfo.MemoryType, pages uint64, what string) (hostarch.Addr, error) {
		pa, err := fw.AllocatePages(t, pages)
		if err != nil {
			return 0, fmt.Errorf("allocating %s: %w", what, err)
		}
		cu.Add(func() { fw.FreePages(pa, pages) })
		return pa, nil
	}

	kernelPhys, err := alloc(bootinfo.LoaderCode, bootinfo.KernelSize/hostarch.PageSize, "kernel")
	if err != nil {
		return nil, err
	}
	mem.Zero(kernelPhys, bootinfo.KernelSize)
	mem.WriteAt(kernel.Image, kernelPhys)

	params, err := alloc(bootinfo.LoaderData, hostarch.PagesFor(uint64(bootinfo.KernelParamsSize)), "parameter block")
	if err != nil {
		return nil, err
	}

	sections, err := AllocateSectionTable(fw)
	if err != nil {
		return nil, err
	}
	cu.Add(func() { sections.Free(fw) })

	raw, err := AllocateRawMap(fw)
	if err != nil {
		return nil, err
	}
	cu.Add(func() { fw.FreePages(raw.Addr, raw.Pages) })

	paging, err := SetupPaging(fw, Layout{
		Kernel:       kernelPhys,
		Framebuffer:  fw.Framebuffer(),
		RawMap:       raw,
		SectionTable: sections,
	})
	if err != nil {
		return nil, err
	}
	pool := paging.Pool.Range()
	cu.Add(func() { fw.FreePages(pool.Start, pool.Length()/hostarch.PageSize) })

	final, err := Handoff(fw, cpu, paging, raw, params, bootinfo.KernelBase+hostarch.Addr(kernel.Entry))
	if err != nil {
		return nil, err
	}
	cu.Release()
	log.Infof("Boot: entered kernel at %v with parameters at %v", bootinfo.KernelBase+hostarch.Addr(kernel.Entry), params)
	return &Result{Params: params, Paging: paging, MemoryMap: final}, nil
}
