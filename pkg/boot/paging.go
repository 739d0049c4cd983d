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

package boot

import (
	"fmt"
	"time"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/cleanup"
	"dogos.dev/dogos/pkg/firmware"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/pagetables"
)

// maxPoolAttempts bounds the attempts at sizing the page table pool. Each
// attempt may change the memory map, and with it the identity mappings.
const maxPoolAttempts = 4

var (
	// kernelOpts maps the kernel image.
	kernelOpts = pagetables.MapOpts{AccessType: hostarch.AnyAccess, Global: true}

	// dataOpts maps the windows holding data.
	dataOpts = pagetables.MapOpts{AccessType: hostarch.ReadWrite, Global: true}

	// framebufferOpts maps the frame buffer.
	framebufferOpts = pagetables.MapOpts{
		AccessType: hostarch.ReadWrite,
		Global:     true,
		MemoryType: hostarch.MemoryTypeWriteCombine,
	}
)

// identityOpts returns the options to identity map a region of type t.
func identityOpts(t bootinfo.MemoryType) pagetables.MapOpts {
	opts := pagetables.MapOpts{AccessType: hostarch.AnyAccess}
	if !t.IsRAM() {
		opts.AccessType = hostarch.ReadWrite
		opts.MemoryType = hostarch.MemoryTypeUncached
	}
	return opts
}

// Layout are the physical structures SetupPaging maps.
type Layout struct {
	// Kernel is the physical address of the kernel image.
	Kernel hostarch.Addr

	// Framebuffer is the current graphics mode; its Address is physical.
	Framebuffer bootinfo.Framebuffer

	// RawMap is the raw memory map buffer.
	RawMap RawMap

	// SectionTable is the bitmap section table. It is released to firmware
	// once its sections are mapped.
	SectionTable *SectionTable
}

// Paging is the address space built by SetupPaging.
type Paging struct {
	// Tables are the page tables.
	Tables *pagetables.PageTables

	// Pool holds every table, starting with the root.
	Pool *pagetables.Pool

	// Sections is the number of bitmap sections mapped.
	Sections int
}

// windows returns the virtual ranges mapped by SetupPaging for l, paired
// with the physical address each one starts at.
func (l *Layout) windows(sections []hostarch.Addr) ([]hostarch.AddrRange, []hostarch.Addr, []pagetables.MapOpts) {
	var (
		ranges    []hostarch.AddrRange
		physical  []hostarch.Addr
		opts      []pagetables.MapOpts
		addWindow = func(r hostarch.AddrRange, pa hostarch.Addr, o pagetables.MapOpts) {
			ranges = append(ranges, r)
			physical = append(physical, pa)
			opts = append(opts, o)
		}
	)
	addWindow(hostarch.PageRange(bootinfo.KernelBase, bootinfo.KernelSize/hostarch.PageSize), l.Kernel, kernelOpts)
	if pages := l.Framebuffer.Pages(); pages > 0 {
		addWindow(hostarch.PageRange(bootinfo.FramebufferBase, pages), l.Framebuffer.Address.RoundDown(), framebufferOpts)
	}
	addWindow(hostarch.PageRange(bootinfo.MemoryMapBase, l.RawMap.Pages), l.RawMap.Addr, dataOpts)
	for i, pa := range sections {
		slot := bootinfo.BitmapBase + hostarch.Addr(uint64(i)*bootinfo.SectionBytes)
		addWindow(hostarch.PageRange(slot, bootinfo.SectionPages), pa, dataOpts)
	}
	return ranges, physical, opts
}

// identityRanges returns the regions of m to identity map: everything that
// is not Conventional and lies in the lower canonical half.
func identityRanges(m firmware.MemoryMap) []bootinfo.Entry {
	var ids []bootinfo.Entry
	for _, e := range m.Entries {
		if e.Type == bootinfo.Conventional {
			continue
		}
		if e.Range().End > 1<<47 {
			log.Warningf("Boot: region %v is not identity mappable", e)
			continue
		}
		ids = append(ids, e)
	}
	return ids
}

// SetupPaging builds the kernel address space:
//
//   - the kernel image at bootinfo.KernelBase,
//   - the frame buffer at bootinfo.FramebufferBase,
//   - the raw memory map at bootinfo.MemoryMapBase,
//   - the bitmap sections at bootinfo.BitmapBase, one 9-page slot each,
//   - the page tables themselves at bootinfo.PageTablesBase,
//   - and an identity mapping of everything firmware still uses.
//
// Tables come from a pool of LoaderData pages sized up front. On success the
// section table is released to firmware. On any failure, everything
// allocated here is released and the error wraps ErrNoPageTable.
func SetupPaging(fw firmware.Services, l Layout) (*Paging, error) {
	if pages := l.Framebuffer.Pages(); pages > bootinfo.MaxFramebufferPages {
		log.Warningf("Boot: frame buffer %dx%d pitch %d needs %d pages", l.Framebuffer.Width, l.Framebuffer.Height, l.Framebuffer.Pitch, pages)
		return nil, fmt.Errorf("%w: %w: %d pages, limit %d", ErrNoPageTable, ErrFramebufferTooLarge, pages, bootinfo.MaxFramebufferPages)
	}
	p, err := setupPaging(fw, l)
	if err != nil {
		log.Warningf("Boot: page table setup failed: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrNoPageTable, err)
	}
	return p, nil
}

func setupPaging(fw firmware.Services, l Layout) (*Paging, error) {
	mem := fw.Memory()
	sections := ReadSectionTable(mem, l.SectionTable.Addr)
	ranges, physical, opts := l.windows(sections)

	// Size the pool for the current map; allocating it may change the map.
	var (
		frames uint64
		base   hostarch.Addr
		ids    []bootinfo.Entry
		cu     cleanup.Cleanup
	)
	defer cu.Clean()
	for attempt := 0; ; attempt++ {
		m, err := fw.MemoryMap()
		if err != nil {
			return nil, fmt.Errorf("reading the memory map: %w", err)
		}
		ids = identityRanges(m)
		all := append([]hostarch.AddrRange(nil), ranges...)
		for _, e := range ids {
			all = append(all, e.Range())
		}
		need := pagetables.PoolFrames(all, bootinfo.PageTablesBase)
		if frames >= need {
			break
		}
		if attempt == maxPoolAttempts {
			return nil, fmt.Errorf("page table pool size did not settle after %d attempts", attempt)
		}
		if need > bootinfo.PageTablesMaxPages {
			return nil, fmt.Errorf("page tables need %d frames, window holds %d", need, bootinfo.PageTablesMaxPages)
		}
		cu.Clean()
		frames = need
		if base, err = fw.AllocatePages(bootinfo.LoaderData, frames); err != nil {
			return nil, fmt.Errorf("allocating %d page table frames: %w", frames, err)
		}
		pa, n := base, frames
		cu.Add(func() { fw.FreePages(pa, n) })
	}

	pool := pagetables.NewPool(mem, base, uint32(frames))
	pt, err := pagetables.New(mem, pool)
	if err != nil {
		return nil, err
	}

	for i, r := range ranges {
		if err := pt.Map(r.Start, r.Length(), opts[i], physical[i]); err != nil {
			return nil, fmt.Errorf("mapping %v to %v: %w", r, physical[i], err)
		}
	}
	self := hostarch.PageRange(bootinfo.PageTablesBase, frames)
	if err := pt.Map(self.Start, self.Length(), dataOpts, base); err != nil {
		return nil, fmt.Errorf("mapping the page tables at %v: %w", self, err)
	}
	rl := log.RateLimitedLogger(log.Log(), time.Second, 8)
	for _, e := range ids {
		r := e.Range()
		rl.Debugf("Boot: identity mapping %v", e)
		if err := pt.Map(r.Start, r.Length(), identityOpts(e.Type), r.Start); err != nil {
			return nil, fmt.Errorf("identity mapping %v: %w", e, err)
		}
	}

	// The sections are reachable through the bitmap window from now on.
	if err := fw.FreePages(l.SectionTable.Addr, bootinfo.SectionTablePages); err != nil {
		return nil, fmt.Errorf("releasing the section table: %w", err)
	}
	l.SectionTable.Addr = 0

	cu.Release()
	log.Infof("Boot: page tables at %v, %d of %d frames used, %d identity regions", base, pool.Used(), frames, len(ids))
	return &Paging{Tables: pt, Pool: pool, Sections: len(sections)}, nil
}
