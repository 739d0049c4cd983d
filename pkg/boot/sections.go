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

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/cleanup"
	"dogos.dev/dogos/pkg/firmware"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/physmem"
)

// rawMapSlack is the number of extra entries the raw map buffer holds, for
// the regions split by allocations made after it is sized.
const rawMapSlack = 10

// SectionTable is the table of bitmap sections: the physical address of one
// 36 KiB section per GiB of RAM, terminated by a zero entry unless all
// bootinfo.MaxSections entries are in use.
type SectionTable struct {
	// Addr is the physical address of the table.
	Addr hostarch.Addr

	// Sections are the entries of the table.
	Sections []hostarch.Addr
}

// AllocateSectionTable allocates the section table and the sections for
// every GiB of RAM in the firmware memory map, up to bootinfo.MaxPhysical.
// Sections are RuntimeServicesData, so they survive the exit from boot
// services; the table itself is LoaderData and is released once mapped.
func AllocateSectionTable(fw firmware.Services) (*SectionTable, error) {
	m, err := fw.MemoryMap()
	if err != nil {
		return nil, fmt.Errorf("reading the memory map: %w", err)
	}
	end := bootinfo.RAMEnd(m.Entries)
	if end == 0 {
		return nil, fmt.Errorf("memory map has no RAM")
	}
	count := (uint64(end) + hostarch.GiB - 1) / hostarch.GiB
	if count > bootinfo.MaxSections {
		log.Warningf("Boot: memory ends at %v, only the first %v are tracked", end, hostarch.Addr(bootinfo.MaxPhysical))
		count = bootinfo.MaxSections
	}

	table, err := fw.AllocatePages(bootinfo.LoaderData, bootinfo.SectionTablePages)
	if err != nil {
		return nil, fmt.Errorf("allocating the section table: %w", err)
	}
	st := &SectionTable{Addr: table}
	cu := cleanup.Make(func() { st.Free(fw) })
	defer cu.Clean()

	mem := fw.Memory()
	mem.Zero(table, bootinfo.SectionTablePages*hostarch.PageSize)
	for i := uint64(0); i < count; i++ {
		pa, err := fw.AllocatePages(bootinfo.RuntimeServicesData, bootinfo.SectionPages)
		if err != nil {
			return nil, fmt.Errorf("allocating bitmap section %d of %d: %w", i, count, err)
		}
		st.Sections = append(st.Sections, pa)
		if pa == 0 {
			// Zero terminates the table.
			return nil, fmt.Errorf("bitmap section %d allocated at physical 0", i)
		}
		mem.Write64(table+hostarch.Addr(8*i), uint64(pa))
	}
	cu.Release()
	log.Infof("Boot: %d bitmap sections, table at %v", count, table)
	return st, nil
}

// Free returns the table and its sections to firmware.
func (st *SectionTable) Free(fw firmware.Services) {
	for _, pa := range st.Sections {
		fw.FreePages(pa, bootinfo.SectionPages)
	}
	st.Sections = nil
	if st.Addr != 0 {
		fw.FreePages(st.Addr, bootinfo.SectionTablePages)
		st.Addr = 0
	}
}

// ReadSectionTable reads the entries of the section table at table, up to
// the zero terminator.
func ReadSectionTable(mem physmem.Memory, table hostarch.Addr) []hostarch.Addr {
	var sections []hostarch.Addr
	for i := 0; i < bootinfo.MaxSections; i++ {
		pa := hostarch.Addr(mem.Read64(table + hostarch.Addr(8*i)))
		if pa == 0 {
			break
		}
		sections = append(sections, pa)
	}
	return sections
}

// RawMap is the buffer the final memory map is written to.
type RawMap struct {
	Addr  hostarch.Addr
	Pages uint64
}

// Size returns the capacity of the buffer in bytes.
func (r RawMap) Size() uint64 {
	return r.Pages * hostarch.PageSize
}

// AllocateRawMap allocates a buffer for the final memory map, sized for the
// current map plus rawMapSlack entries.
func AllocateRawMap(fw firmware.Services) (RawMap, error) {
	m, err := fw.MemoryMap()
	if err != nil {
		return RawMap{}, fmt.Errorf("reading the memory map: %w", err)
	}
	pages := uint64((len(m.Entries)+rawMapSlack)*bootinfo.EntrySize)/hostarch.PageSize + 1
	if pages > bootinfo.MemoryMapMaxPages {
		return RawMap{}, fmt.Errorf("%w: %d entries", ErrMemoryMapTooLarge, len(m.Entries))
	}
	pa, err := fw.AllocatePages(bootinfo.LoaderData, pages)
	if err != nil {
		return RawMap{}, fmt.Errorf("allocating the raw memory map: %w", err)
	}
	return RawMap{Addr: pa, Pages: pages}, nil
}
