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

// Package bootinfo is the contract shared by the boot stage and the kernel:
// the fixed virtual windows, the raw memory map wire format, the frame
// buffer descriptor and the kernel parameter block.
//
// Both sides must agree on every constant here. A mismatch is not detected
// at run time; it silently corrupts memory.
package bootinfo

import (
	"fmt"

	"dogos.dev/dogos/pkg/hostarch"
)

// Fixed virtual windows of the kernel address space.
const (
	// KernelBase is where the kernel image is mapped.
	KernelBase hostarch.Addr = 0xffff_eeee_8000_0000

	// FramebufferBase is where the frame buffer is mapped.
	FramebufferBase hostarch.Addr = 0xffff_eeed_f000_0000

	// MemoryMapBase is where the raw memory map is mapped.
	MemoryMapBase hostarch.Addr = 0xffff_eeed_e000_0000

	// BitmapBase is where the bitmap sections are mapped, one 36 KiB slot
	// per GiB of physical memory.
	BitmapBase hostarch.Addr = 0xffff_eeed_0000_0000

	// PageTablesBase is where the frames of the page table itself are
	// mapped.
	PageTablesBase hostarch.Addr = 0xffff_eeec_f000_0000

	// HeapStart is the lowest kernel heap address. The heap grows up.
	HeapStart hostarch.Addr = 0xffff_e000_0000_0000

	// HeapEnd bounds the kernel heap.
	HeapEnd hostarch.Addr = 0xffff_ee00_0000_0000
)

// Sizes of the structures placed in the windows above.
const (
	// KernelSize is the size of the kernel window.
	KernelSize = hostarch.MiB

	// MaxFramebufferPages caps the frame buffer mapping (256 MiB). A larger
	// frame buffer means the video mode was misdetected.
	MaxFramebufferPages = 65536

	// MaxPhysical is the highest amount of physical memory tracked.
	MaxPhysical = 4 * hostarch.TiB

	// SectionBytes is the size of one bitmap section: the level 1-3
	// bitmaps of one GiB of physical memory.
	SectionBytes = 0x9000

	// SectionPages is SectionBytes in pages.
	SectionPages = SectionBytes / hostarch.PageSize

	// MaxSections is the number of GiB sections in MaxPhysical.
	MaxSections = MaxPhysical / hostarch.GiB

	// SectionTablePages is the size of the section table: one physical
	// address per section.
	SectionTablePages = MaxSections * 8 / hostarch.PageSize

	// PageTablesMaxPages bounds the page-table window.
	PageTablesMaxPages = uint64(BitmapBase-PageTablesBase) / hostarch.PageSize

	// MemoryMapMaxPages bounds the raw memory map window.
	MemoryMapMaxPages = uint64(FramebufferBase-MemoryMapBase) / hostarch.PageSize
)

// Window is a named range of the kernel address space.
type Window struct {
	Name  string
	Range hostarch.AddrRange
}

// String implements fmt.Stringer.String.
func (w Window) String() string {
	return fmt.Sprintf("%-12s %v", w.Name, w.Range)
}

// Windows returns the fixed windows, lowest first.
func Windows() []Window {
	return []Window{
		{"heap", hostarch.AddrRange{Start: HeapStart, End: HeapEnd}},
		{"pagetables", hostarch.PageRange(PageTablesBase, PageTablesMaxPages)},
		{"bitmap", hostarch.AddrRange{Start: BitmapBase, End: BitmapBase + MaxSections*SectionBytes}},
		{"memmap", hostarch.PageRange(MemoryMapBase, MemoryMapMaxPages)},
		{"framebuffer", hostarch.PageRange(FramebufferBase, MaxFramebufferPages)},
		{"kernel", hostarch.AddrRange{Start: KernelBase, End: KernelBase + KernelSize}},
	}
}
