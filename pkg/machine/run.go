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

package machine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"dogos.dev/dogos/pkg/boot"
	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/firmware"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/physmem"
	"dogos.dev/dogos/pkg/ring0"
	"dogos.dev/dogos/pkg/vmm"
)

// ErrHalted is returned when the machine hit an invariant violation and
// halted.
var ErrHalted = errors.New("machine halted")

// ErrClobbered is returned when the kernel wrote to memory the firmware
// still owns after the handoff.
var ErrClobbered = errors.New("firmware memory clobbered")

// haltOpcode fills the kernel image.
const haltOpcode = 0xf4

// Report is the state of a machine after Run.
type Report struct {
	Name string `json:"name"`

	// MemoryMap is the final firmware memory map.
	MemoryMap []bootinfo.Entry `json:"-"`

	Regions     int    `json:"regions"`
	Sections    int    `json:"sections"`
	Frames      uint64 `json:"frames"`
	FreeFrames  uint64 `json:"free_frames"`
	TableFrames uint32 `json:"table_frames"`
	TablesUsed  uint32 `json:"tables_used"`

	HeapEnd     hostarch.Addr `json:"heap_end"`
	HeapPages   uint64        `json:"heap_pages"`
	Relocations int           `json:"relocations"`

	// PreservedPages is the number of firmware-owned pages checked
	// unchanged after the kernel ran. It is zero for mapped arenas, which
	// are not snapshotted.
	PreservedPages uint64 `json:"preserved_pages"`

	CR3Loads   uint64 `json:"cr3_loads"`
	TLBFlushes uint64 `json:"tlb_flushes"`
}

// UsedFrames returns the number of tracked frames in use.
func (r *Report) UsedFrames() uint64 {
	return r.Frames - r.FreeFrames
}

// WriteTo writes r as a table.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "machine\t%s\n", r.Name)
	fmt.Fprintf(tw, "memory map\t%d regions\n", r.Regions)
	fmt.Fprintf(tw, "frames\t%d tracked in %d sections, %d free, %d used\n", r.Frames, r.Sections, r.FreeFrames, r.UsedFrames())
	fmt.Fprintf(tw, "page tables\t%d of %d frames\n", r.TablesUsed, r.TableFrames)
	fmt.Fprintf(tw, "heap\t%d pages, ends at %v\n", r.HeapPages, r.HeapEnd)
	fmt.Fprintf(tw, "relocations\t%d\n", r.Relocations)
	fmt.Fprintf(tw, "firmware memory\t%d pages preserved\n", r.PreservedPages)
	fmt.Fprintf(tw, "cpu\t%d CR3 loads, %d TLB flushes\n", r.CR3Loads, r.TLBFlushes)
	tw.Flush()
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// newArena returns the physical memory of d and a function releasing it.
func newArena(d *Description) (physmem.Memory, func(), error) {
	size, err := d.MemorySize()
	if err != nil {
		return nil, nil, err
	}
	switch d.Arena {
	case ArenaMapped:
		m, err := physmem.NewMapped(size)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { m.Close() }, nil
	default:
		return physmem.NewSparse(size), func() {}, nil
	}
}

// Firmware returns simulated firmware for d over mem.
func Firmware(d *Description, mem physmem.Memory) (*firmware.Simulated, error) {
	entries, err := d.Entries()
	if err != nil {
		return nil, err
	}
	fw, err := firmware.NewSimulated(mem, entries, d.FirmwareFramebuffer(), hostarch.Addr(d.RuntimeServices))
	if err != nil {
		return nil, err
	}
	fw.InjectMapChanges(d.MapChangesAtExit)
	return fw, nil
}

// Run boots d, starts its kernel and grows the kernel heap as d asks. An
// invariant violation halts the machine and Run returns ErrHalted.
func Run(ctx context.Context, d *Description) (report *Report, err error) {
	mem, release, err := newArena(d)
	if err != nil {
		return nil, fmt.Errorf("machine %q: creating memory: %w", d.Name, err)
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			log.Warningf("Machine %q halted: %v", d.Name, r)
			report, err = nil, fmt.Errorf("machine %q: %w: %v", d.Name, ErrHalted, r)
		}
	}()

	fw, err := Firmware(d, mem)
	if err != nil {
		return nil, fmt.Errorf("machine %q: %w", d.Name, err)
	}
	cpu := ring0.NewCPU(mem)
	kernel := boot.Kernel{
		Image: bytes.Repeat([]byte{haltOpcode}, int(d.Kernel.Size)),
		Entry: d.Kernel.Entry,
	}
	res, err := boot.Boot(fw, cpu, kernel)
	if err != nil {
		return nil, fmt.Errorf("machine %q: boot: %w", d.Name, err)
	}

	// The kernel must leave firmware-owned memory alone; keep a copy of
	// it as the handoff left it.
	var handoff *physmem.Sparse
	if s, ok := mem.(*physmem.Sparse); ok {
		handoff = s.Clone()
	}

	m, err := vmm.New(cpu, res.Params)
	if err != nil {
		return nil, fmt.Errorf("machine %q: kernel: %w", d.Name, err)
	}
	var heap uint64
	for _, pages := range d.Heap {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := m.ExpandKernelHeap(pages); err != nil {
			return nil, fmt.Errorf("machine %q: growing the heap by %d pages after %d: %w", d.Name, pages, heap, err)
		}
		heap += pages
	}
	if err := m.Frames().Verify(); err != nil {
		panic(fmt.Sprintf("frame allocator corrupted: %v", err))
	}

	var preserved uint64
	if handoff != nil {
		if preserved, err = checkFirmwareRegions(handoff, mem, res.MemoryMap); err != nil {
			return nil, fmt.Errorf("machine %q: %w", d.Name, err)
		}
	}

	stats := m.Frames().Stats()
	cs := cpu.Stats()
	return &Report{
		Name:           d.Name,
		MemoryMap:      res.MemoryMap,
		Regions:        len(res.MemoryMap),
		Sections:       stats.Sections,
		Frames:         stats.Frames,
		FreeFrames:     stats.Free,
		TableFrames:    m.Pool().Frames(),
		TablesUsed:     m.Pool().Used(),
		HeapEnd:        m.HeapEnd(),
		HeapPages:      heap,
		Relocations:    m.Relocations(),
		PreservedPages: preserved,
		CR3Loads:       cs.CR3Loads,
		TLBFlushes:     cs.TLBFlushes,
	}, nil
}

// firmwareOwned reports whether memory of type t stays with the firmware
// after the handoff.
func firmwareOwned(t bootinfo.MemoryType) bool {
	switch t {
	case bootinfo.RuntimeServicesCode, bootinfo.RuntimeServicesData,
		bootinfo.ACPIReclaim, bootinfo.ACPINonVolatile,
		bootinfo.PALCode, bootinfo.Persistent:
		return true
	default:
		return false
	}
}

// checkFirmwareRegions compares every firmware-owned region of entries in
// mem against before and returns the number of pages compared.
func checkFirmwareRegions(before, mem physmem.Memory, entries []bootinfo.Entry) (uint64, error) {
	var pages uint64
	want := make([]byte, hostarch.PageSize)
	got := make([]byte, hostarch.PageSize)
	for _, e := range entries {
		if !firmwareOwned(e.Type) {
			continue
		}
		for pa := e.PhysStart; pa < e.Range().End; pa += hostarch.PageSize {
			before.ReadAt(want, pa)
			mem.ReadAt(got, pa)
			if !bytes.Equal(want, got) {
				log.Warningf("Firmware page %v of %v region %v changed after the handoff", pa, e.Type, e.Range())
				return pages, fmt.Errorf("%w: %v page at %v", ErrClobbered, e.Type, pa)
			}
			pages++
		}
	}
	return pages, nil
}
