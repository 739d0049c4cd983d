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

// Package ring0 models the privileged CPU state that address translation
// depends on: the control registers, the page table root in CR3 and the TLB
// caching translations through it.
//
// The CPU translates through page tables held in a physmem.Memory, so the
// boot stage and kernel can be exercised against an arena exactly as they
// would run against RAM.
package ring0

import (
	"fmt"

	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/physmem"
)

// Control register bits.
const (
	_CR0_PE = 1 << 0
	_CR0_ET = 1 << 4
	_CR0_NE = 1 << 5
	_CR0_WP = 1 << 16
	_CR0_PG = 1 << 31

	_CR4_PAE = 1 << 5
	_CR4_PGE = 1 << 7

	_EFER_LME = 0x100
	_EFER_LMA = 0x400
	_EFER_NX  = 0x800
)

// Registers is the general purpose register state at a jump.
type Registers struct {
	RIP uint64
	RSP uint64
	RDI uint64
	RSI uint64
}

// CPU is a single processor.
//
// A CPU is not safe for concurrent use.
type CPU struct {
	// mem is physical memory.
	mem physmem.Memory

	// cr3 is the physical address of the root table.
	cr3 hostarch.Addr

	// regs are the registers set by the last Jump.
	regs Registers

	// tlb caches translations by virtual page.
	tlb map[hostarch.Addr]tlbEntry

	// cr3Loads and tlbFlushes count CR3 writes and TLB invalidations.
	cr3Loads   uint64
	tlbFlushes uint64
}

// NewCPU returns a CPU over physical memory mem. Paging is off until the
// first LoadCR3.
func NewCPU(mem physmem.Memory) *CPU {
	return &CPU{
		mem: mem,
		tlb: make(map[hostarch.Addr]tlbEntry),
	}
}

// Memory returns the physical memory of the CPU.
func (c *CPU) Memory() physmem.Memory {
	return c.mem
}

// CR0 returns the CPU's CR0 value.
func (c *CPU) CR0() uint64 {
	return _CR0_PE | _CR0_PG | _CR0_WP | _CR0_ET | _CR0_NE
}

// CR4 returns the CPU's CR4 value.
func (c *CPU) CR4() uint64 {
	return _CR4_PAE | _CR4_PGE
}

// EFER returns the CPU's EFER value.
func (c *CPU) EFER() uint64 {
	return _EFER_LME | _EFER_LMA | _EFER_NX
}

// CR3 returns the physical address of the active root table.
func (c *CPU) CR3() hostarch.Addr {
	return c.cr3
}

// LoadCR3 switches to the page tables rooted at root and flushes
// non-global translations. Since nothing here distinguishes global
// entries, everything is flushed.
func (c *CPU) LoadCR3(root hostarch.Addr) {
	if !root.IsPageAligned() || root == 0 {
		panic(fmt.Sprintf("invalid root table %v", root))
	}
	c.cr3 = root
	c.cr3Loads++
	c.FlushTLB()
}

// FlushTLB drops every cached translation.
func (c *CPU) FlushTLB() {
	clear(c.tlb)
	c.tlbFlushes++
}

// Invlpg drops the cached translation of the page containing addr.
func (c *CPU) Invlpg(addr hostarch.Addr) {
	delete(c.tlb, addr.RoundDown())
}

// Registers returns the registers set by the last Jump.
func (c *CPU) Registers() Registers {
	return c.regs
}

// Jump transfers control to entry with arg as the single argument, after
// checking that entry is mapped executable. All other register state is
// cleared.
func (c *CPU) Jump(entry, arg hostarch.Addr) error {
	if _, err := c.Translate(entry, hostarch.AccessType{Execute: true}); err != nil {
		return fmt.Errorf("jumping to %v: %w", entry, err)
	}
	c.regs = Registers{RIP: uint64(entry), RDI: uint64(arg)}
	return nil
}

// CPUStats are counters of a CPU.
type CPUStats struct {
	CR3Loads   uint64
	TLBFlushes uint64
	TLBEntries int
}

// Stats returns the counters.
func (c *CPU) Stats() CPUStats {
	return CPUStats{
		CR3Loads:   c.cr3Loads,
		TLBFlushes: c.tlbFlushes,
		TLBEntries: len(c.tlb),
	}
}

// IsCanonical indicates whether addr is canonical on amd64.
func IsCanonical(addr hostarch.Addr) bool {
	return addr <= 0x00007fffffffffff || addr >= 0xffff800000000000
}
