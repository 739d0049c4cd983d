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

package ring0

import (
	"fmt"

	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/pagetables"
	"dogos.dev/dogos/pkg/physmem"
)

// PageFault is a failed translation.
type PageFault struct {
	Addr   hostarch.Addr
	Access hostarch.AccessType
}

// Error implements error.Error.
func (f *PageFault) Error() string {
	return fmt.Sprintf("page fault at %v (%v)", f.Addr, f.Access)
}

type tlbEntry struct {
	physical hostarch.Addr
	access   hostarch.AccessType
}

// Translate returns the physical address addr maps to through CR3, if the
// mapping permits the access.
func (c *CPU) Translate(addr hostarch.Addr, at hostarch.AccessType) (hostarch.Addr, error) {
	if c.cr3 == 0 || !IsCanonical(addr) {
		return 0, &PageFault{Addr: addr, Access: at}
	}
	page := addr.RoundDown()
	e, ok := c.tlb[page]
	if !ok {
		physical, opts, found := pagetables.NewWithRoot(c.mem, nil, c.cr3).Lookup(page)
		if !found {
			return 0, &PageFault{Addr: addr, Access: at}
		}
		e = tlbEntry{physical: physical, access: opts.AccessType}
		c.tlb[page] = e
	}
	if (at.Write && !e.access.Write) || (at.Execute && !e.access.Execute) {
		return 0, &PageFault{Addr: addr, Access: at}
	}
	return e.physical + hostarch.Addr(addr.PageOffset()), nil
}

// Virtual returns a view of the virtual address space of c as a
// physmem.Memory. Accesses are translated through CR3; an access that
// faults panics with the *PageFault, as nothing can handle it.
func (c *CPU) Virtual() physmem.Memory {
	return virtualMemory{c}
}

type virtualMemory struct {
	c *CPU
}

func (v virtualMemory) translate(addr hostarch.Addr, at hostarch.AccessType) hostarch.Addr {
	pa, err := v.c.Translate(addr, at)
	if err != nil {
		panic(err)
	}
	return pa
}

// Limit implements physmem.Memory.Limit.
func (v virtualMemory) Limit() hostarch.Addr {
	return ^hostarch.Addr(0)
}

// Read64 implements physmem.Memory.Read64.
func (v virtualMemory) Read64(addr hostarch.Addr) uint64 {
	return v.c.mem.Read64(v.translate(addr, hostarch.Read))
}

// Write64 implements physmem.Memory.Write64.
func (v virtualMemory) Write64(addr hostarch.Addr, val uint64) {
	v.c.mem.Write64(v.translate(addr, hostarch.ReadWrite), val)
}

// forEachPage calls fn for each page-bounded chunk of [addr, addr+length).
func forEachPage(addr hostarch.Addr, length uint64, fn func(addr hostarch.Addr, off, n uint64)) {
	var off uint64
	for off < length {
		n := min(hostarch.PageSize-addr.PageOffset(), length-off)
		fn(addr, off, n)
		addr += hostarch.Addr(n)
		off += n
	}
}

// ReadAt implements physmem.Memory.ReadAt.
func (v virtualMemory) ReadAt(p []byte, addr hostarch.Addr) {
	forEachPage(addr, uint64(len(p)), func(addr hostarch.Addr, off, n uint64) {
		v.c.mem.ReadAt(p[off:off+n], v.translate(addr, hostarch.Read))
	})
}

// WriteAt implements physmem.Memory.WriteAt.
func (v virtualMemory) WriteAt(p []byte, addr hostarch.Addr) {
	forEachPage(addr, uint64(len(p)), func(addr hostarch.Addr, off, n uint64) {
		v.c.mem.WriteAt(p[off:off+n], v.translate(addr, hostarch.ReadWrite))
	})
}

// Zero implements physmem.Memory.Zero.
func (v virtualMemory) Zero(addr hostarch.Addr, length uint64) {
	forEachPage(addr, length, func(addr hostarch.Addr, _, n uint64) {
		v.c.mem.Zero(v.translate(addr, hostarch.ReadWrite), n)
	})
}
