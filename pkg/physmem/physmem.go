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

// Package physmem provides the physical memory arenas that stand in for RAM.
//
// Everything that would touch physical memory on real hardware (the bitmap
// tree, page tables, the raw memory map, the kernel parameter block) goes
// through the Memory interface, so the same code runs against a sparse
// in-process arena in tests and against an mmap-backed arena in the
// simulator.
//
// Accesses outside the arena, and unaligned word accesses, are machine
// checks: they panic.
package physmem

import (
	"fmt"

	"dogos.dev/dogos/pkg/hostarch"
)

// Memory is a byte-addressable physical memory arena. Words are little
// endian.
type Memory interface {
	// Limit returns the first physical address past the arena.
	Limit() hostarch.Addr

	// Read64 reads the 8-byte aligned word at pa.
	Read64(pa hostarch.Addr) uint64

	// Write64 writes the 8-byte aligned word at pa.
	Write64(pa hostarch.Addr, v uint64)

	// ReadAt fills p from the bytes starting at pa.
	ReadAt(p []byte, pa hostarch.Addr)

	// WriteAt stores p at the bytes starting at pa.
	WriteAt(p []byte, pa hostarch.Addr)

	// Zero clears length bytes starting at pa.
	Zero(pa hostarch.Addr, length uint64)
}

// Copy copies length bytes from src to dst within m. The ranges must not
// overlap.
func Copy(m Memory, dst, src hostarch.Addr, length uint64) {
	var buf [hostarch.PageSize]byte
	for length > 0 {
		n := uint64(len(buf))
		if length < n {
			n = length
		}
		m.ReadAt(buf[:n], src)
		m.WriteAt(buf[:n], dst)
		dst += hostarch.Addr(n)
		src += hostarch.Addr(n)
		length -= n
	}
}

// checkRange panics unless [pa, pa+length) lies within [0, limit).
func checkRange(pa hostarch.Addr, length uint64, limit hostarch.Addr) {
	end, ok := pa.AddLength(length)
	if !ok || end > limit {
		panic(fmt.Sprintf("physical access %v outside of arena [0, %v)", hostarch.AddrRange{Start: pa, End: end}, limit))
	}
}

// checkWord panics unless pa is an 8-byte aligned word within the arena.
func checkWord(pa hostarch.Addr, limit hostarch.Addr) {
	if pa&7 != 0 {
		panic(fmt.Sprintf("unaligned word access at %v", pa))
	}
	checkRange(pa, 8, limit)
}
