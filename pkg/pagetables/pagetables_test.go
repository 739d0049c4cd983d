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

package pagetables

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/physmem"
)

const (
	page = hostarch.PageSize

	// poolBase is where test pools start in the arena.
	poolBase hostarch.Addr = hostarch.MiB

	kernelAddr hostarch.Addr = 0xffff_eeee_8000_0000
)

type mapping struct {
	start    hostarch.Addr
	length   uint64
	physical hostarch.Addr
	opts     MapOpts
}

func newTables(t *testing.T, frames uint32) (*physmem.Sparse, *Pool, *PageTables) {
	t.Helper()
	mem := physmem.NewSparse(64 * hostarch.MiB)
	pool := NewPool(mem, poolBase, frames)
	pt, err := New(mem, pool)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return mem, pool, pt
}

func checkMappings(t *testing.T, pt *PageTables, m []mapping) {
	t.Helper()
	for _, want := range m {
		for off := uint64(0); off < want.length; off += page {
			addr := want.start + hostarch.Addr(off)
			physical, opts, ok := pt.Lookup(addr + 0x10)
			if !ok {
				t.Errorf("Lookup(%v) found no mapping", addr)
				continue
			}
			if wantPhys := want.physical + hostarch.Addr(off) + 0x10; physical != wantPhys {
				t.Errorf("Lookup(%v) = %v, want %v", addr, physical, wantPhys)
			}
			if diff := cmp.Diff(want.opts, opts); diff != "" {
				t.Errorf("Lookup(%v) opts mismatch (-want +got):\n%s", addr, diff)
			}
		}
	}
}

func TestMapLookup(t *testing.T) {
	_, pool, pt := newTables(t, 16)
	rw := MapOpts{AccessType: hostarch.ReadWrite, Global: true}
	rx := MapOpts{AccessType: hostarch.ReadExecute}
	if err := pt.Map(kernelAddr, 4*page, rx, 0x20_0000); err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	if err := pt.Map(0x40_0000, 2*page, rw, 0x40_0000); err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	checkMappings(t, pt, []mapping{
		{kernelAddr, 4 * page, 0x20_0000, rx},
		{0x40_0000, 2 * page, 0x40_0000, rw},
	})
	for _, addr := range []hostarch.Addr{kernelAddr + 4*page, 0x40_2000, 0, 0x0000_8000_0000_0000} {
		if physical, _, ok := pt.Lookup(addr); ok {
			t.Errorf("Lookup(%v) = %v, want no mapping", addr, physical)
		}
	}

	// A root plus three tables per mapping.
	if got := len(pt.Tables()); got != 7 {
		t.Errorf("len(Tables()) = %d, want 7", got)
	}
	if got := pool.Used(); got != 7 {
		t.Errorf("pool.Used() = %d, want 7", got)
	}
	if pt.Tables()[0] != pt.Root() {
		t.Errorf("root %v is not the lowest table %v", pt.Root(), pt.Tables()[0])
	}
}

func TestOpts(t *testing.T) {
	for _, opts := range []MapOpts{
		{AccessType: hostarch.Read},
		{AccessType: hostarch.ReadWrite, Global: true},
		{AccessType: hostarch.ReadExecute, User: true},
		{AccessType: hostarch.AnyAccess, MemoryType: hostarch.MemoryTypeWriteCombine},
		{AccessType: hostarch.ReadWrite, MemoryType: hostarch.MemoryTypeUncached},
	} {
		pte := leafPTE(0x1234_5000, opts)
		if !pte.Valid() || pte.Address() != 0x1234_5000 {
			t.Errorf("leafPTE(%v) = %v", opts, pte)
		}
		if diff := cmp.Diff(opts, pte.Opts()); diff != "" {
			t.Errorf("Opts() mismatch (-want +got):\n%s", diff)
		}
	}
	if got := PTE(0).String(); got != "-" {
		t.Errorf("String() = %q, want -", got)
	}
	if got, want := leafPTE(0x5000, MapOpts{AccessType: hostarch.ReadWrite, Global: true}).String(), "0x5000 rw- WB G"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMapNoAccess(t *testing.T) {
	_, pool, pt := newTables(t, 4)
	if err := pt.Map(0x1000, page, MapOpts{}, 0x1000); err == nil {
		t.Errorf("Map() with no access succeeded")
	}
	if got := pool.Used(); got != 1 {
		t.Errorf("pool.Used() = %d, want 1", got)
	}
}

func TestMapAlreadyMappedRollsBack(t *testing.T) {
	_, pool, pt := newTables(t, 16)
	opts := MapOpts{AccessType: hostarch.ReadWrite}
	if err := pt.Map(0x10_2000, page, opts, 0x80_0000); err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	used := pool.Used()

	err := pt.Map(0x10_0000, 4*page, opts, 0x90_0000)
	if !errors.Is(err, ErrAlreadyMapped) {
		t.Fatalf("Map() = %v, want %v", err, ErrAlreadyMapped)
	}
	for _, addr := range []hostarch.Addr{0x10_0000, 0x10_1000, 0x10_3000} {
		if _, _, ok := pt.Lookup(addr); ok {
			t.Errorf("Lookup(%v) found a mapping left behind", addr)
		}
	}
	checkMappings(t, pt, []mapping{{0x10_2000, page, 0x80_0000, opts}})
	if got := pool.Used(); got != used {
		t.Errorf("pool.Used() = %d, want %d", got, used)
	}
}

func TestMapPoolExhaustedRollsBack(t *testing.T) {
	// The root and two more tables; mapping needs three.
	_, pool, pt := newTables(t, 3)
	err := pt.Map(kernelAddr, page, MapOpts{AccessType: hostarch.Read}, 0x1000)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Map() = %v, want %v", err, ErrPoolExhausted)
	}
	if got := pool.Used(); got != 1 {
		t.Errorf("pool.Used() = %d, want 1", got)
	}
	if diff := cmp.Diff([]hostarch.Addr{pt.Root()}, pt.Tables()); diff != "" {
		t.Errorf("Tables() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapAcrossTables(t *testing.T) {
	_, pool, pt := newTables(t, 16)
	opts := MapOpts{AccessType: hostarch.ReadWrite}
	start := hostarch.Addr(hostarch.GiB - 2*page)
	if err := pt.Map(start, 4*page, opts, 0x30_0000); err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	checkMappings(t, pt, []mapping{{start, 4 * page, 0x30_0000, opts}})

	// The root, one PDPT, two PDs and two PTs.
	if got := pool.Used(); got != 6 {
		t.Errorf("pool.Used() = %d, want 6", got)
	}
}

func TestUnmapFreesTables(t *testing.T) {
	_, pool, pt := newTables(t, 16)
	opts := MapOpts{AccessType: hostarch.ReadWrite}
	if err := pt.Map(0x20_0000, 4*page, opts, 0x20_0000); err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	if err := pt.Map(0x40_0000, page, opts, 0x40_0000); err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	if got := pool.Used(); got != 5 {
		t.Fatalf("pool.Used() = %d, want 5", got)
	}

	// A partial unmap keeps the table.
	if got := pt.Unmap(0x20_0000, 2*page); got != 2 {
		t.Errorf("Unmap() = %d, want 2", got)
	}
	if got := pool.Used(); got != 5 {
		t.Errorf("pool.Used() = %d, want 5", got)
	}

	// Emptying the table through a partial range releases it.
	if got := pt.Unmap(0x20_2000, 2*page); got != 2 {
		t.Errorf("Unmap() = %d, want 2", got)
	}
	if got := pool.Used(); got != 4 {
		t.Errorf("pool.Used() = %d, want 4", got)
	}

	// Unmapping everything leaves the root.
	if got := pt.Unmap(0, hostarch.GiB); got != 1 {
		t.Errorf("Unmap() = %d, want 1", got)
	}
	if diff := cmp.Diff([]hostarch.Addr{pt.Root()}, pt.Tables()); diff != "" {
		t.Errorf("Tables() mismatch (-want +got):\n%s", diff)
	}
	if got := pool.Used(); got != 1 {
		t.Errorf("pool.Used() = %d, want 1", got)
	}
}

func TestBadRangePanics(t *testing.T) {
	_, _, pt := newTables(t, 4)
	for name, f := range map[string]func(){
		"unaligned":     func() { pt.Map(0x1001, page, MapOpts{AccessType: hostarch.Read}, 0) },
		"odd length":    func() { pt.Unmap(0x1000, 10) },
		"non-canonical": func() { pt.Map(0x0000_7fff_ffff_f000, 2*page, MapOpts{AccessType: hostarch.Read}, 0) },
		"physical":      func() { pt.Map(0x1000, page, MapOpts{AccessType: hostarch.Read}, 0x10) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatalf("no panic")
				}
				if s, ok := r.(string); !ok || !strings.Contains(s, "range") && !strings.Contains(s, "address") {
					t.Errorf("panic %v does not name the bad input", r)
				}
			}()
			f()
		})
	}
}

func TestRebase(t *testing.T) {
	mem, pool, pt := newTables(t, 8)
	rw := MapOpts{AccessType: hostarch.ReadWrite}
	if err := pt.Map(kernelAddr, 2*page, rw, 0x20_0000); err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	to := hostarch.Addr(8 * hostarch.MiB)
	physmem.Copy(mem, to, poolBase, 8*page)
	pt.Rebase(pool.Range(), to)

	if got, want := pt.Root(), to; got != want {
		t.Errorf("Root() = %v, want %v", got, want)
	}
	moved := hostarch.PageRange(to, 8)
	for _, table := range pt.Tables() {
		if !moved.Contains(table) {
			t.Errorf("table %v was not moved into %v", table, moved)
		}
	}
	checkMappings(t, pt, []mapping{{kernelAddr, 2 * page, 0x20_0000, rw}})
}
