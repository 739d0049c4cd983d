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

package pmm

import (
	"errors"
	"testing"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
)

func TestInitFromMemoryMap(t *testing.T) {
	tr := newTree(t, 1)
	tr.MarkUsed(0x2000)
	tr.InitFromMemoryMap([]bootinfo.Entry{
		{Type: bootinfo.Conventional, PhysStart: 0, Pages: 256},
		{Type: bootinfo.Reserved, PhysStart: 0x10_0000, Pages: 16},
	})
	mustVerify(t, tr)
	for p := hostarch.Addr(0); p < 0x10_0000; p += frame {
		if tr.IsUsed(p) {
			t.Fatalf("frame %v of the conventional region is used", p)
		}
	}
	for p := hostarch.Addr(0x10_0000); p < 0x11_0000; p += frame {
		if !tr.IsUsed(p) {
			t.Fatalf("frame %v of the reserved region is free", p)
		}
	}
	for _, p := range []hostarch.Addr{0x11_0000, 0x200_0000, hostarch.GiB - frame} {
		if !tr.IsUsed(p) {
			t.Errorf("frame %v past the end of the map is free", p)
		}
	}
	if got := tr.FreeFrames(); got != 256 {
		t.Errorf("FreeFrames() = %d, want 256", got)
	}
}

func TestInitOnlyHandsOutReclaimableMemory(t *testing.T) {
	tr := newTree(t, 1)
	// Unsorted on purpose, with a hole at [0x8000, 0xa000).
	tr.InitFromMemoryMap([]bootinfo.Entry{
		{Type: bootinfo.LoaderData, PhysStart: 0x4000, Pages: 2},
		{Type: bootinfo.BootServicesCode, PhysStart: 0, Pages: 2},
		{Type: bootinfo.BootServicesData, PhysStart: 0x2000, Pages: 2},
		{Type: bootinfo.RuntimeServicesData, PhysStart: 0x6000, Pages: 1},
		{Type: bootinfo.Conventional, PhysStart: 0x7000, Pages: 1},
		{Type: bootinfo.Conventional, PhysStart: 0xa000, Pages: 2},
		{Type: bootinfo.ACPIReclaim, PhysStart: 0xc000, Pages: 1},
	})
	mustVerify(t, tr)

	var got []hostarch.Addr
	for {
		a, err := tr.AllocateNext()
		if errors.Is(err, ErrNoMemory) {
			break
		}
		if err != nil {
			t.Fatalf("AllocateNext: %v", err)
		}
		got = append(got, a)
	}
	want := []hostarch.Addr{0, 0x1000, 0x2000, 0x3000, 0x7000, 0xa000, 0xb000}
	if len(got) != len(want) {
		t.Fatalf("allocated %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocated %v, want %v", got, want)
		}
	}
}

func TestInitResetsPreviousState(t *testing.T) {
	tr := newTree(t, 1)
	entries := []bootinfo.Entry{{Type: bootinfo.Conventional, PhysStart: 0, Pages: 128}}
	tr.InitFromMemoryMap(entries)
	tr.AllocateContiguous(100)
	tr.InitFromMemoryMap(entries)
	if got := tr.FreeFrames(); got != 128 {
		t.Errorf("FreeFrames() = %d after re-initialization, want 128", got)
	}
	mustVerify(t, tr)
}

func TestInitIgnoresRegionsPastTheTree(t *testing.T) {
	tr := newTree(t, 1)
	tr.InitFromMemoryMap([]bootinfo.Entry{
		{Type: bootinfo.Conventional, PhysStart: 0, Pages: 16},
		{Type: bootinfo.MMIO, PhysStart: 0xfee0_0000_0000, Pages: 1},
	})
	mustVerify(t, tr)
	if got := tr.FreeFrames(); got != 16 {
		t.Errorf("FreeFrames() = %d, want 16", got)
	}
}
