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

package hostarch

import "testing"

func TestRounding(t *testing.T) {
	for _, tc := range []struct {
		addr Addr
		down Addr
		up   Addr
	}{
		{0, 0, 0},
		{1, 0, PageSize},
		{PageSize - 1, 0, PageSize},
		{PageSize, PageSize, PageSize},
		{0x10_0000_0fff, 0x10_0000_0000, 0x10_0000_1000},
	} {
		if got := tc.addr.RoundDown(); got != tc.down {
			t.Errorf("%v.RoundDown() = %v, want %v", tc.addr, got, tc.down)
		}
		if got := tc.addr.MustRoundUp(); got != tc.up {
			t.Errorf("%v.RoundUp() = %v, want %v", tc.addr, got, tc.up)
		}
	}
}

func TestRoundUpWraps(t *testing.T) {
	if _, ok := Addr(^uint64(0)).RoundUp(); ok {
		t.Errorf("RoundUp of the top address should wrap")
	}
}

func TestPagesFor(t *testing.T) {
	for _, tc := range []struct {
		size uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{PageSize, 1},
		{PageSize + 1, 2},
		{MiB, 256},
	} {
		if got := PagesFor(tc.size); got != tc.want {
			t.Errorf("PagesFor(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestAddrRange(t *testing.T) {
	ar := PageRange(0x1000, 2)
	if ar.Length() != 2*PageSize {
		t.Errorf("Length() = %#x, want %#x", ar.Length(), 2*PageSize)
	}
	if !ar.Contains(0x2fff) || ar.Contains(0x3000) {
		t.Errorf("Contains gave the wrong answer for %v", ar)
	}
	if !ar.Overlaps(AddrRange{0x2000, 0x5000}) || ar.Overlaps(AddrRange{0x3000, 0x4000}) {
		t.Errorf("Overlaps gave the wrong answer for %v", ar)
	}
}

func TestAccessTypeString(t *testing.T) {
	if got := ReadWrite.String(); got != "rw-" {
		t.Errorf("ReadWrite.String() = %q", got)
	}
	if NoAccess.Any() {
		t.Errorf("NoAccess.Any() = true")
	}
}

func TestMemoryTypePATIndex(t *testing.T) {
	for mt := MemoryType(0); mt < NumMemoryTypes; mt++ {
		if got := MemoryTypeForPATIndex(mt.PATIndex()); got != mt {
			t.Errorf("MemoryTypeForPATIndex(%v.PATIndex()) = %v", mt, got)
		}
	}
	if got := MemoryTypeForPATIndex(2); got != MemoryTypeUncached {
		t.Errorf("UC- reads back as %v, want %v", got, MemoryTypeUncached)
	}
	if got := MemoryType(9).String(); got != "MemoryType(9)" {
		t.Errorf("String() = %q for an unknown type", got)
	}
}
