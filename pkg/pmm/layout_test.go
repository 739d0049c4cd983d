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
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dogos.dev/dogos/pkg/hostarch"
)

func TestDecompose(t *testing.T) {
	for _, tc := range []struct {
		addr hostarch.Addr
		want Index
	}{
		{0, Index{}},
		{0x1000, Index{L1: 1}},
		{0x40000, Index{L2: 1}},
		{16 * hostarch.MiB, Index{L3: 1}},
		{hostarch.GiB, Index{L4: 1}},
		{64 * hostarch.GiB, Index{L5: 1}},
		{0x12345, Index{L1: 0x12}},
		{Ceiling - hostarch.PageSize, Index{63, 63, 63, 63, 63}},
	} {
		got, ok := Decompose(tc.addr)
		if !ok {
			t.Errorf("Decompose(%v) rejected", tc.addr)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Decompose(%v) mismatch (-want +got):\n%s", tc.addr, diff)
		}
	}
	for _, addr := range []hostarch.Addr{Ceiling, Ceiling + 64*hostarch.GiB - hostarch.PageSize, ^hostarch.Addr(0)} {
		if _, ok := Decompose(addr); ok {
			t.Errorf("Decompose(%v) accepted an address past the ceiling", addr)
		}
	}
}

func TestIndexAddrRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		addr := hostarch.Addr(r.Int63n(int64(Ceiling))).RoundDown()
		idx, ok := Decompose(addr)
		if !ok {
			t.Fatalf("Decompose(%v) rejected", addr)
		}
		if got := idx.Addr(); got != addr {
			t.Fatalf("Decompose(%v).Addr() = %v", addr, got)
		}
	}
}

func TestWordOffset(t *testing.T) {
	for _, tc := range []struct {
		level int
		idx   Index
		want  uint64
	}{
		{5, Index{L5: 7, L4: 3}, 0x8800},
		{4, Index{}, 0x8808},
		{4, Index{L5: 1}, 0x8810},
		{4, Index{L5: 63}, 0x8a00},
		{3, Index{}, 0},
		{3, Index{L4: 1}, 0x9000},
		{3, Index{L5: 1}, 64 * 0x9000},
		{2, Index{}, 8},
		{2, Index{L3: 1}, 8 + 0x208},
		{2, Index{L3: 63}, 0x8000},
		{1, Index{}, 16},
		{1, Index{L2: 1}, 24},
		{1, Index{L3: 63, L2: 63}, 0x8200},
		{1, Index{L4: 1, L3: 1, L2: 2, L1: 40}, 0x9000 + 8 + 0x208 + 8 + 16},
	} {
		if got := WordOffset(tc.level, tc.idx); got != tc.want {
			t.Errorf("WordOffset(%d, %v) = %#x, want %#x", tc.level, tc.idx, got, tc.want)
		}
	}
}

func TestWordOffsetsDisjoint(t *testing.T) {
	seen := make(map[uint64]string)
	add := func(off uint64, what string) {
		if off%8 != 0 || off >= sectionBytes {
			t.Fatalf("%s at %#x is misaligned or outside the section", what, off)
		}
		if prev, ok := seen[off]; ok {
			t.Fatalf("%s and %s share offset %#x", prev, what, off)
		}
		seen[off] = what
	}
	add(WordOffset(5, Index{}), "level 5")
	for g := 0; g < 64; g++ {
		add(WordOffset(4, Index{L5: g}), fmt.Sprintf("level 4 word %d", g))
	}
	add(WordOffset(3, Index{}), "level 3")
	for i3 := 0; i3 < 64; i3++ {
		add(WordOffset(2, Index{L3: i3}), fmt.Sprintf("level 2 word %d", i3))
		for i2 := 0; i2 < 64; i2++ {
			add(WordOffset(1, Index{L3: i3, L2: i2}), fmt.Sprintf("level 1 word %d/%d", i3, i2))
		}
	}
}

func TestIndexOutOfRangePanics(t *testing.T) {
	for _, tc := range []struct {
		idx  Index
		want string
	}{
		{Index{L1: 64}, "level 1 index 64"},
		{Index{L2: 64}, "level 2 index 64"},
		{Index{L3: -1}, "level 3 index -1"},
		{Index{L4: 70}, "level 4 index 70"},
	} {
		func() {
			defer func() {
				r := recover()
				if got := fmt.Sprint(r); !strings.Contains(got, tc.want) {
					t.Errorf("WordOffset(1, %v) panic = %q, want %q", tc.idx, got, tc.want)
				}
			}()
			WordOffset(1, tc.idx)
		}()
	}
}
