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

package bits

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mask(is ...int) uint64 {
	var w uint64
	for _, i := range is {
		w |= MaskOf64(i)
	}
	return w
}

func TestFirstZeroOne(t *testing.T) {
	for _, tc := range []struct {
		w        uint64
		from     int
		wantZero int
		wantOne  int
	}{
		{0, 0, 0, 64},
		{0, 5, 5, 64},
		{Full64, 0, 64, 0},
		{Full64, 63, 64, 63},
		{mask(0, 1, 2), 0, 3, 0},
		{mask(0, 1, 2), 1, 3, 1},
		{mask(0, 1, 2), 3, 3, 64},
		{mask(4, 40), 5, 5, 40},
		{Full64 >> 1, 0, 63, 0},
		{Full64 >> 1, 63, 63, 64},
		{Full64, 64, 64, 64},
	} {
		if got := FirstZero64(tc.w, tc.from); got != tc.wantZero {
			t.Errorf("FirstZero64(%#x, %d) = %d, want %d", tc.w, tc.from, got, tc.wantZero)
		}
		if got := FirstOne64(tc.w, tc.from); got != tc.wantOne {
			t.Errorf("FirstOne64(%#x, %d) = %d, want %d", tc.w, tc.from, got, tc.wantOne)
		}
	}
}

func TestRangeMask64(t *testing.T) {
	for _, tc := range []struct {
		start, n int
		want     uint64
	}{
		{3, 2, mask(3, 4)},
		{0, 64, Full64},
		{0, 100, Full64},
		{60, 10, mask(60, 61, 62, 63)},
		{5, 0, 0},
		{64, 1, 0},
	} {
		if got := RangeMask64(tc.start, tc.n); got != tc.want {
			t.Errorf("RangeMask64(%d, %d) = %#x, want %#x", tc.start, tc.n, got, tc.want)
		}
	}
}

func TestForEachSetBit64(t *testing.T) {
	for _, want := range [][]int{
		{},
		{0},
		{63},
		{1, 3, 5},
		{0, 31, 63},
	} {
		w := mask(want...)
		got := []int{}
		ForEachSetBit64(w, func(i int) { got = append(got, i) })
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ForEachSetBit64(%#x) mismatch (-want +got):\n%s", w, diff)
		}
		if n := OnesCount64(w); n != len(want) {
			t.Errorf("OnesCount64(%#x) = %d, want %d", w, n, len(want))
		}
	}
}

func TestIsAnyOn64(t *testing.T) {
	if !IsAnyOn64(mask(1, 63), mask(63)) {
		t.Errorf("IsAnyOn64 missed bit 63")
	}
	if IsAnyOn64(mask(1, 63), mask(0, 62)) {
		t.Errorf("IsAnyOn64 reported disjoint words as overlapping")
	}
}
