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

// Package bits contains helpers for the 64-bit words that make up every
// level of the frame bitmap tree and the page-table pool bitmap.
package bits

import "math/bits"

// Full64 is a word with every bit set.
const Full64 = ^uint64(0)

// MaskOf64 returns a word with only bit i set.
func MaskOf64(i int) uint64 {
	return uint64(1) << uint(i)
}

// IsAnyOn64 reports whether w and mask share a set bit.
func IsAnyOn64(w, mask uint64) bool {
	return w&mask != 0
}

// RangeMask64 returns a word with the n bits starting at start set. Bits past
// 63 are dropped.
func RangeMask64(start, n int) uint64 {
	switch {
	case n <= 0 || start >= 64:
		return 0
	case n >= 64:
		return Full64 << uint(start)
	default:
		return (MaskOf64(n) - 1) << uint(start)
	}
}

// FirstZero64 returns the index of the first clear bit of w at or above
// from, or 64 if there is none.
func FirstZero64(w uint64, from int) int {
	return FirstOne64(^w, from)
}

// FirstOne64 returns the index of the first set bit of w at or above from,
// or 64 if there is none.
func FirstOne64(w uint64, from int) int {
	if from >= 64 {
		return 64
	}
	return bits.TrailingZeros64(w &^ (MaskOf64(from) - 1))
}

// OnesCount64 returns the number of set bits in w.
func OnesCount64(w uint64) int {
	return bits.OnesCount64(w)
}

// ForEachSetBit64 calls f with the index of every set bit of w, lowest
// first.
func ForEachSetBit64(w uint64, f func(i int)) {
	for w != 0 {
		i := bits.TrailingZeros64(w)
		f(i)
		w &= w - 1
	}
}
