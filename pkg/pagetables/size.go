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
	"sort"

	"dogos.dev/dogos/pkg/hostarch"
)

// TablesFor returns the number of tables, root included, needed to map
// ranges into an empty tree.
func TablesFor(ranges []hostarch.AddrRange) uint64 {
	n := uint64(1)
	for level := 1; level < levels; level++ {
		n += blocksOf(ranges, levelShift(level))
	}
	return n
}

// blocksOf counts the distinct aligned blocks of 1<<shift bytes touched by
// ranges.
func blocksOf(ranges []hostarch.AddrRange, shift uint) uint64 {
	type span struct{ first, last uint64 }
	spans := make([]span, 0, len(ranges))
	for _, r := range ranges {
		if r.Length() == 0 {
			continue
		}
		spans = append(spans, span{uint64(r.Start >> shift), uint64((r.End - 1) >> shift)})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].first < spans[j].first })

	var n uint64
	for i := 0; i < len(spans); {
		cur := spans[i]
		for i++; i < len(spans) && spans[i].first <= cur.last+1; i++ {
			if spans[i].last > cur.last {
				cur.last = spans[i].last
			}
		}
		n += cur.last - cur.first + 1
	}
	return n
}

// PoolFrames returns the number of frames a Pool needs to map ranges plus a
// mapping of the pool itself at window.
func PoolFrames(ranges []hostarch.AddrRange, window hostarch.Addr) uint64 {
	all := make([]hostarch.AddrRange, len(ranges), len(ranges)+1)
	copy(all, ranges)
	n := TablesFor(all)
	for {
		m := TablesFor(append(all, hostarch.PageRange(window, n)))
		if m <= n {
			return n
		}
		n = m
	}
}
