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
	"sort"
	"time"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
)

// InitFromMemoryMap rebuilds the tree from a raw memory map.
//
// Every frame starts out free. Then the frames of every region whose type
// is not reclaimable (Conventional, BootServicesCode, BootServicesData) are
// marked used, as are the holes between regions and the tail from the end
// of the last region to the end of the backed sections, so that addresses
// that are not RAM never get handed out.
func (t *Tree) InitFromMemoryMap(entries []bootinfo.Entry) {
	t.Reset()

	warn := log.RateLimitedLogger(log.Log(), time.Second, 4)
	sorted := make([]bootinfo.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PhysStart < sorted[j].PhysStart })

	var covered hostarch.Addr
	for _, e := range sorted {
		r := e.Range()
		if r.End > t.Limit() {
			warn.Warningf("pmm: region %v extends past the tracked memory end %v", r, t.Limit())
		}
		if r.Start > covered {
			log.Debugf("pmm: hole %v", hostarch.AddrRange{Start: covered, End: r.Start})
			t.MarkRangeUsed(hostarch.AddrRange{Start: covered, End: r.Start})
		}
		if !e.Type.Reclaimable() {
			t.MarkRangeUsed(r)
		}
		if r.End > covered {
			covered = r.End
		}
	}
	if covered < t.Limit() {
		t.MarkRangeUsed(hostarch.AddrRange{Start: covered, End: t.Limit()})
	}
	t.resume = false

	s := t.Stats()
	log.Infof("pmm: %d sections, %d of %d frames free", s.Sections, s.Free, s.Frames)
}
