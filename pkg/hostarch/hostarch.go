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

// Package hostarch describes the x86-64 address space as seen by the boot
// stage and the kernel: page sizes, addresses and access permissions.
package hostarch

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page (and of a physical frame).
	PageSize = 1 << PageShift

	// HugePageShift is the binary log of the 2 MiB page size.
	HugePageShift = 21

	// HugePageSize is the 2 MiB page size. It is only used to reason about
	// page-table coverage; mappings are always made with 4 KiB pages.
	HugePageSize = 1 << HugePageShift

	// EntriesPerTable is the number of entries in a page table page.
	EntriesPerTable = PageSize / 8
)

// Byte size units.
const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30
	TiB = 1 << 40
)

// PagesFor returns the number of pages needed to hold size bytes.
func PagesFor(size uint64) uint64 {
	return (size + PageSize - 1) >> PageShift
}
