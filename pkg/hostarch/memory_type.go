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

import "fmt"

// MemoryType specifies CPU caching behavior for a mapping.
//
// Page table entries select one of the first four PAT entries through their
// PWT and PCD bits. With the power-on PAT those are write-back,
// write-through, UC- and uncached; the frame buffer is mapped write-through
// until a PAT that has a write-combining entry is programmed.
type MemoryType uint8

const (
	// MemoryTypeWriteBack is normal cacheable memory. It is the zero value.
	MemoryTypeWriteBack MemoryType = iota

	// MemoryTypeWriteCombine is used for the frame buffer.
	MemoryTypeWriteCombine

	// MemoryTypeUncached is used for MMIO regions.
	MemoryTypeUncached

	// NumMemoryTypes is the number of memory types.
	NumMemoryTypes
)

var memoryTypes = [NumMemoryTypes]struct {
	name  string
	short string
	pat   uint8
}{
	MemoryTypeWriteBack:    {"WriteBack", "WB", 0},
	MemoryTypeWriteCombine: {"WriteCombine", "WC", 1},
	MemoryTypeUncached:     {"Uncached", "UC", 3},
}

// String implements fmt.Stringer.String.
func (mt MemoryType) String() string {
	if mt < NumMemoryTypes {
		return memoryTypes[mt].name
	}
	return fmt.Sprintf("MemoryType(%d)", uint8(mt))
}

// ShortString returns the two-letter abbreviation of mt.
func (mt MemoryType) ShortString() string {
	if mt < NumMemoryTypes {
		return memoryTypes[mt].short
	}
	return "??"
}

// PATIndex returns the PAT entry selecting mt: bit 0 is PWT, bit 1 is PCD.
func (mt MemoryType) PATIndex() uint8 {
	if mt >= NumMemoryTypes {
		panic(fmt.Sprintf("invalid memory type %d", uint8(mt)))
	}
	return memoryTypes[mt].pat
}

// MemoryTypeForPATIndex is the inverse of PATIndex. UC- (index 2) reads back
// as uncached.
func MemoryTypeForPATIndex(idx uint8) MemoryType {
	switch idx & 3 {
	case 0:
		return MemoryTypeWriteBack
	case 1:
		return MemoryTypeWriteCombine
	default:
		return MemoryTypeUncached
	}
}
