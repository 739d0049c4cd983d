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

package bootinfo

import (
	"errors"
	"fmt"
	"strings"

	"dogos.dev/dogos/pkg/binary"
	"dogos.dev/dogos/pkg/hostarch"
)

// MemoryType is the kind of a memory map region. The values match the
// firmware memory map encoding bit for bit.
type MemoryType uint32

// Memory types.
const (
	Reserved MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	Conventional
	Unusable
	ACPIReclaim
	ACPINonVolatile
	MMIO
	MMIOPortSpace
	PALCode
	Persistent
	Unaccepted

	// MaxMemoryType is one past the last defined type.
	MaxMemoryType
)

var memoryTypeNames = [...]string{
	Reserved:            "Reserved",
	LoaderCode:          "LoaderCode",
	LoaderData:          "LoaderData",
	BootServicesCode:    "BootServicesCode",
	BootServicesData:    "BootServicesData",
	RuntimeServicesCode: "RuntimeServicesCode",
	RuntimeServicesData: "RuntimeServicesData",
	Conventional:        "Conventional",
	Unusable:            "Unusable",
	ACPIReclaim:         "ACPIReclaim",
	ACPINonVolatile:     "ACPINonVolatile",
	MMIO:                "MMIO",
	MMIOPortSpace:       "MMIOPortSpace",
	PALCode:             "PALCode",
	Persistent:          "Persistent",
	Unaccepted:          "Unaccepted",
}

// MemoryTypeFromRaw converts a firmware value. Values outside the defined
// range are treated as Unusable.
func MemoryTypeFromRaw(v uint32) MemoryType {
	if t := MemoryType(v); t < MaxMemoryType {
		return t
	}
	return Unusable
}

// ParseMemoryType is the inverse of MemoryType.String. Matching ignores
// case.
func ParseMemoryType(s string) (MemoryType, error) {
	for t, name := range memoryTypeNames {
		if strings.EqualFold(name, s) {
			return MemoryType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown memory type %q", s)
}

// String implements fmt.Stringer.String.
func (t MemoryType) String() string {
	if t < MaxMemoryType {
		return memoryTypeNames[t]
	}
	return fmt.Sprintf("MemoryType(%d)", uint32(t))
}

// Reclaimable returns true for the types the kernel may hand out once boot
// services have exited.
func (t MemoryType) Reclaimable() bool {
	return t == Conventional || t == BootServicesCode || t == BootServicesData
}

// IsRAM returns false for the types that describe device or unusable
// address space rather than memory.
func (t MemoryType) IsRAM() bool {
	switch t {
	case Reserved, Unusable, MMIO, MMIOPortSpace:
		return false
	default:
		return t < MaxMemoryType
	}
}

// Attribute is the capability bit set of a memory map region.
type Attribute uint64

// Memory attributes.
const (
	AttrUncacheable       Attribute = 0x1
	AttrWriteCombine      Attribute = 0x2
	AttrWriteThrough      Attribute = 0x4
	AttrWriteBack         Attribute = 0x8
	AttrUncacheableExport Attribute = 0x10
	AttrWriteProtect      Attribute = 0x1000
	AttrReadProtect       Attribute = 0x2000
	AttrExecuteProtect    Attribute = 0x4000
	AttrNonVolatile       Attribute = 0x8000
	AttrMoreReliable      Attribute = 0x10000
	AttrReadOnly          Attribute = 0x20000
	AttrSpecialPurpose    Attribute = 0x4_0000
	AttrCPUCrypto         Attribute = 0x8_0000
	AttrRuntime           Attribute = 0x8000_0000_0000_0000
	AttrISAValid          Attribute = 0x4000_0000_0000_0000
	AttrISAMask           Attribute = 0x0fff_f000_0000_0000
)

var attributeNames = []struct {
	a    Attribute
	name string
}{
	{AttrUncacheable, "UC"},
	{AttrWriteCombine, "WC"},
	{AttrWriteThrough, "WT"},
	{AttrWriteBack, "WB"},
	{AttrUncacheableExport, "UCE"},
	{AttrWriteProtect, "WP"},
	{AttrReadProtect, "RP"},
	{AttrExecuteProtect, "XP"},
	{AttrNonVolatile, "NV"},
	{AttrMoreReliable, "MR"},
	{AttrReadOnly, "RO"},
	{AttrSpecialPurpose, "SP"},
	{AttrCPUCrypto, "CC"},
	{AttrRuntime, "RUNTIME"},
	{AttrISAValid, "ISA"},
}

// String implements fmt.Stringer.String.
func (a Attribute) String() string {
	var names []string
	for _, n := range attributeNames {
		if a&n.a != 0 {
			names = append(names, n.name)
			a &^= n.a
		}
	}
	if isa := a & AttrISAMask; isa != 0 {
		names = append(names, fmt.Sprintf("ISA(%#x)", uint64(isa>>44)))
		a &^= AttrISAMask
	}
	if a != 0 {
		names = append(names, fmt.Sprintf("%#x", uint64(a)))
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "|")
}

// EntrySize is the size of an encoded Entry.
const EntrySize = 40

// ErrUnalignedMemoryMap is returned when a raw memory map byte count is not
// a multiple of EntrySize.
var ErrUnalignedMemoryMap = errors.New("memory map size is not a multiple of the entry size")

// Entry is one region of the raw memory map. Encoded, it is 40 bytes,
// little endian, in field order.
type Entry struct {
	Type      MemoryType
	_         uint32
	Attribute Attribute
	PhysStart hostarch.Addr
	VirtStart hostarch.Addr
	Pages     uint64
}

// Range returns the physical range described by e.
func (e Entry) Range() hostarch.AddrRange {
	return hostarch.PageRange(e.PhysStart, e.Pages)
}

// String implements fmt.Stringer.String.
func (e Entry) String() string {
	return fmt.Sprintf("%-20v %v %6d pages %v", e.Type, e.Range(), e.Pages, e.Attribute)
}

// EncodeMap appends the encoding of entries to buf.
func EncodeMap(buf []byte, entries []Entry) []byte {
	for i := range entries {
		buf = binary.Marshal(buf, &entries[i])
	}
	return buf
}

// DecodeMap decodes a raw memory map. The byte count must be a multiple of
// EntrySize. Unknown memory types decode as Unusable.
func DecodeMap(buf []byte) ([]Entry, error) {
	if len(buf)%EntrySize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnalignedMemoryMap, len(buf))
	}
	entries := make([]Entry, len(buf)/EntrySize)
	for i := range entries {
		binary.Unmarshal(buf[i*EntrySize:(i+1)*EntrySize], &entries[i])
		entries[i].Type = MemoryTypeFromRaw(uint32(entries[i].Type))
	}
	return entries, nil
}

// MapEnd returns the end of the highest region in entries.
func MapEnd(entries []Entry) hostarch.Addr {
	var end hostarch.Addr
	for _, e := range entries {
		if r := e.Range(); r.End > end {
			end = r.End
		}
	}
	return end
}

// RAMEnd returns the end of the highest RAM region in entries.
func RAMEnd(entries []Entry) hostarch.Addr {
	var end hostarch.Addr
	for _, e := range entries {
		if r := e.Range(); e.Type.IsRAM() && r.End > end {
			end = r.End
		}
	}
	return end
}
