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
	"fmt"

	"dogos.dev/dogos/pkg/hostarch"
)

// PTE is an x86-64 page table entry.
type PTE uint64

// Bits in page table entries.
const (
	present        PTE = 0x001
	writable       PTE = 0x002
	user           PTE = 0x004
	writeThrough   PTE = 0x008
	cacheDisable   PTE = 0x010
	accessed       PTE = 0x020
	dirty          PTE = 0x040
	super          PTE = 0x080
	global         PTE = 0x100
	executeDisable PTE = 1 << 63

	addressMask PTE = 0x000f_ffff_ffff_f000
)

// MapOpts are x86-64 options.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType hostarch.AccessType

	// Global indicates the page is globally accessible.
	Global bool

	// User indicates the page is a user page.
	User bool

	// MemoryType is the memory type.
	MemoryType hostarch.MemoryType
}

// String implements fmt.Stringer.String.
func (opts MapOpts) String() string {
	s := opts.AccessType.String() + " " + opts.MemoryType.ShortString()
	if opts.Global {
		s += " G"
	}
	if opts.User {
		s += " U"
	}
	return s
}

// Valid returns true iff this entry is valid.
func (p PTE) Valid() bool {
	return p&present != 0
}

// Address extracts the address. This should only be used if Valid returns
// true.
func (p PTE) Address() hostarch.Addr {
	return hostarch.Addr(p & addressMask)
}

// Opts returns the PTE options.
//
// These are all options except Valid and Super.
func (p PTE) Opts() MapOpts {
	var pat uint8
	if p&writeThrough != 0 {
		pat |= 1
	}
	if p&cacheDisable != 0 {
		pat |= 2
	}
	return MapOpts{
		AccessType: hostarch.AccessType{
			Read:    p.Valid(),
			Write:   p&writable != 0,
			Execute: p&executeDisable == 0,
		},
		Global:     p&global != 0,
		User:       p&user != 0,
		MemoryType: hostarch.MemoryTypeForPATIndex(pat),
	}
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	if !p.Valid() {
		return "-"
	}
	return fmt.Sprintf("%#x %v", uint64(p.Address()), p.Opts())
}

// leafPTE returns the entry mapping the frame at addr with opts.
//
// addr must be page aligned and opts must grant some access.
func leafPTE(addr hostarch.Addr, opts MapOpts) PTE {
	v := PTE(addr)&addressMask | present | accessed
	if opts.AccessType.Write {
		v |= writable | dirty
	}
	if !opts.AccessType.Execute {
		v |= executeDisable
	}
	if opts.Global {
		v |= global
	}
	if opts.User {
		v |= user
	}
	pat := opts.MemoryType.PATIndex()
	if pat&1 != 0 {
		v |= writeThrough
	}
	if pat&2 != 0 {
		v |= cacheDisable
	}
	return v
}

// tablePTE returns the entry pointing at the table at addr.
//
// Intermediate entries grant everything; leaf entries decide.
func tablePTE(addr hostarch.Addr) PTE {
	return PTE(addr)&addressMask | present | writable | user | accessed
}
