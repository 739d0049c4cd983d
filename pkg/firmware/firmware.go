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

// Package firmware defines the boot services the boot stage relies on, and
// a simulated implementation over a physical memory arena.
//
// The services mirror the parts of UEFI boot services used during boot:
// memory map snapshots with a map key, page allocation, exit, and the
// graphics mode and runtime services table.
package firmware

import (
	"errors"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/physmem"
)

var (
	// ErrOutOfResources is returned when no free region can satisfy an
	// allocation.
	ErrOutOfResources = errors.New("out of resources")

	// ErrInvalidMapKey is returned by ExitBootServices when the memory map
	// changed since the snapshot the key came from.
	ErrInvalidMapKey = errors.New("invalid memory map key")

	// ErrNotFound is returned by FreePages for pages that were not
	// allocated.
	ErrNotFound = errors.New("pages not allocated")

	// ErrInvalidParameter is returned for misaligned addresses, zero sizes
	// and memory types that cannot be allocated.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrExited is returned by every boot service after ExitBootServices.
	ErrExited = errors.New("boot services have exited")
)

// MemoryMap is a snapshot of the firmware memory map.
type MemoryMap struct {
	// Entries are sorted by physical address.
	Entries []bootinfo.Entry

	// Key identifies the snapshot. It changes whenever the map does.
	Key uint64
}

// Services are the firmware services available to the boot stage.
type Services interface {
	// Memory returns physical memory, which the boot stage accesses
	// directly.
	Memory() physmem.Memory

	// MemoryMap returns a snapshot of the memory map.
	MemoryMap() (MemoryMap, error)

	// AllocatePages allocates pages anywhere, returning the physical
	// address of the first page.
	AllocatePages(t bootinfo.MemoryType, pages uint64) (hostarch.Addr, error)

	// AllocatePagesAt allocates pages at addr.
	AllocatePagesAt(t bootinfo.MemoryType, addr hostarch.Addr, pages uint64) error

	// FreePages returns pages obtained from AllocatePages or
	// AllocatePagesAt.
	FreePages(addr hostarch.Addr, pages uint64) error

	// ExitBootServices terminates boot services. key must be the key of the
	// latest memory map snapshot.
	ExitBootServices(key uint64) error

	// Framebuffer returns the current graphics mode. Its Address is
	// physical.
	Framebuffer() bootinfo.Framebuffer

	// RuntimeServices returns the physical address of the runtime services
	// table.
	RuntimeServices() hostarch.Addr
}

// allocatable returns true for the types pages may be allocated as.
func allocatable(t bootinfo.MemoryType) bool {
	switch t {
	case bootinfo.LoaderCode, bootinfo.LoaderData,
		bootinfo.BootServicesCode, bootinfo.BootServicesData,
		bootinfo.RuntimeServicesCode, bootinfo.RuntimeServicesData,
		bootinfo.ACPIReclaim, bootinfo.ACPINonVolatile:
		return true
	default:
		return false
	}
}
