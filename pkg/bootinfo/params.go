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
	"dogos.dev/dogos/pkg/binary"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/physmem"
)

// KernelParams is passed by physical pointer from the boot stage to the
// kernel entry point.
type KernelParams struct {
	Framebuffer Framebuffer

	// MemoryMapSize is the byte count of the raw memory map at
	// MemoryMapBase.
	MemoryMapSize uint32

	// PageTableEntries is the number of entries of the page-table pool,
	// 512 per frame. The pool itself starts at the address in CR3.
	PageTableEntries uint64

	// RuntimeServices is the physical address of the firmware runtime
	// services table.
	RuntimeServices hostarch.Addr
}

// KernelParamsSize is the encoded size of KernelParams.
var KernelParamsSize = binary.Size(KernelParams{})

// Write stores p at pa.
func (p *KernelParams) Write(m physmem.Memory, pa hostarch.Addr) {
	m.WriteAt(binary.Marshal(nil, p), pa)
}

// ReadKernelParams loads the parameter block stored at pa.
func ReadKernelParams(m physmem.Memory, pa hostarch.Addr) (KernelParams, error) {
	buf := make([]byte, KernelParamsSize)
	m.ReadAt(buf, pa)
	var p KernelParams
	err := binary.Decode(buf, &p)
	return p, err
}

// ReadMemoryMap loads the size-byte raw memory map stored at addr.
func ReadMemoryMap(m physmem.Memory, addr hostarch.Addr, size uint32) ([]Entry, error) {
	buf := make([]byte, size)
	m.ReadAt(buf, addr)
	return DecodeMap(buf)
}
