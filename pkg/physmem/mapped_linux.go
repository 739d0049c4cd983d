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

//go:build linux
// +build linux

package physmem

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"dogos.dev/dogos/pkg/hostarch"
)

// Mapped is a Memory backed by an anonymous private mapping. The kernel only
// commits the pages that are touched, so a large arena is cheap until it is
// used.
type Mapped struct {
	data []byte
}

// NewMapped maps an arena covering [0, limit). limit must be page aligned.
func NewMapped(limit hostarch.Addr) (*Mapped, error) {
	if !limit.IsPageAligned() || limit == 0 {
		return nil, fmt.Errorf("arena size %v is not a positive multiple of the page size", limit)
	}
	data, err := unix.Mmap(-1, 0, int(limit), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mmap of %d bytes: %w", uint64(limit), err)
	}
	return &Mapped{data: data}, nil
}

// Close unmaps the arena. The Mapped must not be used afterwards.
func (m *Mapped) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// Limit implements Memory.Limit.
func (m *Mapped) Limit() hostarch.Addr {
	return hostarch.Addr(len(m.data))
}

// Read64 implements Memory.Read64.
func (m *Mapped) Read64(pa hostarch.Addr) uint64 {
	checkWord(pa, m.Limit())
	return binary.LittleEndian.Uint64(m.data[pa:])
}

// Write64 implements Memory.Write64.
func (m *Mapped) Write64(pa hostarch.Addr, v uint64) {
	checkWord(pa, m.Limit())
	binary.LittleEndian.PutUint64(m.data[pa:], v)
}

// ReadAt implements Memory.ReadAt.
func (m *Mapped) ReadAt(p []byte, pa hostarch.Addr) {
	checkRange(pa, uint64(len(p)), m.Limit())
	copy(p, m.data[pa:])
}

// WriteAt implements Memory.WriteAt.
func (m *Mapped) WriteAt(p []byte, pa hostarch.Addr) {
	checkRange(pa, uint64(len(p)), m.Limit())
	copy(m.data[pa:], p)
}

// Zero implements Memory.Zero. Whole pages are handed back to the host.
func (m *Mapped) Zero(pa hostarch.Addr, length uint64) {
	checkRange(pa, length, m.Limit())
	start, end := pa, pa+hostarch.Addr(length)
	first, last := start.MustRoundUp(), end.RoundDown()
	if first < last {
		if err := unix.Madvise(m.data[first:last], unix.MADV_DONTNEED); err == nil {
			clear(m.data[start:first])
			clear(m.data[last:end])
			return
		}
	}
	clear(m.data[start:end])
}
