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

package boot

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/firmware"
	"dogos.dev/dogos/pkg/hostarch"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/ring0"
)

// maxExitRetries bounds the attempts at exiting boot services with a fresh
// memory map.
const maxExitRetries = 8

// ExitBootServices exits boot services and returns the memory map they
// exited with. If the map changes between the snapshot and the exit, a new
// snapshot is taken and the exit retried.
func ExitBootServices(fw firmware.Services) ([]bootinfo.Entry, error) {
	var final firmware.MemoryMap
	op := func() error {
		m, err := fw.MemoryMap()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fw.ExitBootServices(m.Key); err != nil {
			if errors.Is(err, firmware.ErrInvalidMapKey) {
				return err
			}
			return backoff.Permanent(err)
		}
		final = m
		return nil
	}
	notify := func(err error, _ time.Duration) {
		log.Infof("Boot: retrying exit from boot services: %v", err)
	}
	b := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxExitRetries)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("exiting boot services: %w", err)
	}
	return final.Entries, nil
}

// encodeRawMap encodes entries for a raw map buffer of size bytes. A map
// that exactly fills the buffer fits.
func encodeRawMap(entries []bootinfo.Entry, size uint64) ([]byte, error) {
	buf := bootinfo.EncodeMap(nil, entries)
	if uint64(len(buf)) > size {
		log.Warningf("Boot: final memory map of %d entries does not fit %d bytes", len(entries), size)
		return nil, fmt.Errorf("%w: %d bytes, buffer %d", ErrMemoryMapTooLarge, len(buf), size)
	}
	return buf, nil
}

// Handoff exits boot services, writes the final memory map into raw and the
// kernel parameter block at params, switches to the address space of p and
// jumps to entry with params as argument. It returns the final memory map.
//
// Once boot services have exited, no failure can be recovered from.
func Handoff(fw firmware.Services, cpu *ring0.CPU, p *Paging, raw RawMap, params hostarch.Addr, entry hostarch.Addr) ([]bootinfo.Entry, error) {
	// Capture everything that needs boot services first.
	framebuffer := fw.Framebuffer()
	runtime := fw.RuntimeServices()
	mem := fw.Memory()

	entries, err := ExitBootServices(fw)
	if err != nil {
		return nil, err
	}

	buf, err := encodeRawMap(entries, raw.Size())
	if err != nil {
		return nil, err
	}
	mem.WriteAt(buf, raw.Addr)

	framebuffer.Address = bootinfo.FramebufferBase + hostarch.Addr(framebuffer.Address.PageOffset())
	kp := bootinfo.KernelParams{
		Framebuffer:      framebuffer,
		MemoryMapSize:    uint32(len(buf)),
		PageTableEntries: uint64(p.Pool.Frames()) * hostarch.EntriesPerTable,
		RuntimeServices:  runtime,
	}
	kp.Write(mem, params)

	cpu.LoadCR3(p.Tables.Root())
	if err := cpu.Jump(entry, params); err != nil {
		return nil, err
	}
	return entries, nil
}
