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

// Package machine describes simulated machines and runs them from firmware
// to kernel: the boot stage builds the address space, the kernel takes it
// over and grows its heap.
package machine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
)

// Arena kinds.
const (
	// ArenaSparse backs physical memory with pages allocated on first
	// write.
	ArenaSparse = "sparse"

	// ArenaMapped backs physical memory with an anonymous mapping.
	ArenaMapped = "mapped"
)

// Region is one firmware memory map region.
type Region struct {
	Type  string `toml:"type" yaml:"type"`
	Start uint64 `toml:"start" yaml:"start"`
	Pages uint64 `toml:"pages" yaml:"pages"`
}

// Framebuffer is the frame buffer geometry reported by the firmware.
type Framebuffer struct {
	Address      uint64 `toml:"address" yaml:"address"`
	Width        uint32 `toml:"width" yaml:"width"`
	Height       uint32 `toml:"height" yaml:"height"`
	Pitch        uint32 `toml:"pitch" yaml:"pitch"`
	BitsPerPixel uint8  `toml:"bits_per_pixel" yaml:"bits_per_pixel"`
}

// Kernel is the kernel image loaded by the boot stage.
type Kernel struct {
	// Size is the image size in bytes.
	Size uint64 `toml:"size" yaml:"size"`

	// Entry is the offset of the entry point in the image.
	Entry uint64 `toml:"entry" yaml:"entry"`
}

// Description is a simulated machine.
type Description struct {
	// Name identifies the machine in reports. It defaults to the base name
	// of the file the description was loaded from.
	Name string `toml:"name" yaml:"name"`

	// Arena is the kind of physical memory, ArenaSparse or ArenaMapped.
	Arena string `toml:"arena" yaml:"arena"`

	// Memory is the size of physical memory in bytes. It defaults to the
	// end of the last RAM region.
	Memory uint64 `toml:"memory" yaml:"memory"`

	Regions     []Region    `toml:"region" yaml:"regions"`
	Framebuffer Framebuffer `toml:"framebuffer" yaml:"framebuffer"`

	// RuntimeServices is the physical address of the runtime services
	// table.
	RuntimeServices uint64 `toml:"runtime_services" yaml:"runtime_services"`

	Kernel Kernel `toml:"kernel" yaml:"kernel"`

	// Heap lists kernel heap expansions, in pages, made once the kernel
	// runs.
	Heap []uint64 `toml:"heap" yaml:"heap"`

	// MapChangesAtExit is the number of times the memory map changes
	// between the last snapshot and the exit from boot services.
	MapChangesAtExit int `toml:"map_changes_at_exit" yaml:"map_changes_at_exit"`
}

// defaultDescription holds the values a description file may omit.
var defaultDescription = Description{
	Arena: ArenaSparse,
	Framebuffer: Framebuffer{
		Address:      0xc000_0000,
		Width:        1024,
		Height:       768,
		Pitch:        1024,
		BitsPerPixel: 32,
	},
	Kernel: Kernel{Size: 64 * 1024},
}

// Default returns a copy of the default description.
func Default() *Description {
	return deepcopy.Copy(&defaultDescription).(*Description)
}

// Format is the encoding of a description file.
type Format int

// Formats.
const (
	TOML Format = iota
	YAML
)

// String implements fmt.Stringer.String.
func (f Format) String() string {
	switch f {
	case TOML:
		return "toml"
	case YAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatOf returns the format of the file at path, from its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return 0, fmt.Errorf("unknown machine description format %q, want .toml, .yaml or .yml", filepath.Ext(path))
	}
}

// Parse decodes a description over the defaults and validates it.
func Parse(data []byte, format Format) (*Description, error) {
	d := Default()
	switch format {
	case TOML:
		md, err := toml.Decode(string(data), d)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys %v", undecoded)
		}
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(d); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format %v", format)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads the description file at path.
func Load(path string) (*Description, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %q: %w", path, err)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return d, nil
}

// Validate checks that d describes a machine that can be built.
func (d *Description) Validate() error {
	if d.Arena != ArenaSparse && d.Arena != ArenaMapped {
		return fmt.Errorf("unknown arena %q, want %q or %q", d.Arena, ArenaSparse, ArenaMapped)
	}
	if len(d.Regions) == 0 {
		return fmt.Errorf("no memory regions")
	}
	if _, err := d.Entries(); err != nil {
		return err
	}
	if d.Memory%hostarch.PageSize != 0 {
		return fmt.Errorf("memory size %#x is not page aligned", d.Memory)
	}
	if d.Kernel.Size == 0 || d.Kernel.Size > bootinfo.KernelSize {
		return fmt.Errorf("kernel size %#x must be in (0, %#x]", d.Kernel.Size, bootinfo.KernelSize)
	}
	if d.Kernel.Entry >= d.Kernel.Size {
		return fmt.Errorf("kernel entry %#x is past the image of %#x bytes", d.Kernel.Entry, d.Kernel.Size)
	}
	if d.MapChangesAtExit < 0 {
		return fmt.Errorf("negative map_changes_at_exit %d", d.MapChangesAtExit)
	}
	return nil
}

// Entries returns the regions as memory map entries.
func (d *Description) Entries() ([]bootinfo.Entry, error) {
	entries := make([]bootinfo.Entry, 0, len(d.Regions))
	for i, r := range d.Regions {
		t, err := bootinfo.ParseMemoryType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if r.Pages == 0 {
			return nil, fmt.Errorf("region %d of type %v is empty", i, t)
		}
		entries = append(entries, bootinfo.Entry{
			Type:      t,
			PhysStart: hostarch.Addr(r.Start),
			Pages:     r.Pages,
		})
	}
	return entries, nil
}

// MemorySize returns the size of physical memory.
func (d *Description) MemorySize() (hostarch.Addr, error) {
	if d.Memory != 0 {
		return hostarch.Addr(d.Memory), nil
	}
	entries, err := d.Entries()
	if err != nil {
		return 0, err
	}
	end, ok := bootinfo.RAMEnd(entries).RoundUp()
	if !ok || end == 0 {
		return 0, fmt.Errorf("no RAM regions")
	}
	return end, nil
}

// FirmwareFramebuffer returns the frame buffer as the firmware reports it.
func (d *Description) FirmwareFramebuffer() bootinfo.Framebuffer {
	fb := d.Framebuffer
	return bootinfo.Framebuffer{
		Address:      hostarch.Addr(fb.Address),
		Width:        fb.Width,
		Height:       fb.Height,
		Pitch:        fb.Pitch,
		BitsPerPixel: fb.BitsPerPixel,
		RedMask:      0xff0000,
		GreenMask:    0xff00,
		BlueMask:     0xff,
	}
}
