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

package cmd

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"dogos.dev/dogos/dogboot/config"
	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/machine"
	"dogos.dev/dogos/pkg/physmem"
)

// Memmap implements subcommands.Command for the "memmap" command.
type Memmap struct {
	afterBoot bool
	dump      bool
	rawPath   string

	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*Memmap) Name() string {
	return "memmap"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Memmap) Synopsis() string {
	return "print the firmware memory map of a machine"
}

// Usage implements subcommands.Command.Usage.
func (*Memmap) Usage() string {
	return `memmap [flags] <machine file> - print the firmware memory map of a machine.

The map is the one the firmware reports at power on, or with --after-boot the
final map handed to the kernel.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Memmap) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.afterBoot, "after-boot", false, "print the map handed to the kernel instead of the initial one")
	f.BoolVar(&m.dump, "hex", false, "also print a hex dump of the raw map")
	f.StringVar(&m.rawPath, "raw", "", "file path where the raw map is written")
}

// Execute implements subcommands.Command.Execute.
func (m *Memmap) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	descs, err := loadMachines(conf, f.Args())
	if err != nil {
		return Errorf("%v", err)
	}
	entries, err := m.memoryMap(ctx, descs[0])
	if err != nil {
		return Errorf("%v", err)
	}

	w := output(m.out)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tSTART\tEND\tPAGES\tATTRIBUTES")
	for i, e := range entries {
		r := e.Range()
		fmt.Fprintf(tw, "%d\t%v\t%v\t%v\t%d\t%v\n", i, e.Type, r.Start, r.End, e.Pages, e.Attribute)
	}
	if err := tw.Flush(); err != nil {
		return Errorf("writing the memory map: %v", err)
	}

	raw := bootinfo.EncodeMap(nil, entries)
	if m.dump {
		fmt.Fprint(w, hex.Dump(raw))
	}
	if m.rawPath != "" {
		if err := os.WriteFile(m.rawPath, raw, 0644); err != nil {
			return Errorf("writing the raw map: %v", err)
		}
	}
	return subcommands.ExitSuccess
}

func (m *Memmap) memoryMap(ctx context.Context, d *machine.Description) ([]bootinfo.Entry, error) {
	if m.afterBoot {
		r, err := machine.Run(ctx, d)
		if err != nil {
			return nil, err
		}
		return r.MemoryMap, nil
	}
	size, err := d.MemorySize()
	if err != nil {
		return nil, err
	}
	fw, err := machine.Firmware(d, physmem.NewSparse(size))
	if err != nil {
		return nil, err
	}
	mm, err := fw.MemoryMap()
	if err != nil {
		return nil, err
	}
	return mm.Entries, nil
}
