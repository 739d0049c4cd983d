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
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/subcommands"

	"dogos.dev/dogos/pkg/bootinfo"
	"dogos.dev/dogos/pkg/hostarch"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the fixed windows of the kernel address space"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return "layout - print the fixed windows of the kernel address space.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Layout) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	tw := tabwriter.NewWriter(output(l.out), 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "WINDOW\tSTART\tEND\tSIZE")
	for _, w := range bootinfo.Windows() {
		fmt.Fprintf(tw, "%s\t%v\t%v\t%#x\n", w.Name, w.Range.Start, w.Range.End, w.Range.Length())
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "page size\t%#x\n", hostarch.PageSize)
	fmt.Fprintf(tw, "bitmap section\t%#x bytes per GiB\n", bootinfo.SectionBytes)
	fmt.Fprintf(tw, "max physical\t%#x (%d sections)\n", uint64(bootinfo.MaxPhysical), bootinfo.MaxSections)
	fmt.Fprintf(tw, "max frame buffer\t%d pages\n", bootinfo.MaxFramebufferPages)
	fmt.Fprintf(tw, "memory map entry\t%d bytes\n", bootinfo.EntrySize)
	if err := tw.Flush(); err != nil {
		return Errorf("writing layout: %v", err)
	}
	return subcommands.ExitSuccess
}
