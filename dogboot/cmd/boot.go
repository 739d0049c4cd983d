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
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"dogos.dev/dogos/dogboot/config"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/machine"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	// out receives the reports, stdout if nil.
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "simulate machines from firmware to kernel"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] <machine file>... - boot every machine, start its kernel and grow its heap.

Machines are described in TOML (.toml) or YAML (.yaml, .yml) files and run
concurrently, up to --parallel at once. A report is printed per machine.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Boot) SetFlags(*flag.FlagSet) {}

// result is the outcome of one machine.
type result struct {
	Name   string          `json:"name"`
	Report *machine.Report `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	descs, err := loadMachines(conf, f.Args())
	if err != nil {
		return Errorf("%v", err)
	}

	// Machines are independent: a failed one does not stop the others.
	results := make([]result, len(descs))
	var g errgroup.Group
	if conf.Parallel > 0 {
		g.SetLimit(conf.Parallel)
	}
	for i, d := range descs {
		i, d := i, d
		g.Go(func() error {
			log.Infof("Booting machine %q", d.Name)
			r, err := machine.Run(ctx, d)
			results[i] = result{Name: d.Name, Report: r}
			if err != nil {
				log.Warningf("Machine %q failed: %v", d.Name, err)
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if err := writeResults(output(b.out), conf.ReportFormat, results); err != nil {
		return Errorf("writing reports: %v", err)
	}
	if failed > 0 {
		return Errorf("%d of %d machines failed", failed, len(results))
	}
	return subcommands.ExitSuccess
}

func writeResults(w io.Writer, format string, results []result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "prometheus":
		var reports []*machine.Report
		for _, r := range results {
			if r.Error == "" {
				reports = append(reports, r.Report)
			}
		}
		return machine.WriteMetrics(w, reports)
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if r.Error != "" {
			fmt.Fprintf(w, "machine %s failed: %s\n", r.Name, r.Error)
			continue
		}
		if _, err := r.Report.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}
