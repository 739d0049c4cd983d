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

// Package cmd holds implementations of the dogboot commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"dogos.dev/dogos/dogboot/config"
	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/machine"
)

// ErrorLogger is where errors are reported in addition to the log.
var ErrorLogger io.Writer = os.Stderr

// Errorf logs the error, reports it to ErrorLogger and returns
// subcommands.ExitFailure.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	fmt.Fprintln(ErrorLogger, msg)
	return subcommands.ExitFailure
}

// Fatalf is Errorf for errors that happen before a command runs. It exits.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	os.Exit(128)
}

// output returns w, or stdout if w is nil.
func output(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

// loadMachines loads the machine descriptions at paths and applies conf to
// them.
func loadMachines(conf *config.Config, paths []string) ([]*machine.Description, error) {
	descs := make([]*machine.Description, 0, len(paths))
	for _, path := range paths {
		d, err := machine.Load(path)
		if err != nil {
			return nil, err
		}
		conf.Apply(d)
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("machine %q: %w", path, err)
		}
		descs = append(descs, d)
	}
	return descs, nil
}
