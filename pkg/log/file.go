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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PatternOpts fills in the variables of a log file pattern:
//
//	%MACHINE%   name of the simulated machine
//	%COMMAND%   dogboot subcommand
//	%TIMESTAMP% start time, as yyyymmdd-hhmmss
type PatternOpts struct {
	Machine   string
	Command   string
	Timestamp time.Time
}

// Expand returns pattern with its variables replaced.
func (o PatternOpts) Expand(pattern string) string {
	return strings.NewReplacer(
		"%MACHINE%", o.Machine,
		"%COMMAND%", o.Command,
		"%TIMESTAMP%", o.Timestamp.Format("20060102-150405"),
	).Replace(pattern)
}

// OpenFile opens the log file pattern names once expanded, creating its
// directory. An empty pattern opens nothing and returns nil, nil.
func OpenFile(pattern string, flags int, opts PatternOpts) (*os.File, error) {
	if pattern == "" {
		return nil, nil
	}
	path := opts.Expand(pattern)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
