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

// Package config provides basic infrastructure to set configuration settings
// for dogboot. Each setting that can be changed from the command line has a
// flag tag naming its flag, an optional default tag, and a usage line in
// flags.go.
package config

import (
	"fmt"
	"reflect"

	"dogos.dev/dogos/pkg/log"
	"dogos.dev/dogos/pkg/machine"
)

// Config holds configuration that is not part of the machine descriptions.
type Config struct {
	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: "text" or "json".
	LogFormat string `flag:"log-format" default:"text"`

	// LogLevel is the lowest level logged: "warning", "info" or "debug".
	LogLevel string `flag:"log-level" default:"info"`

	// Debug logs at debug level regardless of LogLevel.
	Debug bool `flag:"debug" default:"false"`

	// DebugLog is the path pattern of an additional log at debug level. See
	// log.PatternOpts for the variables it may contain.
	DebugLog string `flag:"debug-log"`

	// LogTag names the run in JSON log records and in DebugLog paths.
	LogTag string `flag:"log-tag"`

	// Arena, if set, overrides the arena of every machine description.
	Arena string `flag:"arena"`

	// Parallel bounds the number of machines simulated at once. Zero means
	// no bound.
	Parallel int `flag:"parallel" default:"0"`

	// ReportFormat is the format reports are printed in: "text", "json" or
	// "prometheus".
	ReportFormat string `flag:"report-format" default:"text"`
}

// Level returns the log level c selects.
func (c *Config) Level() log.Level {
	if c.Debug {
		return log.Debug
	}
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		// validate rejects this.
		panic(err)
	}
	return l
}

// Apply overrides the fields of d that c sets.
func (c *Config) Apply(d *machine.Description) {
	if c.Arena != "" {
		d.Arena = c.Arena
	}
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	switch c.Arena {
	case "", machine.ArenaSparse, machine.ArenaMapped:
	default:
		return fmt.Errorf("invalid arena %q, must be %q or %q", c.Arena, machine.ArenaSparse, machine.ArenaMapped)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must be non-negative, got %d", c.Parallel)
	}
	switch c.ReportFormat {
	case "text", "json", "prometheus":
	default:
		return fmt.Errorf("invalid report format %q, must be 'text', 'json' or 'prometheus'", c.ReportFormat)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		log.Infof("  %s: %v", st.Field(i).Name, obj.Field(i).Interface())
	}
}
