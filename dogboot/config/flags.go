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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
)

// usage holds the help text of every flag a Config field names.
var usage = map[string]string{
	"log":        "file path where logs are written, default is stderr.",
	"log-format": "log format: text (default) or json.",
	"log-level":  "lowest level logged: warning, info (default) or debug.",
	"debug":      "enable debug logging.",
	"debug-log":  "additional location for debug logs. The following variables are available: %TIMESTAMP%, %COMMAND%, %MACHINE%.",
	"log-tag":    "name attached to JSON log records and substituted for %MACHINE% in --debug-log.",

	"arena":         "physical memory of every machine: sparse or mapped. Empty uses each machine description's own.",
	"parallel":      "number of machines simulated at once, 0 for all of them.",
	"report-format": "report format: text (default), json or prometheus.",
}

// field is a Config field that is set by a flag.
type field struct {
	name  string
	def   string
	value reflect.Value
}

// fields returns the flag-backed fields of c in declaration order.
func fields(c *Config) []field {
	obj := reflect.ValueOf(c).Elem()
	var fs []field
	for i := 0; i < obj.NumField(); i++ {
		sf := obj.Type().Field(i)
		name, ok := sf.Tag.Lookup("flag")
		if !ok {
			continue
		}
		fs = append(fs, field{name: name, def: sf.Tag.Get("default"), value: obj.Field(i)})
	}
	return fs
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	var c Config
	for _, f := range fields(&c) {
		help, ok := usage[f.name]
		if !ok {
			panic(fmt.Sprintf("flag %q has no usage", f.name))
		}
		if err := setVal(f.value, f.def); err != nil {
			panic(fmt.Sprintf("flag %q: bad default: %v", f.name, err))
		}
		switch f.value.Kind() {
		case reflect.Bool:
			flagSet.Bool(f.name, f.value.Bool(), help)
		case reflect.Int:
			flagSet.Int(f.name, int(f.value.Int()), help)
		case reflect.String:
			flagSet.String(f.name, f.value.String(), help)
		default:
			panic(fmt.Sprintf("flag %q: unsupported kind %v", f.name, f.value.Kind()))
		}
	}
}

// NewFromFlags creates a new Config with values coming from command line flags.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	for _, f := range fields(conf) {
		fl := flagSet.Lookup(f.name)
		if fl == nil {
			panic(fmt.Sprintf("flag %q not registered", f.name))
		}
		if err := setVal(f.value, fl.Value.String()); err != nil {
			return nil, fmt.Errorf("flag --%s: %w", f.name, err)
		}
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ToFlags returns the flags that recreate c, omitting those left at their
// default.
func (c *Config) ToFlags() []string {
	var rv []string
	for _, f := range fields(c) {
		val := getVal(f.value)
		if val == defaultString(f) {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", f.name, val))
	}
	return rv
}

// defaultString returns the default of f as the flag package prints it.
func defaultString(f field) string {
	zero := reflect.New(f.value.Type()).Elem()
	if err := setVal(zero, f.def); err != nil {
		panic(err)
	}
	return getVal(zero)
}

func setVal(v reflect.Value, s string) error {
	switch v.Kind() {
	case reflect.Bool:
		if s == "" {
			v.SetBool(false)
			return nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int:
		if s == "" {
			v.SetInt(0)
			return nil
		}
		n, err := strconv.ParseInt(s, 0, 0)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.String:
		v.SetString(s)
	default:
		return fmt.Errorf("unsupported kind %v", v.Kind())
	}
	return nil
}

func getVal(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.String:
		return v.String()
	default:
		panic("unsupported kind " + v.Kind().String())
	}
}
