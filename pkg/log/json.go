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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var levelNames = [...]string{Warning: "warning", Info: "info", Debug: "debug"}

// ParseLevel parses a level name, ignoring case.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(l), nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (l Level) MarshalText() ([]byte, error) {
	if int(l) >= len(levelNames) {
		return nil, fmt.Errorf("unknown level %d", uint32(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts level
// names and their numeric values.
func (l *Level) UnmarshalJSON(b []byte) error {
	if s, err := strconv.Unquote(string(b)); err == nil {
		v, err := ParseLevel(s)
		if err != nil {
			return err
		}
		*l = v
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil || n >= uint64(len(levelNames)) {
		return fmt.Errorf("unknown level %s", b)
	}
	*l = Level(n)
	return nil
}

// record is one line of JSONEmitter output.
type record struct {
	Msg     string    `json:"msg"`
	Level   Level     `json:"level"`
	Time    time.Time `json:"time"`
	Machine string    `json:"machine,omitempty"`
}

// JSONEmitter writes one JSON object per message.
type JSONEmitter struct {
	*Writer

	// Machine, if set, is attached to every record so that the output of
	// several simulated machines can be told apart.
	Machine string
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	file, line := caller(depth)
	b, err := json.Marshal(record{
		Msg:     fmt.Sprintf("%s:%d] ", file, line) + fmt.Sprintf(format, v...),
		Level:   level,
		Time:    timestamp,
		Machine: e.Machine,
	})
	if err != nil {
		panic(err)
	}
	e.Writer.Write(b)
}
