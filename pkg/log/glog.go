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
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// GoogleEmitter prefixes every message with a glog-style header:
//
//	Lmmdd hh:mm:ss.uuuuuu pid file:line] msg
//
// where L is the first letter of the level and pid is right-aligned in
// seven columns.
type GoogleEmitter struct {
	// Emitter receives the prefixed message.
	Emitter
}

var pid = os.Getpid()

// levelLetters holds the header letter of each level.
var levelLetters = [...]byte{Warning: 'W', Info: 'I', Debug: 'D'}

// caller returns the base name and line of the caller depth frames above
// its own caller, or "x" and 0 when the stack is shorter.
func caller(depth int) (string, int) {
	_, file, line, ok := runtime.Caller(depth + 2)
	if !ok {
		return "x", 0
	}
	return file[strings.LastIndexByte(file, '/')+1:], line
}

// appendPadded appends n right-aligned in width columns, zero or space
// filled.
func appendPadded(b []byte, n, width int, fill byte) []byte {
	var digits [20]byte
	d := strconv.AppendInt(digits[:0], int64(n), 10)
	for i := len(d); i < width; i++ {
		b = append(b, fill)
	}
	return append(b, d...)
}

// header appends the glog header of a message to b.
func header(b []byte, level Level, ts time.Time, file string, line int) []byte {
	letter := byte('?')
	if int(level) < len(levelLetters) {
		letter = levelLetters[level]
	}
	b = append(b, letter)
	b = appendPadded(b, int(ts.Month()), 2, '0')
	b = appendPadded(b, ts.Day(), 2, '0')
	b = append(b, ' ')
	b = appendPadded(b, ts.Hour(), 2, '0')
	b = append(b, ':')
	b = appendPadded(b, ts.Minute(), 2, '0')
	b = append(b, ':')
	b = appendPadded(b, ts.Second(), 2, '0')
	b = append(b, '.')
	b = appendPadded(b, ts.Nanosecond()/1000, 6, '0')
	b = append(b, ' ')
	b = appendPadded(b, pid, 7, ' ')
	b = append(b, ' ')
	b = append(b, file...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(line), 10)
	return append(b, "] "...)
}

// Emit implements Emitter.Emit.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	var buf [256]byte
	file, line := caller(depth)
	b := header(buf[:0], level, timestamp, file, line)
	b = append(b, format...)
	b = append(b, '\n')
	g.Emitter.Emit(depth+1, level, timestamp, string(b), args...)
}
