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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterAppendsNewline(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("no newline")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if diff := cmp.Diff([]string{"no newline", "\n"}, tw.lines); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warningf("warning %d", 3)
	if diff := cmp.Diff([]string{"info 2", "\n", "warning 3", "\n"}, tw.lines); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}

	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false after SetLevel(Debug)")
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.May, 7, 8, 9, 10, 11000, time.UTC)
	e.Emit(0, Warning, ts, "frame %#x", 0x1000)
	if len(tw.lines) == 0 {
		t.Fatalf("nothing was written")
	}
	got := tw.lines[0]
	if !strings.HasPrefix(got, "W0507 08:09:10.000011 ") {
		t.Errorf("header = %q, want prefix %q", got, "W0507 08:09:10.000011 ")
	}
	if !strings.Contains(got, "log_test.go:") {
		t.Errorf("line %q does not name the calling file", got)
	}
	if !strings.HasSuffix(got, "] frame 0x1000\n") {
		t.Errorf("line %q does not end with the message", got)
	}
}

func TestMultiEmitter(t *testing.T) {
	a, b := &testWriter{}, &testWriter{}
	m := MultiEmitter{&Writer{Next: a}, &Writer{Next: b}}
	m.Emit(0, Info, time.Now(), "hello\n")
	if diff := cmp.Diff(a.lines, b.lines); diff != "" || len(a.lines) != 1 {
		t.Errorf("emitters diverged (-a +b):\n%s", diff)
	}
}

func TestRateLimited(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour, 2)
	for i := 0; i < 5; i++ {
		rl.Warningf("busy %d\n", i)
	}
	if diff := cmp.Diff([]string{"busy 0\n", "busy 1\n"}, tw.lines); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
	if got := rl.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestRateLimitedSkipsDisabledLevels(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Warning, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour, 1)
	rl.Debugf("quiet\n")
	rl.Warningf("loud\n")
	if diff := cmp.Diff([]string{"loud\n"}, tw.lines); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
	if got := rl.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0", got)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	opts := PatternOpts{
		Machine:   "qemu",
		Command:   "boot",
		Timestamp: time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC),
	}
	f, err := OpenFile(filepath.Join(dir, "%MACHINE%", "%COMMAND%-%TIMESTAMP%.log"), os.O_CREATE|os.O_WRONLY, opts)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if want := filepath.Join(dir, "qemu", "boot-20260102-030405.log"); f.Name() != want {
		t.Errorf("OpenFile path = %q, want %q", f.Name(), want)
	}

	if f, err := OpenFile("", os.O_RDONLY, opts); f != nil || err != nil {
		t.Errorf("OpenFile(\"\") = %v, %v, want nil, nil", f, err)
	}
}
