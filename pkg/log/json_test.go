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
	"strings"
	"testing"
	"time"
)

func TestLevelJSON(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{`"warning"`, Warning},
		{`"Info"`, Info},
		{`"debug"`, Debug},
		{`0`, Warning},
		{`2`, Debug},
	} {
		var l Level
		if err := json.Unmarshal([]byte(tc.in), &l); err != nil || l != tc.want {
			t.Errorf("Unmarshal(%s) = %v, %v, want %v", tc.in, l, err, tc.want)
		}
	}
	for _, bad := range []string{`"trace"`, `3`, `-1`, `true`} {
		var l Level
		if err := json.Unmarshal([]byte(bad), &l); err == nil {
			t.Errorf("Unmarshal(%s) = %v, want error", bad, l)
		}
	}

	b, err := json.Marshal([]Level{Warning, Debug})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if got, want := string(b), `["warning","debug"]`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
	if _, err := json.Marshal(Level(7)); err == nil {
		t.Errorf("Marshal of an unknown level succeeded")
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{"warning", Warning},
		{"Info", Info},
		{"DEBUG", Debug},
	} {
		got, err := ParseLevel(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Errorf("ParseLevel(\"loud\") succeeded")
	}
}

func TestJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{Writer: &Writer{Next: tw}, Machine: "small"}
	e.Emit(0, Debug, time.Unix(0, 0).UTC(), "allocated %d frames", 3)
	if len(tw.lines) == 0 {
		t.Fatalf("nothing was written")
	}
	var rec record
	if err := json.Unmarshal([]byte(tw.lines[0]), &rec); err != nil {
		t.Fatalf("output %q is not json: %v", tw.lines[0], err)
	}
	if rec.Level != Debug || rec.Machine != "small" {
		t.Errorf("record = %+v, want level debug and machine small", rec)
	}
	if !strings.HasSuffix(rec.Msg, "] allocated 3 frames") || !strings.HasPrefix(rec.Msg, "json_test.go:") {
		t.Errorf("msg = %q, want caller prefix and formatted message", rec.Msg)
	}
}
