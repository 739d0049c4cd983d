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

package machine

import (
	"bytes"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func TestWriteMetrics(t *testing.T) {
	reports := []*Report{
		{Name: "small", Frames: 262144, FreeFrames: 15000, Relocations: 1, CR3Loads: 2},
		{Name: "large", Frames: 1572864, FreeFrames: 1200000, HeapPages: 6144},
	}
	var buf bytes.Buffer
	if err := WriteMetrics(&buf, reports); err != nil {
		t.Fatalf("WriteMetrics() failed: %v", err)
	}
	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, buf.String())
	}
	if len(parsed) != len(metrics) {
		t.Errorf("parsed %d metric families, want %d", len(parsed), len(metrics))
	}

	sample := func(name, machine string) *dto.Metric {
		t.Helper()
		mf, ok := parsed[name]
		if !ok {
			t.Fatalf("metric %q missing", name)
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == MachineLabel && l.GetValue() == machine {
					return m
				}
			}
		}
		t.Fatalf("metric %q has no sample for machine %q", name, machine)
		return nil
	}
	if got := sample("dogboot_free_frames", "small").GetGauge().GetValue(); got != 15000 {
		t.Errorf("small free frames = %v, want 15000", got)
	}
	if got := sample("dogboot_heap_pages", "large").GetGauge().GetValue(); got != 6144 {
		t.Errorf("large heap pages = %v, want 6144", got)
	}
	if got := sample("dogboot_table_relocations_total", "small").GetCounter().GetValue(); got != 1 {
		t.Errorf("small relocations = %v, want 1", got)
	}
	if got := parsed["dogboot_cr3_loads_total"].GetType(); got != dto.MetricType_COUNTER {
		t.Errorf("cr3 loads type = %v, want counter", got)
	}
}

func TestWriteMetricsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMetrics(&buf, nil); err != nil || buf.Len() != 0 {
		t.Errorf("WriteMetrics(nil) = %v and wrote %q, want nothing", err, buf.String())
	}
}
