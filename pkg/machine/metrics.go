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
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// MachineLabel is the label naming the machine of every exported sample.
const MachineLabel = "machine"

type metric struct {
	name  string
	help  string
	typ   dto.MetricType
	value func(r *Report) float64
}

var metrics = []metric{
	{"dogboot_memory_map_regions", "Regions in the final firmware memory map.", dto.MetricType_GAUGE,
		func(r *Report) float64 { return float64(r.Regions) }},
	{"dogboot_bitmap_sections", "Bitmap sections mapped for the frame allocator.", dto.MetricType_GAUGE,
		func(r *Report) float64 { return float64(r.Sections) }},
	{"dogboot_frames", "Frames tracked by the frame allocator.", dto.MetricType_GAUGE,
		func(r *Report) float64 { return float64(r.Frames) }},
	{"dogboot_free_frames", "Tracked frames that are free.", dto.MetricType_GAUGE,
		func(r *Report) float64 { return float64(r.FreeFrames) }},
	{"dogboot_table_frames", "Frames in the page-table pool.", dto.MetricType_GAUGE,
		func(r *Report) float64 { return float64(r.TableFrames) }},
	{"dogboot_tables_used", "Page-table pool frames holding a table.", dto.MetricType_GAUGE,
		func(r *Report) float64 { return float64(r.TablesUsed) }},
	{"dogboot_heap_pages", "Pages mapped in the kernel heap.", dto.MetricType_GAUGE,
		func(r *Report) float64 { return float64(r.HeapPages) }},
	{"dogboot_table_relocations_total", "Page-table pool relocations.", dto.MetricType_COUNTER,
		func(r *Report) float64 { return float64(r.Relocations) }},
	{"dogboot_cr3_loads_total", "Loads of CR3.", dto.MetricType_COUNTER,
		func(r *Report) float64 { return float64(r.CR3Loads) }},
	{"dogboot_tlb_flushes_total", "TLB flushes, full or single page.", dto.MetricType_COUNTER,
		func(r *Report) float64 { return float64(r.TLBFlushes) }},
}

// MetricFamilies returns reports as Prometheus metric families, one sample
// per report labeled with the machine name.
func MetricFamilies(reports []*Report) []*dto.MetricFamily {
	mfs := make([]*dto.MetricFamily, 0, len(metrics))
	for _, m := range metrics {
		mf := &dto.MetricFamily{
			Name: proto.String(m.name),
			Help: proto.String(m.help),
			Type: m.typ.Enum(),
		}
		for _, r := range reports {
			s := &dto.Metric{
				Label: []*dto.LabelPair{{Name: proto.String(MachineLabel), Value: proto.String(r.Name)}},
			}
			if m.typ == dto.MetricType_COUNTER {
				s.Counter = &dto.Counter{Value: proto.Float64(m.value(r))}
			} else {
				s.Gauge = &dto.Gauge{Value: proto.Float64(m.value(r))}
			}
			mf.Metric = append(mf.Metric, s)
		}
		mfs = append(mfs, mf)
	}
	return mfs
}

// WriteMetrics writes reports in the Prometheus text exposition format.
func WriteMetrics(w io.Writer, reports []*Report) error {
	if len(reports) == 0 {
		return nil
	}
	for _, mf := range MetricFamilies(reports) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
