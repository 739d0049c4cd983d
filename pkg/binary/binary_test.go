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

package binary

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// record has the shape of a firmware memory descriptor, including the
// padding word after the type.
type record struct {
	Type  uint32
	_     uint32
	Attr  uint64
	Phys  uint64
	Virt  uint64
	Pages uint64
}

type params struct {
	Addr   uint64
	Width  uint32
	Bpp    uint8
	Delta  int16
	Masks  [3]uint32
	Record record
}

func TestSize(t *testing.T) {
	for _, tc := range []struct {
		v    any
		want int
	}{
		{uint32(10), 4},
		{int8(-1), 1},
		{[4]uint16{}, 8},
		{record{}, 40},
		{&record{}, 40},
		{params{}, 8 + 4 + 1 + 2 + 12 + 40},
	} {
		if got := Size(tc.v); got != tc.want {
			t.Errorf("Size(%T) = %d, want %d", tc.v, got, tc.want)
		}
	}
}

func TestPanic(t *testing.T) {
	for _, tc := range []struct {
		name string
		f    func()
		want string
	}{
		{"Unmarshal non-pointer", func() { Unmarshal(make([]byte, 4), uint32(5)) }, "invalid type: uint32"},
		{"Unmarshal *int", func() { Unmarshal(make([]byte, 8), new(int)) }, "invalid type: int"},
		{"Marshal string", func() { Marshal(nil, "x") }, "invalid type: string"},
		{"Marshal slice", func() { Marshal(nil, []uint8{1}) }, "invalid type: []uint8"},
		{"Unmarshal short buffer", func() { Unmarshal(make([]byte, 2), new(uint32)) }, "runtime error: index out of range"},
		{"Unmarshal long buffer", func() { Unmarshal(make([]byte, 50), new(uint32)) }, "buffer too long by 46 bytes"},
		{"Size pointer to pointer", func() { Size(new(*uint32)) }, "invalid type: *uint32"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if got := fmt.Sprint(r); !strings.HasPrefix(got, tc.want) {
					t.Errorf("recover() = %q, want prefix %q", got, tc.want)
				}
			}()
			tc.f()
		})
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	want := params{
		Addr:   0x8000_0000,
		Width:  1024,
		Bpp:    32,
		Delta:  -2,
		Masks:  [3]uint32{0xff0000, 0xff00, 0xff},
		Record: record{Type: 7, Attr: 0xf, Phys: 0x1000, Pages: 256},
	}
	buf := Marshal(nil, &want)
	if len(buf) != Size(&want) {
		t.Fatalf("Marshal produced %d bytes, Size says %d", len(buf), Size(&want))
	}
	var got params
	Unmarshal(buf, &got)
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(record{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordLayout(t *testing.T) {
	buf := Marshal([]byte{0xaa}, record{Type: 7, Attr: 0xf, Phys: 0x1000, Pages: 256})
	want := []byte{
		0xaa,
		7, 0, 0, 0, 0, 0, 0, 0,
		0xf, 0, 0, 0, 0, 0, 0, 0,
		0, 0x10, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 1, 0, 0, 0, 0, 0, 0,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("encoded record mismatch (-want +got):\n%s", diff)
	}
}

func TestSignedFields(t *testing.T) {
	type signed struct {
		A int8
		B int16
		C int32
		D int64
	}
	want := signed{A: -1, B: -300, C: -70000, D: -1 << 40}
	buf := Marshal(nil, want)
	if buf[0] != 0xff || buf[1] != 0xd4 || buf[2] != 0xfe {
		t.Errorf("encoded prefix = % x, want ff d4 fe", buf[:3])
	}
	var got signed
	Unmarshal(buf, &got)
	if got != want {
		t.Errorf("Unmarshal = %+v, want %+v", got, want)
	}
}

func TestDecode(t *testing.T) {
	var r record
	if err := Decode(make([]byte, 39), &r); !errors.Is(err, ErrSize) {
		t.Errorf("Decode(short) = %v, want %v", err, ErrSize)
	}
	buf := Marshal(nil, record{Type: 3, Pages: 9})
	// The padding word is ignored on decode.
	buf[4] = 0xff
	if err := Decode(buf, &r); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if r.Type != 3 || r.Pages != 9 {
		t.Errorf("Decode = %+v, want type 3 and 9 pages", r)
	}
}

func BenchmarkMarshalUnmarshal(b *testing.B) {
	b.ReportAllocs()

	in := params{Addr: 1, Width: 2, Bpp: 3, Masks: [3]uint32{4, 5, 6}, Record: record{Type: 7}}
	buf := make([]byte, Size(&in))
	out := params{}

	for i := 0; i < b.N; i++ {
		buf := Marshal(buf[:0], &in)
		Unmarshal(buf, &out)
	}
}
