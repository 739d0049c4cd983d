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

//go:build linux
// +build linux

package physmem

import (
	"testing"

	"dogos.dev/dogos/pkg/hostarch"
)

func TestMapped(t *testing.T) {
	m, err := NewMapped(16 * hostarch.MiB)
	if err != nil {
		t.Fatalf("NewMapped failed: %v", err)
	}
	defer m.Close()

	var mem Memory = m
	if got := mem.Limit(); got != 16*hostarch.MiB {
		t.Errorf("Limit() = %v, want 16 MiB", got)
	}
	mem.Write64(0xff_fff8, 42)
	if got := mem.Read64(0xff_fff8); got != 42 {
		t.Errorf("Read64 = %d, want 42", got)
	}
	for pa := hostarch.Addr(0x1000); pa < 0x5000; pa += 8 {
		mem.Write64(pa, 7)
	}
	mem.Zero(0x1008, 0x3ff0)
	if got := mem.Read64(0x1000); got != 7 {
		t.Errorf("word before the zeroed range = %d, want 7", got)
	}
	if got := mem.Read64(0x3000); got != 0 {
		t.Errorf("word inside the zeroed range = %d, want 0", got)
	}
	if got := mem.Read64(0x4ff8); got != 7 {
		t.Errorf("word after the zeroed range = %d, want 7", got)
	}
}

func TestMappedRejectsUnalignedSize(t *testing.T) {
	if _, err := NewMapped(0x1001); err == nil {
		t.Errorf("NewMapped(0x1001) succeeded")
	}
}
