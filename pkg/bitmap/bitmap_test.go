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

package bitmap

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddRemove(t *testing.T) {
	b := New(130)
	for _, i := range []uint32{0, 63, 64, 129} {
		b.Add(i)
	}
	b.Add(64)
	if got := b.GetNumOnes(); got != 4 {
		t.Fatalf("GetNumOnes() = %d, want 4", got)
	}
	if diff := cmp.Diff([]uint32{0, 63, 64, 129}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
	}
	b.Remove(63)
	b.Remove(63)
	if b.IsSet(63) || !b.IsSet(64) {
		t.Errorf("IsSet gave the wrong answer after Remove")
	}
	if got := b.GetNumOnes(); got != 3 {
		t.Errorf("GetNumOnes() = %d, want 3", got)
	}
}

func TestFirstZero(t *testing.T) {
	b := New(70)
	for i := uint32(0); i < 66; i++ {
		b.Add(i)
	}
	if got, err := b.FirstZero(0); err != nil || got != 66 {
		t.Errorf("FirstZero(0) = %d, %v, want 66", got, err)
	}
	for i := uint32(66); i < 70; i++ {
		b.Add(i)
	}
	if _, err := b.FirstZero(0); !errors.Is(err, ErrNoUnsetBits) {
		t.Errorf("FirstZero on a full bitmap = %v, want %v", err, ErrNoUnsetBits)
	}
}

func TestFirstZeroRespectsSize(t *testing.T) {
	// The last word has unused tail bits; they must never be reported.
	b := New(3)
	b.Add(0)
	b.Add(1)
	b.Add(2)
	if got, err := b.FirstZero(0); err == nil {
		t.Errorf("FirstZero() = %d, want error", got)
	}
}

func TestFirstOne(t *testing.T) {
	b := New(200)
	b.Add(150)
	if got, err := b.FirstOne(10); err != nil || got != 150 {
		t.Errorf("FirstOne(10) = %d, %v, want 150", got, err)
	}
	if _, err := b.FirstOne(151); !errors.Is(err, ErrNoSetBits) {
		t.Errorf("FirstOne(151) = %v, want %v", err, ErrNoSetBits)
	}
}

func TestOutOfRange(t *testing.T) {
	b := New(10)
	if b.IsSet(10) || b.IsSet(1000) {
		t.Errorf("bits past Size() read as set")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Add(10) on a 10-bit bitmap did not panic")
		}
	}()
	b.Add(10)
}
