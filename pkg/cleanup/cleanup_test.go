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

package cleanup

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// reserve takes n frames from free, undoing every reservation if it runs out.
func reserve(free *[]int, n int) (got []int, err error) {
	cu := Make(nil)
	defer cu.Clean()
	for i := 0; i < n; i++ {
		if len(*free) == 0 {
			return nil, errors.New("out of frames")
		}
		f := (*free)[0]
		*free = (*free)[1:]
		got = append(got, f)
		cu.Add(func() { *free = append([]int{f}, *free...) })
	}
	cu.Release()
	return got, nil
}

func TestUndoOnFailure(t *testing.T) {
	free := []int{1, 2, 3}
	if _, err := reserve(&free, 4); err == nil {
		t.Fatalf("reserve(4) succeeded with 3 frames")
	}
	if diff := cmp.Diff([]int{1, 2, 3}, free); diff != "" {
		t.Errorf("free list after failed reserve (-want +got):\n%s", diff)
	}

	got, err := reserve(&free, 2)
	if err != nil {
		t.Fatalf("reserve(2) failed: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
		t.Errorf("reserved frames (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, free); diff != "" {
		t.Errorf("free list after reserve (-want +got):\n%s", diff)
	}
}

func TestReleaseReturnsCleaners(t *testing.T) {
	var order []int
	cu := Make(func() { order = append(order, 1) })
	cu.Add(func() { order = append(order, 2) })
	undo := cu.Release()
	cu.Clean()
	if len(order) != 0 {
		t.Fatalf("Clean() after Release() ran %v", order)
	}
	undo()
	if diff := cmp.Diff([]int{2, 1}, order); diff != "" {
		t.Errorf("released cleaners order (-want +got):\n%s", diff)
	}
}

func TestCleanOnce(t *testing.T) {
	var order []int
	cu := Make(func() { order = append(order, 1) })
	cu.Add(func() { order = append(order, 2) })
	cu.Add(nil)
	cu.Add(func() { order = append(order, 3) })
	if got := cu.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4", got)
	}
	cu.Clean()
	cu.Clean()
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("cleanup order (-want +got):\n%s", diff)
	}
	if got := cu.Len(); got != 0 {
		t.Errorf("Len() = %d after Clean()", got)
	}
}
