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

//go:build !linux
// +build !linux

package physmem

import (
	"errors"

	"dogos.dev/dogos/pkg/hostarch"
)

// Mapped is unavailable on this platform.
type Mapped struct {
	Sparse
}

// NewMapped always fails on this platform.
func NewMapped(limit hostarch.Addr) (*Mapped, error) {
	return nil, errors.New("mapped arenas require linux")
}

// Close implements io.Closer.
func (m *Mapped) Close() error {
	return nil
}
