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

package bootinfo

import "dogos.dev/dogos/pkg/hostarch"

// Framebuffer describes the linear frame buffer handed to the kernel.
// Address is the virtual address of the mapping, normally FramebufferBase.
type Framebuffer struct {
	Address hostarch.Addr
	Width   uint32
	Height  uint32

	// Pitch is the number of pixels per scan line, which may exceed Width.
	Pitch uint32

	BitsPerPixel uint8
	RedMask      uint32
	GreenMask    uint32
	BlueMask     uint32
}

// Size returns the number of bytes spanned by the frame buffer.
func (f Framebuffer) Size() uint64 {
	return uint64(f.Pitch) * uint64(f.Height) * uint64((f.BitsPerPixel+7)/8)
}

// Pages returns the number of pages spanned by the frame buffer.
func (f Framebuffer) Pages() uint64 {
	return hostarch.PagesFor(f.Size())
}
