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

// Package binary encodes the fixed-size records handed from the boot stage to
// the kernel through physical memory: raw memory map entries and the kernel
// parameter block.
//
// A record is a struct, array or unsigned or signed integer, or a
// composition of those. Records are encoded little endian in field order
// with no implicit padding. Blank fields encode as zero and are skipped on
// decode.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

// ErrSize is returned by Decode when the buffer does not match the size of
// the record.
var ErrSize = errors.New("buffer size does not match record")

var le = binary.LittleEndian

// Size returns the encoded size of record v, which may be a pointer.
func Size(v any) int {
	return sizeOf(reflect.Indirect(reflect.ValueOf(v)).Type())
}

func sizeOf(t reflect.Type) int {
	switch t.Kind() {
	case reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32:
		return 4
	case reflect.Int64, reflect.Uint64:
		return 8
	case reflect.Array:
		return t.Len() * sizeOf(t.Elem())
	case reflect.Struct:
		n := 0
		for i := 0; i < t.NumField(); i++ {
			n += sizeOf(t.Field(i).Type)
		}
		return n
	default:
		panic("invalid type: " + t.String())
	}
}

// Marshal appends the encoding of record v, which may be a pointer, to buf.
func Marshal(buf []byte, v any) []byte {
	return put(buf, reflect.Indirect(reflect.ValueOf(v)))
}

func put(buf []byte, v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return putUint(buf, v.Type().Size(), uint64(v.Int()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return putUint(buf, v.Type().Size(), v.Uint())
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			buf = put(buf, v.Index(i))
		}
		return buf
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).Name == "_" {
				buf = append(buf, make([]byte, sizeOf(t.Field(i).Type))...)
				continue
			}
			buf = put(buf, v.Field(i))
		}
		return buf
	default:
		panic("invalid type: " + v.Type().String())
	}
}

func putUint(buf []byte, size uintptr, x uint64) []byte {
	switch size {
	case 1:
		return append(buf, byte(x))
	case 2:
		return le.AppendUint16(buf, uint16(x))
	case 4:
		return le.AppendUint32(buf, uint32(x))
	default:
		return le.AppendUint64(buf, x)
	}
}

// Unmarshal decodes buf into the record v points to. buf must be exactly
// Size(v) bytes long.
func Unmarshal(buf []byte, v any) {
	p := reflect.ValueOf(v)
	if p.Kind() != reflect.Pointer {
		panic("invalid type: " + p.Type().String())
	}
	if rest := get(buf, p.Elem()); len(rest) != 0 {
		panic(fmt.Sprintf("buffer too long by %d bytes", len(rest)))
	}
}

// Decode is Unmarshal for buffers read back from memory the caller does not
// control: a size mismatch is an error.
func Decode(buf []byte, v any) error {
	if want := Size(v); len(buf) != want {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrSize, len(buf), want)
	}
	Unmarshal(buf, v)
	return nil
}

func get(buf []byte, v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x, rest := getUint(buf, v.Type().Size())
		v.SetInt(signExtend(x, v.Type().Size()))
		return rest
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		x, rest := getUint(buf, v.Type().Size())
		v.SetUint(x)
		return rest
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			buf = get(buf, v.Index(i))
		}
		return buf
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() {
				buf = get(buf, f)
			} else {
				buf = buf[sizeOf(f.Type()):]
			}
		}
		return buf
	default:
		panic("invalid type: " + v.Type().String())
	}
}

func getUint(buf []byte, size uintptr) (uint64, []byte) {
	switch size {
	case 1:
		return uint64(buf[0]), buf[1:]
	case 2:
		return uint64(le.Uint16(buf)), buf[2:]
	case 4:
		return uint64(le.Uint32(buf)), buf[4:]
	default:
		return le.Uint64(buf), buf[8:]
	}
}

func signExtend(x uint64, size uintptr) int64 {
	shift := 64 - 8*size
	return int64(x<<shift) >> shift
}
