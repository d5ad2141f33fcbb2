/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ptrutil holds the handful of unsafe.Pointer <-> uintptr helpers
// used by heap, plus an InRange bounds helper, so raw offset arithmetic
// lives in one place instead of being reimplemented at every call site.
package ptrutil

import "unsafe"

// Add returns base+off as a Pointer. It exists only to keep call sites
// reading "offset from base" instead of raw pointer arithmetic.
func Add(base unsafe.Pointer, off uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(base) + off)
}

// InRange reports whether [addr, addr+width) lies within [lo, hi).
func InRange(addr, width, lo, hi uintptr) bool {
	return addr >= lo && addr+width <= hi
}

// ReadUint32 loads the uint32 at base+off.
func ReadUint32(base unsafe.Pointer, off uintptr) uint32 {
	return *(*uint32)(Add(base, off))
}

// WriteUint32 stores v at base+off.
func WriteUint32(base unsafe.Pointer, off uintptr, v uint32) {
	*(*uint32)(Add(base, off)) = v
}

// ReadUint64 loads the uint64 at base+off.
func ReadUint64(base unsafe.Pointer, off uintptr) uint64 {
	return *(*uint64)(Add(base, off))
}

// WriteUint64 stores v at base+off.
func WriteUint64(base unsafe.Pointer, off uintptr, v uint64) {
	*(*uint64)(Add(base, off)) = v
}
