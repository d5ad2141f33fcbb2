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

package heap

import "unsafe"

// Dispatch bundles one Heap's four operations as bound function values.
// A workload driver that wants to run the same sequence of operations
// against many independently-constructed Heaps (internal/stress does
// exactly this) can hold a Dispatch instead of threading a *Heap plus its
// method names through every call site.
type Dispatch struct {
	Allocate func(n int) unsafe.Pointer
	Release  func(p unsafe.Pointer)
	Resize   func(p unsafe.Pointer, n int) unsafe.Pointer
	Validate func() error
}

// Bind returns the Dispatch for h.
func (h *Heap) Bind() Dispatch {
	return Dispatch{
		Allocate: h.Allocate,
		Release:  h.Release,
		Resize:   h.Resize,
		Validate: h.Validate,
	}
}
