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

package arena

import (
	"fmt"
	"unsafe"
)

// Arena is the concrete host "memory library" consumed by heap.Heap through
// the heap.HostArena interface (spec.md §6). It simulates a single
// mmap-style mapping: a fixed, reserved address range with a movable break
// pointer that can only move forward except for the explicit Reset used
// between test traces.
//
// Arena itself knows nothing about headers, footers, free lists or any
// other allocator concept — it is the external collaborator spec.md §1
// describes as out of scope for the core, implemented here because the
// core has to run against something concrete.
type Arena struct {
	mem       []byte // reserved mapping, length == capacity, fixed for the Arena's life
	committed int    // bytes of mem currently backing the allocator-visible range
	lo        unsafe.Pointer
}

// New reserves a mapping of maxSize bytes and returns an Arena with nothing
// committed yet (Hi() == Lo()-1, Size() == 0). maxSize must be positive.
func New(maxSize int) (*Arena, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("arena: maxSize must be positive, got %d", maxSize)
	}
	mem := acquireSlab(maxSize)
	return &Arena{
		mem: mem,
		lo:  unsafe.Pointer(&mem[0]),
	}, nil
}

// Lo returns the lowest address in the mapping. Stable for the Arena's
// lifetime.
func (a *Arena) Lo() uintptr {
	return uintptr(a.lo)
}

// Hi returns the highest currently in-use address in the mapping. It moves
// whenever Grow (or Reset) changes how much of the reservation is
// committed.
func (a *Arena) Hi() uintptr {
	return a.Lo() + uintptr(a.committed) - 1
}

// Grow extends the break by delta bytes and returns the break address as it
// was before the extension (the start of the newly-available region).
// delta must be positive. Returns an error if the reservation is exhausted.
func (a *Arena) Grow(delta int) (uintptr, error) {
	if delta <= 0 {
		return 0, fmt.Errorf("arena: grow delta must be positive, got %d", delta)
	}
	if a.committed+delta > len(a.mem) {
		return 0, fmt.Errorf("arena: exhausted: committed=%d requested=%d reserved=%d",
			a.committed, delta, len(a.mem))
	}
	old := a.Lo() + uintptr(a.committed)
	a.committed += delta
	return old, nil
}

// Reset returns the break to its initial position. Used between test
// traces, never during normal allocator operation.
func (a *Arena) Reset() {
	a.committed = 0
}

// Size returns the number of bytes currently committed.
func (a *Arena) Size() int {
	return a.committed
}

// Capacity returns the total size of the reservation, i.e. the maximum
// value Size can ever reach.
func (a *Arena) Capacity() int {
	return len(a.mem)
}

// Release returns the Arena's backing slab to the slab pool. The Arena must
// not be used afterward.
func (a *Arena) Release() {
	releaseSlab(a.mem)
	a.mem = nil
	a.lo = nil
	a.committed = 0
}
