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

import (
	"fmt"
	"unsafe"

	"github.com/heapkit/valloc/internal/oplog"
	"github.com/heapkit/valloc/internal/ptrutil"
)

const oplogCapacity = 256

// Heap is a single-threaded segregated-fit allocator over a HostArena. A
// Heap is never safe for concurrent use by multiple goroutines without
// external synchronization — see internal/stress for running many
// independent Heaps in parallel instead.
type Heap struct {
	host    HostArena
	basePtr unsafe.Pointer
	heapEnd uintptr // offset from basePtr, exclusive

	freeHead [classCount]uint64
	lowBin   int
	highBin  int

	log *oplog.Ring
}

// New builds a Heap over host. It claims the arena's first 4 bytes as
// alignment padding so every block payload that follows sits 8-byte
// aligned (given an 8-byte aligned Lo()); New fails if the host can't even
// cover that much.
func New(host HostArena) (*Heap, error) {
	if host == nil {
		return nil, fmt.Errorf("heap: host arena must not be nil")
	}
	base := host.Lo()
	if _, err := host.Grow(arenaPadding); err != nil {
		return nil, fmt.Errorf("heap: cannot pad arena by %d bytes: %w", arenaPadding, err)
	}
	h := &Heap{
		host:    host,
		basePtr: unsafe.Pointer(base),
		heapEnd: arenaPadding,
		lowBin:  classCount,
		highBin: -1,
		log:     oplog.New(oplogCapacity),
	}
	return h, nil
}

// growHeapEnd advances the logical heap end by n bytes, extending the
// underlying arena's physical break only if it doesn't already cover the
// new end. It returns the offset the logical end was at before the
// advance (the start of the newly-available region).
func (h *Heap) growHeapEnd(n int) (uintptr, error) {
	old := h.heapEnd
	want := old + uintptr(n)
	if last := uintptr(h.basePtr) + want - 1; last > h.host.Hi() {
		shortfall := int(last - h.host.Hi())
		if _, err := h.host.Grow(shortfall); err != nil {
			return 0, err
		}
	}
	h.heapEnd = want
	return old, nil
}

// shrinkTail retreats the logical heap end by n bytes without touching the
// arena's physical break — used by Release's tail-trim shortcut, which
// never needs the host to give memory back (spec.md §1: returning memory
// to the OS is out of scope).
func (h *Heap) shrinkTail(n int) {
	h.heapEnd -= uintptr(n)
}

func (h *Heap) offsetOf(p unsafe.Pointer) uintptr {
	return uintptr(p) - uintptr(h.basePtr)
}

// blockOffsetFromPayload recovers a block's header offset from a payload
// pointer handed back to a caller.
func (h *Heap) blockOffsetFromPayload(p unsafe.Pointer) uintptr {
	return h.offsetOf(p) - headerSize
}

// Allocate reserves n bytes and returns a pointer to an 8-byte aligned
// payload region of at least n bytes, or nil if n is non-positive, exceeds
// the single-request ceiling, or the host arena is exhausted.
func (h *Heap) Allocate(n int) unsafe.Pointer {
	if n <= 0 || n > maxRequestBytes {
		return nil
	}
	total := align8(n + headerSize + footerSize)
	if total < minBlockSize {
		total = minBlockSize
	}

	var ptr unsafe.Pointer
	if off, ok := h.findFit(total); ok {
		ptr = h.splitAndHandOut(off, total)
	} else {
		old, err := h.growHeapEnd(total)
		if err != nil {
			return nil
		}
		b := h.blockAt(old)
		b.writeMeta(total, false)
		ptr = b.payloadPtr()
	}

	if ptr != nil {
		h.log.Push(oplog.Allocate, uintptr(n), h.offsetOf(ptr))
	}
	return ptr
}

// splitAndHandOut removes the free block at off from its list and hands
// back a payload pointer for a block of exactly total bytes there. If the
// leftover after carving out total is larger than splitThreshold it's left
// behind as a new free block; otherwise the whole free block is handed out
// as-is to avoid manufacturing slivers no request could ever use.
func (h *Heap) splitAndHandOut(off uintptr, total int) unsafe.Pointer {
	b := h.blockAt(off)
	actual := b.size()
	h.listRemove(off, actual)

	leftover := actual - total
	if leftover <= splitThreshold {
		b.writeMeta(actual, false)
		return b.payloadPtr()
	}

	b.writeMeta(total, false)
	tailOff := off + uintptr(total)
	tail := h.blockAt(tailOff)
	tail.writeMeta(leftover, true)
	h.listInsert(tailOff, leftover)
	return b.payloadPtr()
}

// Release returns the block backing p to the allocator. Releasing a block
// whose header is already marked free, or a pointer whose block lies past
// the current heap end (as a tail-trimmed block does), panics rather than
// silently corrupting the free list; other pointers Allocate never
// returned are not detected.
func (h *Heap) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}
	off := h.blockOffsetFromPayload(p)
	if off >= h.heapEnd {
		panic("valloc: release of pointer outside the heap")
	}
	b := h.blockAt(off)
	if b.isFree() {
		panic("valloc: release of already-free block")
	}
	size := b.size()

	if b.hasPrev() {
		prevWord := ptrutil.ReadUint32(h.basePtr, b.prevFooterOffset())
		prevSize, prevFree := unpackMeta(prevWord)
		if prevFree {
			prevOff := off - uintptr(prevSize)
			h.listRemove(prevOff, prevSize)
			off = prevOff
			size += prevSize
			b = h.blockAt(off)
		}
	}

	if off+uintptr(size) == h.heapEnd {
		h.shrinkTail(size)
		h.log.Push(oplog.Release, h.offsetOf(p), 0)
		return
	}

	nextOff := off + uintptr(size)
	if nextOff < h.heapEnd {
		next := h.blockAt(nextOff)
		if next.isFree() {
			nextSize := next.size()
			h.listRemove(nextOff, nextSize)
			size += nextSize
		}
	}

	b.writeMeta(size, true)
	h.listInsert(off, size)
	h.log.Push(oplog.Release, h.offsetOf(p), 0)
}

// Resize changes the block backing p to hold at least n bytes, returning a
// (possibly different) pointer to the resized payload. The contents up to
// the smaller of the old and new sizes are preserved.
func (h *Heap) Resize(p unsafe.Pointer, n int) unsafe.Pointer {
	if p == nil {
		return h.Allocate(n)
	}
	if n <= 0 {
		h.Release(p)
		return nil
	}

	off := h.blockOffsetFromPayload(p)
	b := h.blockAt(off)
	if b.isFree() {
		panic("valloc: resize of already-free block")
	}
	oldTotal := b.size()
	newTotal := align8(n + headerSize)

	if newTotal <= oldTotal {
		h.log.Push(oplog.Resize, uintptr(n), h.offsetOf(p))
		return p
	}

	if off+uintptr(oldTotal) == h.heapEnd {
		delta := newTotal - oldTotal
		if _, err := h.growHeapEnd(delta); err != nil {
			return nil
		}
		b.writeMeta(newTotal, false)
		h.log.Push(oplog.Resize, uintptr(n), h.offsetOf(p))
		return p
	}

	newPtr := h.Allocate(n)
	if newPtr == nil {
		return nil
	}
	// old_total - 4 deliberately copies the whole old payload plus the old
	// block's 4-byte footer word; the destination payload is always at
	// least old_total bytes, so the extra bytes land in scratch space,
	// never out of bounds.
	copySize := oldTotal - headerSize
	src := unsafe.Slice((*byte)(p), copySize)
	dst := unsafe.Slice((*byte)(newPtr), copySize)
	copy(dst, src)

	h.Release(p)
	h.log.Push(oplog.Resize, uintptr(n), h.offsetOf(newPtr))
	return newPtr
}
