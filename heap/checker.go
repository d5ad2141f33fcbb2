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

	"github.com/heapkit/valloc/hash/xfnv"
	"github.com/heapkit/valloc/internal/ptrutil"
)

// Validate walks the heap's internal structures and reports the first
// inconsistency it finds. It never mutates state and is safe to call
// between any two operations. Three passes, each cheap to state
// independently and useful to keep separate when a corruption report needs
// to say which invariant broke:
//
//  1. free-list pass: every block reachable from freeHead[c] claims to be
//     free and belongs in class c.
//  2. heap-walk pass: walking header-to-header from the first block lands
//     exactly on heapEnd, every header/footer pair agrees, and no two
//     adjacent blocks are both free (coalescing should have merged them).
//  3. cross-check pass: the free count the list pass saw for each class
//     matches the free count the walk pass saw.
func (h *Heap) Validate() error {
	listCounts, err := h.validateFreeLists()
	if err != nil {
		return h.diagnose(err)
	}

	walkCounts, err := h.validateHeapWalk()
	if err != nil {
		return h.diagnose(err)
	}

	for c := 0; c < classCount; c++ {
		if listCounts[c] != walkCounts[c] {
			return h.diagnose(fmt.Errorf(
				"class %d: free list has %d blocks but heap walk found %d",
				c, listCounts[c], walkCounts[c]))
		}
	}

	observedLow, observedHigh := classCount, -1
	for c := 0; c < classCount; c++ {
		if listCounts[c] > 0 {
			if c < observedLow {
				observedLow = c
			}
			if c > observedHigh {
				observedHigh = c
			}
		}
	}
	if observedLow != h.lowBin || observedHigh != h.highBin {
		return h.diagnose(fmt.Errorf(
			"bin cache stale: cached [%d,%d], actual [%d,%d]",
			h.lowBin, h.highBin, observedLow, observedHigh))
	}

	return nil
}

func (h *Heap) validateFreeLists() ([classCount]int, error) {
	var counts [classCount]int
	for c := 0; c < classCount; c++ {
		off := h.freeHead[c]
		var prev uint64
		for off != 0 {
			b := h.blockAt(uintptr(off))
			if !b.isFree() {
				return counts, fmt.Errorf("class %d: block at offset %d is not marked free", c, off)
			}
			sz := b.size()
			if got := classIndex(sz); got != c {
				return counts, fmt.Errorf("class %d: block at offset %d (size %d) belongs in class %d", c, off, sz, got)
			}
			if b.prevLink() != prev {
				return counts, fmt.Errorf("class %d: block at offset %d has broken prev link", c, off)
			}
			counts[c]++
			prev = off
			off = b.nextLink()
		}
	}
	return counts, nil
}

func (h *Heap) validateHeapWalk() (counts [classCount]int, err error) {
	off := uintptr(arenaPadding)
	prevFree := false
	for off < h.heapEnd {
		b := h.blockAt(off)
		word := b.metaWord()
		size, free := unpackMeta(word)
		if size < minBlockSize {
			return counts, fmt.Errorf("heap walk: block at offset %d reports impossible size %d", off, size)
		}
		if off+uintptr(size) > h.heapEnd {
			return counts, fmt.Errorf("heap walk: block at offset %d (size %d) overruns heap end %d", off, size, h.heapEnd)
		}
		footer := b.footerOffset(size)
		if got := ptrutil.ReadUint32(h.basePtr, footer); got != word {
			return counts, fmt.Errorf("heap walk: block at offset %d header/footer mismatch (%#x vs %#x)", off, word, got)
		}
		if free && prevFree {
			return counts, fmt.Errorf("heap walk: block at offset %d is free and immediately follows another free block", off)
		}
		if free {
			counts[classIndex(size)]++
		}
		prevFree = free
		off += uintptr(size)
	}
	if off != h.heapEnd {
		return counts, fmt.Errorf("heap walk: ended at offset %d, expected heap end %d", off, h.heapEnd)
	}
	return counts, nil
}

// diagnose wraps a validation failure with the recent operation history and
// a content fingerprint of the committed region, so a failure observed long
// after the operation that caused it still carries a trail back to it.
func (h *Heap) diagnose(cause error) error {
	recent := h.log.Recent(8)
	fp := xfnv.Hash(unsafe.Slice((*byte)(h.basePtr), int(h.heapEnd)))
	return fmt.Errorf("%w (fingerprint=%#x, recent ops=%v)", cause, fp, recent)
}
