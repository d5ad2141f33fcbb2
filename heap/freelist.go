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

// The segregated free list is CLASS_COUNT intrusive doubly-linked lists,
// one per size class. Each list is threaded through the free blocks
// themselves using 8-byte arena-relative offsets rather than raw pointers
// (offset 0 never names a real block, since the arena's first 4 bytes are
// padding — it doubles as the list-terminator sentinel). New entries go in
// at the head, so within a class allocation is LIFO among equally-sized
// candidates.
//
// lowBin/highBin cache the inclusive range of classes known to hold at
// least one free block, so Allocate never has to scan classes it already
// knows are empty. They're recomputed incrementally: insert only ever
// widens the range, and when a removal empties the class sitting at
// either edge, the bound is walked outward until it lands on a non-empty
// class or the sentinel (classCount for low, -1 for high).

func (h *Heap) listInsert(off uintptr, size int) {
	idx := classIndex(size)
	b := h.blockAt(off)
	head := h.freeHead[idx]
	b.setPrevLink(0)
	b.setNextLink(head)
	if head != 0 {
		h.blockAt(uintptr(head)).setPrevLink(uint64(off))
	}
	h.freeHead[idx] = uint64(off)

	if idx < h.lowBin {
		h.lowBin = idx
	}
	if idx > h.highBin {
		h.highBin = idx
	}
}

func (h *Heap) listRemove(off uintptr, size int) {
	idx := classIndex(size)
	b := h.blockAt(off)
	prev := b.prevLink()
	next := b.nextLink()

	if prev != 0 {
		h.blockAt(uintptr(prev)).setNextLink(next)
	} else {
		h.freeHead[idx] = next
	}
	if next != 0 {
		h.blockAt(uintptr(next)).setPrevLink(prev)
	}

	if h.freeHead[idx] == 0 {
		h.fixupBinsAfterEmptying(idx)
	}
}

func (h *Heap) fixupBinsAfterEmptying(idx int) {
	if idx == h.lowBin {
		j := idx
		for j < classCount && h.freeHead[j] == 0 {
			j++
		}
		h.lowBin = j
	}
	if idx == h.highBin {
		j := idx
		for j >= 0 && h.freeHead[j] == 0 {
			j--
		}
		h.highBin = j
	}
}

// findFit returns the offset of the first free block whose actual size is
// >= total, or ok == false if no class from max(want_class, lowBin) up to
// highBin holds one.
func (h *Heap) findFit(total int) (off uintptr, ok bool) {
	want := classIndex(total)
	start := want
	if h.lowBin > start {
		start = h.lowBin
	}
	for class := start; class <= h.highBin; class++ {
		cur := h.freeHead[class]
		for cur != 0 {
			b := h.blockAt(uintptr(cur))
			if b.size() >= total {
				return uintptr(cur), true
			}
			cur = b.nextLink()
		}
	}
	return 0, false
}
