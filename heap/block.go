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
	"math/bits"
	"unsafe"

	"github.com/heapkit/valloc/internal/ptrutil"
)

const (
	// arenaPadding is written once at Lo() so every block header that
	// follows sits at an offset of 4 mod 8 and every payload at an offset
	// of 0 mod 8; payloads are 8-byte aligned when Lo() itself is.
	arenaPadding = 4

	headerSize = 4
	footerSize = 4
	linkSize   = 8 // width of each of a free block's prev/next offset links

	// minBlockSize = header + prev link + next link + footer. A free block
	// always needs room for both links even though an allocated block of
	// the same size only needs the header and footer.
	minBlockSize = headerSize + 2*linkSize + footerSize

	freeFlagBit  = uint32(1) << 31
	sizeUnitMask = freeFlagBit - 1

	classCount     = 28
	splitThreshold = 64

	// maxRequestBytes bounds a single Allocate call's n at 2^(CLASS_COUNT+3).
	// Requests within 16 bytes of that ceiling account for a total (req+8,
	// 8-byte aligned) of at least 2^(CLASS_COUNT+3) bytes, past the top
	// class's natural range, so classIndex clamps their blocks into it.
	maxRequestBytes = 1 << (classCount + 3)
)

func align8(n int) int {
	return (n + 7) &^ 7
}

// packMeta encodes a block's header/footer word: the block size in 8-byte
// units in the low 31 bits, free-ness in the top bit.
func packMeta(sizeBytes int, free bool) uint32 {
	units := uint32(sizeBytes / 8)
	if free {
		units |= freeFlagBit
	}
	return units
}

func unpackMeta(word uint32) (sizeBytes int, free bool) {
	return int(word&sizeUnitMask) * 8, word&freeFlagBit != 0
}

// classIndex returns the segregated-list class a block of sizeBytes
// belongs in: class x holds blocks whose unit count falls in
// [2^x, 2^(x+1)). Sizes large enough to overflow the class array are
// clamped into the open-ended top class rather than rejected — the 31-bit
// metadata word can describe blocks far larger than CLASS_COUNT's natural
// span covers, and those oversized blocks still need a home in the free
// list.
func classIndex(sizeBytes int) int {
	units := uint(sizeBytes / 8)
	if units < 1 {
		units = 1
	}
	idx := bits.Len(units) - 1
	if idx >= classCount {
		idx = classCount - 1
	}
	return idx
}

// block is a cursor onto one header/footer-delimited region of the arena,
// identified by its offset from the arena's base address. It carries no
// state of its own.
type block struct {
	h   *Heap
	off uintptr
}

func (h *Heap) blockAt(off uintptr) block { return block{h: h, off: off} }

func (b block) metaWord() uint32 {
	return ptrutil.ReadUint32(b.h.basePtr, b.off)
}

func (b block) size() int {
	sz, _ := unpackMeta(b.metaWord())
	return sz
}

func (b block) isFree() bool {
	_, free := unpackMeta(b.metaWord())
	return free
}

func (b block) footerOffset(size int) uintptr {
	return b.off + uintptr(size) - footerSize
}

// writeMeta stamps both the header and footer words for a block whose size
// is already known (i.e. not a query into an existing footer).
func (b block) writeMeta(size int, free bool) {
	word := packMeta(size, free)
	ptrutil.WriteUint32(b.h.basePtr, b.off, word)
	ptrutil.WriteUint32(b.h.basePtr, b.footerOffset(size), word)
}

func (b block) payloadPtr() unsafe.Pointer {
	return ptrutil.Add(b.h.basePtr, b.off+headerSize)
}

func (b block) hasPrev() bool { return b.off > arenaPadding }

func (b block) prevFooterOffset() uintptr { return b.off - footerSize }

func (b block) prevLink() uint64 {
	return ptrutil.ReadUint64(b.h.basePtr, b.off+headerSize)
}

func (b block) nextLink() uint64 {
	return ptrutil.ReadUint64(b.h.basePtr, b.off+headerSize+linkSize)
}

func (b block) setPrevLink(v uint64) {
	ptrutil.WriteUint64(b.h.basePtr, b.off+headerSize, v)
}

func (b block) setNextLink(v uint64) {
	ptrutil.WriteUint64(b.h.basePtr, b.off+headerSize+linkSize, v)
}
