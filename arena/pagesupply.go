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

// Package arena implements the "host memory library" that spec.md treats as
// an external collaborator: a grow-only mapping with a movable break
// pointer. pagesupply.go is the part of that job that has nothing to do
// with break-pointer semantics — handing out and recycling the big backing
// []byte slabs an Arena reserves its address space from.
//
// cache/mempool.go recycles RPC payload buffers through a size-classed
// sync.Pool; this is the same idea one layer lower, but built directly on
// bytedance/gopkg's own size-classed byte cache (lang/mcache) instead of a
// hand-rolled pool, since mcache already is that pool. Reservations outside
// mcache's pooled range fall back to lang/dirtmake, which skips the
// zero-fill make() normally does — harmless here because a fresh
// reservation's bytes beyond the committed break are never read by the
// allocator (the same way an OS never zeroes pages a process hasn't
// touched yet).
package arena

import (
	"math/bits"

	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/bytedance/gopkg/lang/mcache"
)

const (
	minSlabSize = 64 << 10 // 64KB: anything smaller isn't worth pooling
	maxSlabSize = 1 << 30  // 1GB: reservations larger than this bypass mcache
)

// poolIndexFor reports which rounded-up power-of-two bucket sz would land
// in within mcache's pooled range, or -1 if sz falls outside it and should
// bypass the pool entirely.
func poolIndexFor(sz int) int {
	if sz > maxSlabSize {
		return -1
	}
	if sz <= minSlabSize {
		return 0
	}
	rounded := 1 << bits.Len(uint(sz-1))
	return bits.Len(uint(rounded)) - bits.Len(uint(minSlabSize))
}

// acquireSlab returns a []byte of length exactly size. Reservations within
// mcache's pooled range are served (and eventually reused) through it and
// zeroed; larger ones come straight from dirtmake and are not zero-filled,
// matching how a real OS falls back to a fresh mapping once no cached
// region of the right size is free.
func acquireSlab(size int) []byte {
	if poolIndexFor(size) < 0 {
		return dirtmake.Bytes(size, size)
	}
	b := mcache.Malloc(size)
	for i := range b {
		b[i] = 0
	}
	return b
}

// releaseSlab returns buf to mcache, if it came from the pooled range.
// Slabs obtained via dirtmake are left for the garbage collector.
func releaseSlab(buf []byte) {
	if poolIndexFor(cap(buf)) < 0 {
		return
	}
	mcache.Free(buf)
}
