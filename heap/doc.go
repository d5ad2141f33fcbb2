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

// Package heap implements a single-threaded, segregated-fit heap allocator
// on top of a grow-only byte arena.
//
// The allocator's data structures are:
//
//	Heap:     top-level state — the logical heap_end cursor, the 28-entry
//	          segregated free list, and its low/high occupancy cache.
//	block:    a cursor onto one header/footer-delimited region of the
//	          arena, identified by its offset from the arena's base.
//	HostArena: the external collaborator that owns the real mapping and
//	          its break pointer (see arena.Arena for the concrete
//	          implementation used by this module's own tests).
//
// Allocating proceeds as:
//
//  1. Round the request up to a block size and look in the segregated free
//     list for the lowest class that could hold it.
//  2. Walk classes upward from there, first-fit within each class's list.
//  3. If nothing fits, grow the logical heap end, extending the underlying
//     arena only if its physical break doesn't already cover the request.
//
// Freeing immediately coalesces with both neighbours using the
// footer-of-previous / header-of-next trick, and retreats the logical heap
// end instead of touching the free list at all when the freed block abuts
// it (tail-trim).
//
// This code was written with the header/footer and free-list layout
// description in mind throughout; see block.go and freelist.go for the
// concrete bit layout.
package heap
