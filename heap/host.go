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

// HostArena is the external collaborator a Heap runs on top of: a single
// grow-only mapping with a movable break pointer. arena.Arena is the
// concrete implementation this module ships, but Heap only ever talks to
// this interface so the allocator core stays independent of how the
// mapping is actually backed.
type HostArena interface {
	// Lo returns the lowest address in the mapping. Must be stable for the
	// life of the arena.
	Lo() uintptr
	// Hi returns the highest address currently committed. If nothing has
	// been committed yet this is Lo()-1.
	Hi() uintptr
	// Grow extends the committed region by delta bytes (delta > 0) and
	// returns the address the break was at before the extension.
	Grow(delta int) (uintptr, error)
	// Reset returns the break to the start of the mapping.
	Reset()
	// Size returns the number of bytes currently committed.
	Size() int
}
