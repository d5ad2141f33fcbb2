package stress

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapkit/valloc/arena"
	"github.com/heapkit/valloc/heap"
)

const (
	stressIterations = 1 << 17
	stressSlots      = 17 // k in 0..16
)

// runStressLoop drives one heap entirely through its Dispatch, allocating
// 1<<k bytes into slots 0..16, freeing them in the same order, and
// repeating stressIterations times before validating once at the end.
// Freeing low-to-high means slot 0's block is the first one free and each
// later free merges left into the growing free run; by the time slot 16 (always at
// the tail) is freed, every slot below it should already have merged into
// one contiguous free run, so the final free collapses back to a single
// tail-trim instead of leaving free-list fragments behind.
func runStressLoop(d heap.Dispatch) error {
	var ptrs [stressSlots]unsafe.Pointer
	for iter := 0; iter < stressIterations; iter++ {
		for k := 0; k < stressSlots; k++ {
			n := 1 << k
			p := d.Allocate(n)
			if p == nil {
				return fmt.Errorf("iteration %d slot %d: allocate(%d) returned nil", iter, k, n)
			}
			ptrs[k] = p
		}
		for k := 0; k < stressSlots; k++ {
			d.Release(ptrs[k])
		}
	}
	return d.Validate()
}

func TestStressLoopSingleHeap(t *testing.T) {
	a, err := arena.New(8 << 20)
	require.NoError(t, err)
	defer a.Release()

	h, err := heap.New(a)
	require.NoError(t, err)

	baseline := a.Size()
	require.NoError(t, runStressLoop(h.Bind()))
	// The physical break is never lowered, but heap_end retreats to its
	// starting point after each full free cycle, so every cycle reuses the
	// same committed bytes: one block per slot on top of the baseline.
	oneCycle := 0
	for k := 0; k < stressSlots; k++ {
		total := ((1 << k) + 8 + 7) &^ 7
		if total < 24 {
			total = 24
		}
		oneCycle += total
	}
	assert.Equal(t, baseline+oneCycle, a.Size(), "arena should not grow past one cycle's worth of blocks")
}

func TestStressLoopManyHeapsConcurrently(t *testing.T) {
	const heapCount = 4
	pool := New(heapCount)

	jobs := make([]func() error, heapCount)
	for i := 0; i < heapCount; i++ {
		jobs[i] = func() error {
			a, err := arena.New(8 << 20)
			if err != nil {
				return err
			}
			defer a.Release()

			h, err := heap.New(a)
			if err != nil {
				return err
			}
			return runStressLoop(h.Bind())
		}
	}

	errs := pool.Run(jobs)
	assert.Empty(t, errs)
}
