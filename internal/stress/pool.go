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

// Package stress fans a batch of independent jobs out across a bounded
// number of goroutines — used to run many separate heap.Heap instances
// concurrently, never to add concurrency inside a single Heap, which
// remains strictly single-threaded.
//
// The worker loop and panic recovery follow concurrency/gopool/gopool.go's
// runWorker/runTask, trimmed down for a one-shot batch: a stress run
// starts with a fixed job list, drains it, and exits, so there's no
// equivalent of gopool's idle-worker aging or ticker-driven eviction to
// carry over.
package stress

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
)

// Pool runs a fixed batch of jobs across at most workers goroutines.
type Pool struct {
	workers      int
	panicHandler func(r interface{})
}

// New returns a Pool that runs jobs across at most workers goroutines.
// workers < 1 is treated as 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// SetPanicHandler overrides how a recovered job panic is reported. By
// default it's logged the same way gopool logs an unrecovered task panic.
func (p *Pool) SetPanicHandler(f func(r interface{})) {
	p.panicHandler = f
}

// Run executes every job in jobs exactly once and returns every error
// produced, including one synthesized from a recovered panic. Order
// between errors is not meaningful; jobs run out of order across workers.
func (p *Pool) Run(jobs []func() error) []error {
	if len(jobs) == 0 {
		return nil
	}

	queue := make(chan func() error, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	n := p.workers
	if n > len(jobs) {
		n = len(jobs)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for job := range queue {
				if err := p.runJob(job); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return errs
}

func (p *Pool) runJob(job func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			} else {
				log.Printf("stress: panic in job: %v: %s", r, debug.Stack())
			}
			err = fmt.Errorf("stress: job panicked: %v", r)
		}
	}()
	return job()
}
