/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package workpool bounds the number of concurrent blocking/CPU-heavy
// handler tasks that may run off a session's own goroutine. A plugin
// handler that needs to do real work (hash a password, run a query)
// submits it here, yields its session (stream.Stream.Yield), and is woken
// through the session's stream.Wakeupper once the task completes - the
// reactor dispatches the wake like any other readiness event.
package workpool

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/nabbar/dracon/stream"
)

// Pool bounds concurrent task execution at capacity, using a weighted
// semaphore so a single Submit can reserve more than one slot if the
// caller weights tasks by cost.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	wg     sync.WaitGroup
	closed int32
}

// New creates a Pool that admits at most capacity concurrent tasks.
func New(capacity int64) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(capacity),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit runs task on a pool goroutine once a slot is available, then
// calls wake.Wake() so the session suspended in stream.Stream.Yield
// resumes. Submit itself does not block the caller's session goroutine
// beyond acquiring the semaphore slot; callers are expected to call this
// from outside the session's own blocking read/write path.
func (p *Pool) Submit(task func() error, wake stream.Wakeupper) error {
	if atomic.LoadInt32(&p.closed) != 0 {
		return ErrorClosed.Error()
	}

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return ErrorSubmitCancelled.Error(err)
	}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() { _ = wake.Wake() }()

		_ = task()
	}()

	return nil
}

// Close stops admitting new tasks and cancels any pending Acquire calls;
// it does not wait for in-flight tasks, use Wait for that.
func (p *Pool) Close() {
	if atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		p.cancel()
	}
}

// Wait blocks until every submitted task has finished running.
func (p *Pool) Wait() {
	p.wg.Wait()
}
