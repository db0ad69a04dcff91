/*
 * Copyright 2024 The EdgeLink Authors.
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

// Package pool provides the worker pool used for detached message delivery.
//
// Note: This file is inspired by:
// Valyala, A. (2023) workerpool.go (Version 1.48.0)
// [Source code]. https://github.com/valyala/fasthttp/blob/master/workerpool.go
// 1.Change the Serve(c net.Conn) method to Submit(fn func()) error method
package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"

	stack "github.com/edgelinkgo/edgelink/utils/runtime"
)

var (
	// ErrNoIdleWorkers is returned when MaxWorkersCount workers are busy.
	ErrNoIdleWorkers = errors.New("no idle workers")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// WorkerPool serves incoming functions using a pool of workers in FILO order.
// The most recently stopped worker will serve the next incoming function,
// which keeps CPU caches hot.
//
//	wp := &WorkerPool{MaxWorkersCount: 100}
//	wp.Start()
//	defer wp.Stop()
//	err := wp.Submit(func() { ... })
type WorkerPool struct {
	// MaxWorkersCount is the maximum number of concurrently running workers.
	MaxWorkersCount int
	// MaxIdleWorkerDuration is how long an idle worker is kept before it exits.
	// Default is 10 seconds.
	MaxIdleWorkerDuration time.Duration
	// PanicHandler is called with the recovered value and the stack when a
	// submitted function panics. The worker survives either way.
	PanicHandler func(recovered interface{}, stack string)

	lock         sync.Mutex
	workersCount int
	mustStop     bool
	ready        []*workerChan
	stopCh       chan struct{}
	// inflight tracks submitted functions that have not returned yet.
	inflight       sync.WaitGroup
	workerChanPool sync.Pool
	startOnce      sync.Once
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

var workerChanCap = func() int {
	// Use blocking workerChan if GOMAXPROCS=1.
	// This immediately switches Submit to the worker, which results
	// in higher performance.
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	// Use non-blocking workerChan if GOMAXPROCS>1,
	// since otherwise the Submit caller (the source loop) will be blocked
	// until the worker picks the function up.
	return 1
}()

// Start starts the idle worker cleaner. It is safe to call more than once.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.lock.Lock()
		wp.stopCh = make(chan struct{})
		stopCh := wp.stopCh
		wp.lock.Unlock()
		wp.workerChanPool.New = func() interface{} {
			return &workerChan{
				ch: make(chan func(), workerChanCap),
			}
		}
		go func() {
			var scratch []*workerChan
			ticker := time.NewTicker(wp.getMaxIdleWorkerDuration())
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					wp.clean(&scratch)
				}
			}
		}()
	})
}

// Stop stops accepting functions and releases idle workers. Functions already
// submitted keep running; use Wait to block until they return.
func (wp *WorkerPool) Stop() {
	wp.lock.Lock()
	if wp.stopCh == nil || wp.mustStop {
		wp.mustStop = true
		wp.lock.Unlock()
		return
	}
	close(wp.stopCh)
	ready := wp.ready
	for i := range ready {
		ready[i].ch <- nil
		ready[i] = nil
	}
	wp.ready = ready[:0]
	wp.mustStop = true
	wp.lock.Unlock()
}

// Release implements types.Pool.
func (wp *WorkerPool) Release() {
	wp.Stop()
}

// Wait blocks until every submitted function has returned.
func (wp *WorkerPool) Wait() {
	wp.inflight.Wait()
}

// Submit runs fn on an idle or new worker.
func (wp *WorkerPool) Submit(fn func()) error {
	wp.lock.Lock()
	stopped := wp.mustStop
	started := wp.stopCh != nil
	wp.lock.Unlock()
	if stopped {
		return ErrPoolStopped
	}
	if !started {
		wp.Start()
	}
	ch := wp.getCh()
	if ch == nil {
		return ErrNoIdleWorkers
	}
	wp.inflight.Add(1)
	ch.ch <- fn
	return nil
}

func (wp *WorkerPool) getMaxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

func (wp *WorkerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.getMaxIdleWorkerDuration())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)

	// Use binary-search algorithm to find out the index of the least recently worker which can be cleaned up.
	l, r := 0, n-1
	for l <= r {
		mid := (l + r) / 2
		if criticalTime.After(ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	i := r
	if i == -1 {
		wp.lock.Unlock()
		return
	}

	*scratch = append((*scratch)[:0], ready[:i+1]...)
	m := copy(ready, ready[i+1:])
	for i = m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	// Notify obsolete workers to stop outside the lock, since ch.ch may block.
	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

func (wp *WorkerPool) getCh() *workerChan {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil
		}
		vch := wp.workerChanPool.Get()
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch
}

func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()
	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return false
	}
	wp.ready = append(wp.ready, ch)
	wp.lock.Unlock()
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	for fn := range ch.ch {
		if fn == nil {
			break
		}
		wp.run(fn)
		if !wp.release(ch) {
			break
		}
	}
	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}

func (wp *WorkerPool) run(fn func()) {
	defer wp.inflight.Done()
	defer func() {
		if e := recover(); e != nil && wp.PanicHandler != nil {
			wp.PanicHandler(e, stack.Stack())
		}
	}()
	fn()
}
