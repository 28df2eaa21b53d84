/*
Copyright 2024 The Redo Log Engine Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redolog

import (
	"context"
	"sync"
)

// event is a broadcast wakeup with no payload: every waiter blocked in
// Wait when Signal is called wakes up, in the classic "close a channel,
// swap in a new one" idiom that stands in for a condition variable here
// (no third-party condvar/broadcast primitive appears anywhere in the
// example corpus, so this is the idiomatic Go replacement). Waited on by
// the governor's 10ms-tick-or-wake loop (governorWake) and the writer's
// idle park (blockClosed); fileAvailable and iterationDone are signalled
// but nothing waits on them.
type event struct {
	mu sync.Mutex
	ch chan struct{}
}

func newEvent() *event { return &event{ch: make(chan struct{})} }

// Signal wakes every current waiter. It never blocks.
func (e *event) Signal() {
	e.mu.Lock()
	ch := e.ch
	e.ch = make(chan struct{})
	e.mu.Unlock()
	close(ch)
}

// Wait blocks until the next Signal or until ctx is done. ctx must not
// be nil.
func (e *event) Wait(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// progressGate tracks a monotonically non-decreasing uint64 (write_lsn
// or flushed_to_disk_lsn) and lets callers block until it reaches a
// target, per spec.md §4.9's notifier threads: the notifiers (and the
// flusher, for flushProgress) call Advance, which is cheap; WaitAtLeast
// does the broadcast fan out work off the hot path.
type progressGate struct {
	mu  sync.Mutex
	val uint64
	ch  chan struct{}
}

func newProgressGate(initial uint64) *progressGate {
	return &progressGate{val: initial, ch: make(chan struct{})}
}

// Advance raises the published value to v if v is higher than the
// current one, waking every waiter. A no-op if v does not advance it.
func (g *progressGate) Advance(v uint64) {
	g.mu.Lock()
	if v <= g.val {
		g.mu.Unlock()
		return
	}
	g.val = v
	ch := g.ch
	g.ch = make(chan struct{})
	g.mu.Unlock()
	close(ch)
}

// Value returns the current published value.
func (g *progressGate) Value() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.val
}

// WaitAtLeast blocks until the published value is >= target or ctx is
// done.
func (g *progressGate) WaitAtLeast(ctx context.Context, target uint64) error {
	for {
		g.mu.Lock()
		if g.val >= target {
			g.mu.Unlock()
			return nil
		}
		ch := g.ch
		g.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
