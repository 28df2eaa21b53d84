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
	"sync/atomic"
	"time"
)

// writeNotifierLoop and flushNotifierLoop are C9. progressGate.Advance
// is the only thing that wakes a caller blocked in
// WaitWrittenAtLeast/WaitFlushedAtLeast. writeNotifierLoop is the only
// caller of writeProgress.Advance, so the writer's hot path stays a
// single atomic store, at the cost of up to one NotifierTimeoutUs tick
// of extra wakeup latency. flushProgress is advanced both by
// flushNotifierLoop and directly by flusherStep after each fsync.
func (e *Engine) writeNotifierLoop() {
	defer e.wg.Done()
	e.pollLoop(func() { e.writeProgress.Advance(uint64(e.ring.WriteLSN())) })
}

func (e *Engine) flushNotifierLoop() {
	defer e.wg.Done()
	e.pollLoop(func() { e.flushProgress.Advance(atomic.LoadUint64(&e.flushedLSN)) })
}

func (e *Engine) pollLoop(step func()) {
	ticker := time.NewTicker(time.Duration(e.cfg.NotifierTimeoutUs) * time.Microsecond)
	defer ticker.Stop()
	for {
		step()
		select {
		case <-e.shutdown:
			step()
			return
		case <-ticker.C:
		}
	}
}
