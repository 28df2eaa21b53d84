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
	"sync/atomic"
	"time"
)

// flusherLoop is C8: it fsyncs the current file (and a just-rotated-out
// scratch handle, if one is pending) whenever write_lsn has advanced
// past what was last made durable, then publishes flushed_to_disk_lsn.
// SkipFsyncs lets tests exercise the rest of the pipeline without paying
// for real fsync latency, per spec.md §6.
func (e *Engine) flusherLoop() {
	defer e.wg.Done()
	spin := 0
	for {
		select {
		case <-e.shutdown:
			e.flusherDrain()
			return
		default:
		}

		if e.flusherStep() {
			spin = 0
			continue
		}

		spin++
		if spin < e.cfg.FlusherSpinRounds {
			continue
		}
		spin = 0
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.FlusherTimeoutUs)*time.Microsecond)
		e.writeProgress.WaitAtLeast(ctx, atomic.LoadUint64(&e.flushedLSN)+1)
		cancel()
	}
}

func (e *Engine) flusherDrain() {
	for e.flusherStep() {
	}
}

// flusherStep fsyncs if write_lsn has progressed, returning whether it
// did any work.
func (e *Engine) flusherStep() bool {
	target := e.ring.WriteLSN()
	if uint64(target) <= atomic.LoadUint64(&e.flushedLSN) {
		return false
	}

	e.flusherMu.Lock()
	scratch := e.scratch
	e.scratch = nil
	e.flusherMu.Unlock()

	if scratch != nil {
		if !e.cfg.SkipFsyncs {
			scratch.Sync()
		}
		scratch.Close()
	}

	if !e.cfg.SkipFsyncs {
		e.writerMu.Lock()
		cur := e.current
		e.writerMu.Unlock()
		if err := cur.Sync(); err != nil {
			return false
		}
	}

	atomic.StoreUint64(&e.flushedLSN, uint64(target))
	e.flushProgress.Advance(uint64(target))
	return true
}
