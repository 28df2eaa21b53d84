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
	"os"
	"sync/atomic"
	"time"

	"github.com/redologengine/redolog/pkg/logblock"
	"github.com/redologengine/redolog/pkg/logcapacity"
	"github.com/redologengine/redolog/pkg/logio"
)

// governorTick is the fixed recompute period of spec.md §4.4: short
// enough that capacity limits react quickly to a burst of writes,
// long enough not to matter as CPU overhead.
const governorTick = 10 * time.Millisecond

// governorLoop is C4: on every tick (or an early wake from Reserve
// hitting soft/hard capacity) it recomputes capacity limits, reclaims
// files no registered consumer needs any more, keeps one spare file
// ready for the writer's next rotation, and throttles a keep-alive
// dummy reservation so write_lsn never goes fully idle for too long
// (spec.md §4.4 step 9).
func (e *Engine) governorLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.shutdown:
			return
		default:
		}

		e.governorIteration()
		e.iterationDone.Signal()

		ctx, cancel := context.WithTimeout(context.Background(), governorTick)
		e.governorWake.Wait(ctx)
		cancel()
	}
}

func (e *Engine) governorIteration() {
	e.recomputeLimits()
	e.reclaimConsumedFiles()
	e.maintainSpares()
	e.maybeEmitDummyRecord()
}

// recomputeLimits feeds the current dictionary and logical-size/
// checkpoint-age measurements into logcapacity.Update and publishes the
// result, requesting an out-of-cycle checkpoint if checkpoint age has
// crossed the aggressive threshold.
func (e *Engine) recomputeLimits() {
	writeLSN := e.ring.WriteLSN()
	oldest := e.oldestNeededLSN()
	logicalSize := writeLSN.Sub(oldest)
	if logicalSize < 0 {
		logicalSize = 0
	}
	checkpointAge := writeLSN.Sub(e.LastCheckpointLSN())
	if checkpointAge < 0 {
		checkpointAge = 0
	}

	e.filesMu.Lock()
	next := logcapacity.Update(e.dict, e.Limits(), e.tunables, logicalSize, checkpointAge)
	e.filesMu.Unlock()
	e.setLimits(next)

	if checkpointAge > next.AggressiveCheckpointMinAge {
		select {
		case e.checkpointDue <- struct{}{}:
		default:
		}
	}
}

// reclaimConsumedFiles marks full files no consumer still needs as
// consumed, preferring to recycle one into the spare pool (a rename, no
// truncate/rewrite of its bulk) over deleting it outright, per spec.md
// §4.4 step 6's "recycle before delete" preference. The file currently
// open for writing is never touched here.
func (e *Engine) reclaimConsumedFiles() {
	oldest := e.oldestNeededLSN()

	e.filesMu.Lock()
	defer e.filesMu.Unlock()

	for _, f := range e.dict.All() {
		if f.ID == e.currentFile.ID || !f.Full {
			continue
		}
		if f.EndLSN() > oldest {
			continue
		}
		e.dict.SetConsumed(f.ID, true)

		if len(e.spares) < 1 {
			sparePath := e.filePath(e.spareNextID, true)
			e.spareNextID++
			if err := os.Rename(e.filePath(f.ID, false), sparePath); err == nil {
				e.spares = append(e.spares, spareFile{path: sparePath, size: f.SizeBytes})
				e.dict.Erase(f.ID)
				continue
			}
		}
		if err := os.Remove(e.filePath(f.ID, false)); err == nil {
			e.dict.Erase(f.ID)
		}
	}
}

// maintainSpares ensures at least one spare file is ready for the
// writer's next rotation, so rotateFile rarely has to create one inline
// on the writer's own time.
func (e *Engine) maintainSpares() {
	limits := e.Limits()
	if limits.NextFileSize <= 0 {
		return
	}

	e.filesMu.Lock()
	need := len(e.spares) < 1
	id := e.spareNextID
	if need {
		e.spareNextID++
	}
	e.filesMu.Unlock()
	if !need {
		return
	}

	path := e.filePath(id, true)
	h, err := logio.Create(path)
	if err != nil {
		return
	}
	defer h.Close()

	if err := h.Truncate(limits.NextFileSize); err != nil {
		os.Remove(path)
		return
	}
	if err := h.Preallocate(limits.NextFileSize); err != nil {
		os.Remove(path)
		return
	}
	hdr := logblock.FileHeader{
		Format:   logblock.CurrentFormat,
		UUID:     e.uuid,
		StartLSN: 0, // rewritten by linkSpareFile once this spare is claimed
		Creator:  e.creator,
		Flags:    logblock.FlagNotInitialized,
	}
	if err := h.WriteBlocksAt(logblock.SerializeFileHeader(hdr), 0); err != nil {
		os.Remove(path)
		return
	}
	if err := h.Sync(); err != nil {
		os.Remove(path)
		return
	}

	e.filesMu.Lock()
	e.spares = append(e.spares, spareFile{path: path, size: limits.NextFileSize})
	e.filesMu.Unlock()
	e.fileAvailable.Signal()
}

// maybeEmitDummyRecord appends a minimal reservation when write_lsn has
// not moved since the last tick, so a consumer blocked in
// WaitWrittenAtLeast eventually sees forward progress even during an
// idle period, bounded by dummyLimiter (spec.md §4.4 step 9's
// "occasional no-op record").
func (e *Engine) maybeEmitDummyRecord() {
	cur := uint64(e.ring.WriteLSN())
	prev := atomic.SwapUint64(&e.lastObservedWriteLSN, cur)
	if cur != prev {
		return
	}
	if !e.dummyLimiter.Allow() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), governorTick)
	defer cancel()
	start, end, err := e.Reserve(ctx, 1)
	if err != nil {
		return
	}
	buf := e.Buf()
	for _, sp := range e.Spans(start, end) {
		for i := sp.Offset; i < sp.Offset+sp.Length; i++ {
			buf[i] = 0
		}
	}
	e.CloseRange(start, end, 0)
}
