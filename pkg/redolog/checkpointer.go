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

	"github.com/redologengine/redolog/pkg/logblock"
	"github.com/redologengine/redolog/pkg/logio"
	"github.com/redologengine/redolog/pkg/lsn"
)

// checkpointerLoop is C10: on a fixed period (or whenever the governor's
// aggressive-checkpoint threshold is crossed), it publishes a new
// checkpoint_lsn no later than flushed_to_disk_lsn, alternating between
// the file's two checkpoint header slots so a crash mid-write leaves the
// other slot intact (spec.md §4.1, §4.6).
func (e *Engine) checkpointerLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Duration(e.cfg.CheckpointPeriodMs) * time.Millisecond)
	defer ticker.Stop()
	slot := 0
	for {
		select {
		case <-e.shutdown:
			e.writeCheckpoint(&slot)
			return
		case <-ticker.C:
			e.writeCheckpoint(&slot)
		case <-e.checkpointDue:
			// The governor sends here to ask for an out-of-cycle checkpoint
			// once aggressive-checkpoint age is crossed; writeCheckpoint is
			// a no-op if nothing has advanced since the last one.
			e.writeCheckpoint(&slot)
		}
	}
}

// writeCheckpoint advances the published checkpoint LSN to
// min(flushed_to_disk_lsn, oldest_dirty_page_lsn_reported_by_page_flusher,
// oldest_open_group_lsn_from_C6), block-aligned down, if that candidate
// has moved since the last checkpoint (spec.md §4.10 steps 2-3):
// checkpoint_lsn must never run ahead of what every registered consumer
// other than the checkpointer itself still needs, or of a redo group
// CloseRange hasn't finished marking durable, since the invariant it
// publishes is "every record with end LSN <= checkpoint_lsn is durable
// and reflected in the page store". Writes to whichever of the two
// header slots was not written last time.
func (e *Engine) writeCheckpoint(slot *int) {
	e.filesMu.Lock()
	front, ok := e.dict.Front()
	e.filesMu.Unlock()
	if !ok {
		return
	}

	e.checkpointerMu.Lock()
	defer e.checkpointerMu.Unlock()

	target := lsn.LSN(atomic.LoadUint64(&e.flushedLSN))

	e.consumers.mu.Lock()
	cs := append([]Consumer(nil), e.consumers.consumers...)
	e.consumers.mu.Unlock()
	for _, c := range cs {
		// The checkpointer's own entry reports the last checkpoint, which
		// would pin target to it.
		if l := c.OldestLSN(); c.Name != "checkpointer" && l < target {
			target = l
		}
	}

	if openGroup := e.oldestOpenGroupLSNLocked(); openGroup < target {
		target = openGroup
	}

	target = target.BlockAlignDown()
	if uint64(target) <= atomic.LoadUint64(&e.lastCheckpointLSN) {
		return
	}

	offset := int64(logblock.CheckpointHeader1Offset)
	if *slot%2 == 1 {
		offset = logblock.CheckpointHeader2Offset
	}
	*slot++

	h, err := e.checkpointHandle(front.ID)
	if err != nil {
		return
	}
	defer h.Close()

	buf := logblock.SerializeCheckpointHeader(logblock.CheckpointHeader{CheckpointLSN: target})
	if err := h.WriteBlocksAt(buf, offset); err != nil {
		return
	}
	if !e.cfg.SkipCheckpointFsyncs {
		if err := h.Sync(); err != nil {
			return
		}
	}

	atomic.StoreUint64(&e.lastCheckpointLSN, uint64(target))
}

// oldestOpenGroupLSNLocked returns the low-water mark of recent_closed
// (C6): the start LSN of the oldest block that still has an open
// (not yet CloseRange'd) record group, or the current write_lsn if
// every block up to it has closed. Like the writer's own
// writtenBoundaryBlock, the scan resumes from the last place it left
// off rather than rescanning from the start of the log every time.
// Caller must hold checkpointerMu.
func (e *Engine) oldestOpenGroupLSNLocked() lsn.LSN {
	upTo := e.ring.WriteLSN().BlockIndex() + 1
	if upTo <= e.checkpointBoundaryBlock {
		return e.ring.WriteLSN()
	}

	blk, open := e.ring.Closed.ScanForward(e.checkpointBoundaryBlock, upTo)
	if !open {
		e.checkpointBoundaryBlock = upTo
		return e.ring.WriteLSN()
	}
	e.checkpointBoundaryBlock = blk
	return lsn.LSN(blk * lsn.BlockSize)
}

// checkpointHandle opens the front file (the one whose header slots
// carry the checkpoint) with a fresh handle, even when the writer
// already has that file open. The checkpointer only ever needs a handle
// transiently, so it always opens and closes its own rather than trying
// to share the writer's or flusher's; the open counts against logio's
// MaxOpenHandles budget while it lasts.
func (e *Engine) checkpointHandle(frontID int64) (*logio.Handle, error) {
	return logio.Open(e.filePath(frontID, false))
}
