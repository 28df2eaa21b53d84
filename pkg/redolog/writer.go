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
	"time"

	"github.com/redologengine/redolog/pkg/logblock"
	"github.com/redologengine/redolog/pkg/logfiles"
	"github.com/redologengine/redolog/pkg/logio"
	"github.com/redologengine/redolog/pkg/lsn"
)

// writerLoop is C7: it turns fully-written, contiguous stretches of the
// ring buffer into formatted blocks on disk. It spins briefly on no
// progress (cheap, avoids a syscall on the common "another block just
// closed" case) before parking on blockClosed, per spec.md §4.9's
// spin-then-wait shape.
func (e *Engine) writerLoop() {
	defer e.wg.Done()
	spin := 0
	for {
		select {
		case <-e.shutdown:
			e.writerDrain()
			return
		default:
		}

		if e.writerStep() {
			spin = 0
			continue
		}

		spin++
		if spin < e.cfg.WriterSpinRounds {
			continue
		}
		spin = 0
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.WriterTimeoutUs)*time.Microsecond)
		e.blockClosed.Wait(ctx)
		cancel()
	}
}

// writerDrain performs writerStep until it makes no more progress, so
// anything closed right before shutdown still reaches the file, per
// spec.md §4.8's clean-shutdown scenario.
func (e *Engine) writerDrain() {
	for e.writerStep() {
	}
}

// writerStep formats at most one contiguous run of newly completed
// blocks into the write-ahead staging buffer, flushing that buffer to
// the file (and publishing write_lsn) once it reaches
// WriteAheadBufferBytes, the current file ends, or there is nothing new
// to format, per spec.md §4.7 step 5. Returns whether it made progress.
func (e *Engine) writerStep() bool {
	e.writerMu.Lock()
	fromBlock := e.writtenBoundaryBlock
	curSN := e.ring.CurrentSN()
	upperBound := e.ring.BlockIndexForSN(curSN) + 1
	endBlock, _ := e.ring.Written.ScanForward(fromBlock, upperBound)

	fileEndBlock := e.currentFile.EndLSN().BlockIndex()
	hitFileEnd := false
	if endBlock > fileEndBlock {
		endBlock = fileEndBlock
		hitFileEnd = true
	}
	if endBlock <= fromBlock {
		// Nothing newly closed to stage; push out whatever is already
		// waiting rather than let it sit indefinitely while the writer
		// parks on blockClosed.
		progressed := e.flushWriteAheadLocked()
		e.writerMu.Unlock()
		return progressed
	}

	n := endBlock - fromBlock
	chunk := make([]byte, n*lsn.BlockSize)
	for i, blk := uint64(0), fromBlock; blk < endBlock; i, blk = i+1, blk+1 {
		meta := e.blocks.Get(blk)
		startLSN := lsn.LSN(blk * lsn.BlockSize)
		dataOff := e.ring.BlockDataOffset(blk)
		payload := e.ring.Buf()[dataOff : dataOff+uint64(meta.DataLen)]

		hdr := logblock.DataHeader{
			BlockNo:       lsn.BlockNo(startLSN),
			DataLen:       meta.DataLen,
			FirstRecGroup: meta.FirstRecGroup,
			EpochNo:       lsn.EpochNo(startLSN),
		}
		// Block payloads are written unencrypted: hdr.Encrypted stays
		// false and e.cipher is not applied here or anywhere else on the
		// write path, even with cfg.Encrypt set. age's ciphertext is longer
		// than its plaintext, so it would not fit the fixed lsn.DataSize
		// slot a block reserves.
		blkBuf, err := logblock.SerializeDataBlock(hdr, payload)
		if err != nil {
			e.writerMu.Unlock()
			return false
		}
		copy(chunk[i*lsn.BlockSize:], blkBuf)
	}

	e.writtenBoundaryBlock = endBlock
	e.waBuf = append(e.waBuf, chunk...)

	ok := true
	if hitFileEnd || len(e.waBuf) >= int(e.cfg.WriteAheadBufferBytes) {
		// A file boundary forces an out-of-cycle flush: the staged
		// bytes are offsets into the file about to be rotated away,
		// and rotateFile must not run until they are written out.
		ok = e.flushWriteAheadLocked()
	}
	e.writerMu.Unlock()

	if hitFileEnd && ok {
		e.rotateFile()
	}
	return ok
}

// flushWriteAheadLocked issues the staged write-ahead bytes (however
// many blocks writerStep has accumulated since the last flush) as a
// single write and advances write_lsn by that span. Caller must hold
// writerMu. Returns whether it did any work.
func (e *Engine) flushWriteAheadLocked() bool {
	if len(e.waBuf) == 0 {
		return false
	}
	writeLSN := e.ring.WriteLSN()
	fileOff := int64(uint64(writeLSN)-uint64(e.currentFile.StartLSN)) + int64(lsn.HdrSize)
	if err := e.current.WriteBlocksAt(e.waBuf, fileOff); err != nil {
		return false
	}
	e.ring.PublishWriteLSN(writeLSN.Add(uint64(len(e.waBuf))))
	e.waBuf = e.waBuf[:0]
	return true
}

// rotateFile marks the current file full and swaps in the next one,
// preferring a governor-prepared spare file over creating one inline.
// Failure to produce a next file leaves the current file active; the
// writer simply stops making progress at its end boundary until the
// governor frees capacity, which Reserve's own capacity check already
// prevents producers from running past.
func (e *Engine) rotateFile() {
	e.filesMu.Lock()
	defer e.filesMu.Unlock()

	e.writerMu.Lock()
	full := e.currentFile
	e.writerMu.Unlock()

	nextStart := full.EndLSN()
	nextID := e.nextFileID

	var sparePath string
	var size int64
	if len(e.spares) > 0 {
		sp := e.spares[0]
		e.spares = e.spares[1:]
		sparePath, size = sp.path, sp.size
	} else if limits := e.Limits(); limits.NextFileSize > 0 {
		size = limits.NextFileSize
	} else {
		return
	}

	newFile, handle, err := e.openOrCreateRotationTarget(sparePath, nextID, nextStart, size)
	if err != nil {
		return
	}

	e.writerMu.Lock()
	err = rewriteFlags(e.current, full.StartLSN, e.uuid, e.creator, logblock.FlagFileFull)
	e.writerMu.Unlock()
	if err != nil {
		handle.Close()
		return
	}
	e.dict.SetFull(full.ID, true)
	if err := e.dict.Add(newFile); err != nil {
		handle.Close()
		return
	}
	e.nextFileID = nextID + 1

	e.writerMu.Lock()
	old := e.current
	e.current = handle
	e.currentFile = newFile
	e.writerMu.Unlock()

	e.flusherMu.Lock()
	e.scratch = old
	e.flusherMu.Unlock()

	e.fileAvailable.Signal()
}

// openOrCreateRotationTarget links a prepared spare file (rewriting its
// header to the real start LSN) or creates a fresh file of the given
// size directly, when the governor has not kept a spare ready.
func (e *Engine) openOrCreateRotationTarget(sparePath string, id int64, start lsn.LSN, size int64) (logfiles.File, *logio.Handle, error) {
	if sparePath != "" {
		return e.linkSpareFile(sparePath, id, start)
	}
	newFile, handle, err := e.createFileOnDisk(id, start, size, 0)
	if err != nil {
		return logfiles.File{}, nil, err
	}
	if err := handle.Sync(); err != nil {
		handle.Close()
		return logfiles.File{}, nil, err
	}
	return newFile, handle, nil
}

// linkSpareFile renames a governor-prepared spare file into its real
// name, rewrites its header with the start LSN it will actually carry,
// and opens it for writing.
func (e *Engine) linkSpareFile(sparePath string, id int64, start lsn.LSN) (logfiles.File, *logio.Handle, error) {
	h, err := logio.Open(sparePath)
	if err != nil {
		return logfiles.File{}, nil, err
	}
	fi, err := os.Stat(sparePath)
	if err != nil {
		h.Close()
		return logfiles.File{}, nil, err
	}
	if err := rewriteFlags(h, start, e.uuid, e.creator, 0); err != nil {
		h.Close()
		return logfiles.File{}, nil, err
	}
	if err := h.Sync(); err != nil {
		h.Close()
		return logfiles.File{}, nil, err
	}
	h.Close()

	realPath := e.filePath(id, false)
	if err := os.Rename(sparePath, realPath); err != nil {
		return logfiles.File{}, nil, err
	}
	handle, err := logio.Open(realPath)
	if err != nil {
		return logfiles.File{}, nil, err
	}
	return logfiles.File{ID: id, StartLSN: start, SizeBytes: fi.Size()}, handle, nil
}
