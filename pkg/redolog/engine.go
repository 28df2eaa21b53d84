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

// Package redolog assembles pkg/lsn, pkg/logblock, pkg/logcrypt,
// pkg/logio, pkg/logfiles, pkg/logcapacity and pkg/logbuffer into the
// running engine of spec.md §2: a single owned value with explicit
// Open/Start/Stop/Close (spec.md §9 "Globals and singletons"), six background
// goroutines, and the lock-free reservation API producers call on the
// fast path.
package redolog

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"filippo.io/age"
	"github.com/redologengine/redolog/pkg/logblock"
	"github.com/redologengine/redolog/pkg/logbuffer"
	"github.com/redologengine/redolog/pkg/logcapacity"
	"github.com/redologengine/redolog/pkg/logconfig"
	"github.com/redologengine/redolog/pkg/logcrypt"
	"github.com/redologengine/redolog/pkg/logfiles"
	"github.com/redologengine/redolog/pkg/logio"
	"github.com/redologengine/redolog/pkg/lsn"
	"github.com/redologengine/redolog/pkg/redoerr"
	"go4.org/syncutil"
	"golang.org/x/time/rate"
)

// subdirName is the dedicated subdirectory spec.md §6 requires under the
// configured data root.
const subdirName = "#innodb_redo"

// spareFile is a prepared-but-unlinked file the governor has created
// ahead of need (spec.md's "unused file").
type spareFile struct {
	path string
	size int64
}

// Engine is one redo log instance: its file set, ring buffer, capacity
// state, and background threads.
//
// Lock order (spec.md §5), outermost first: filesMu < writerMu <
// flusherMu < checkpointerMu < limitsMu. No code path acquires a lock
// and then waits on an event that only a holder of a later lock in this
// order could signal.
type Engine struct {
	cfg     logconfig.Config
	dir     string
	cipher  *logcrypt.Cipher
	uuid    uint32
	creator string

	filesMu     sync.Mutex
	dict        *logfiles.Dictionary
	nextFileID  int64
	spares      []spareFile
	spareNextID int64

	writerMu             sync.Mutex
	current              *logio.Handle
	currentFile          logfiles.File
	writtenBoundaryBlock uint64
	waBuf                []byte // staged, not-yet-written-to-file blocks (spec.md §4.7 step 5)

	flusherMu sync.Mutex
	scratch   *logio.Handle

	checkpointerMu          sync.Mutex
	lastCheckpointLSN       uint64 // atomic
	checkpointBoundaryBlock uint64

	limitsMu sync.Mutex
	limits   logcapacity.Limits
	tunables logcapacity.Tunables

	ring   *logbuffer.Ring
	blocks *blockDirectory

	flushedLSN    uint64 // atomic
	writeProgress *progressGate
	flushProgress *progressGate

	fileAvailable *event
	governorWake  *event
	iterationDone *event
	blockClosed   *event
	checkpointDue chan struct{}

	consumers *consumerRegistry

	// admission bounds how many producers may concurrently wait-and-retry
	// a reservation under hard-capacity backpressure, so a capacity
	// shortfall throttles the producer population instead of every
	// blocked goroutine hammering the CAS loop in lockstep.
	admission *syncutil.Gate

	dummyLimiter         *rate.Limiter
	lastObservedWriteLSN uint64 // atomic, governor-only

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// Open initializes an Engine from cfg: a fresh data directory is cold
// started (spec.md §8 scenario 1), an existing one is reopened and its
// write position recovered by scanning forward to the first unreadable
// block (the normal end-of-log signal, spec.md §7).
func Open(cfg logconfig.Config) (*Engine, error) {
	dir := filepath.Join(cfg.Dir, subdirName)
	result, dict, err := logfiles.Discover(dir)
	if err != nil {
		return nil, err
	}
	switch result {
	case logfiles.FindNewFiles:
		return coldStart(cfg, dir)
	case logfiles.FindOK:
		return openExisting(cfg, dir, dict)
	case logfiles.FindUninitialized:
		return nil, fmt.Errorf("redolog: %q: %w", dir, redoerr.ErrUninitializedFiles)
	case logfiles.FindFormatTooOld:
		return nil, fmt.Errorf("redolog: %q: %w", dir, redoerr.ErrFormatTooOld)
	case logfiles.FindFormatTooNew:
		return nil, fmt.Errorf("redolog: %q: %w", dir, redoerr.ErrFormatTooNew)
	case logfiles.FindMissingNewest:
		return nil, fmt.Errorf("redolog: %q: %w", dir, redoerr.ErrMissingNewestFile)
	default:
		return nil, fmt.Errorf("redolog: %q: %w", dir, redoerr.ErrFilesInconsistent)
	}
}

func newUUID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func newEngineShell(cfg logconfig.Config, dir string) (*Engine, error) {
	var cipher *logcrypt.Cipher
	if cfg.Encrypt {
		recipient, err := age.ParseX25519Recipient(cfg.EncryptRecipient)
		if err != nil {
			return nil, fmt.Errorf("redolog: %w: %v", redoerr.ErrEncryptionUnavailable, err)
		}
		var identity age.Identity
		if cfg.EncryptIdentityFile != "" {
			keyBytes, err := os.ReadFile(cfg.EncryptIdentityFile)
			if err != nil {
				return nil, fmt.Errorf("redolog: reading identity file %q: %w", cfg.EncryptIdentityFile, redoerr.ErrEncryptionUnavailable)
			}
			ids, err := age.ParseIdentities(bytes.NewReader(keyBytes))
			if err != nil || len(ids) == 0 {
				return nil, fmt.Errorf("redolog: parsing identity file %q: %w", cfg.EncryptIdentityFile, redoerr.ErrEncryptionUnavailable)
			}
			identity = ids[0]
		}
		cipher = logcrypt.NewCipher(recipient, identity)
	}
	e := &Engine{
		cfg:           cfg,
		dir:           dir,
		cipher:        cipher,
		uuid:          newUUID(),
		creator:       "redolog",
		tunables:      logcapacity.DefaultTunables(cfg.CapacityBytes),
		blocks:        newBlockDirectory(cfg.RecentWrittenSlots),
		fileAvailable: newEvent(),
		governorWake:  newEvent(),
		iterationDone: newEvent(),
		blockClosed:   newEvent(),
		checkpointDue: make(chan struct{}, 1),
		consumers:     newConsumerRegistry(),
		admission:     syncutil.NewGate(cfg.MaxConcurrentThreads),
		dummyLimiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		shutdown:      make(chan struct{}),
	}
	e.tunables.MaxConcurrentThreads = cfg.MaxConcurrentThreads
	return e, nil
}

func coldStart(cfg logconfig.Config, dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("redolog: mkdir %q: %w", dir, redoerr.ErrIO)
	}
	e, err := newEngineShell(cfg, dir)
	if err != nil {
		return nil, err
	}
	e.dict = logfiles.NewDictionary()
	e.limits = logcapacity.Update(e.dict, logcapacity.Limits{}, e.tunables, 0, 0)

	size := e.limits.NextFileSize
	if size <= 0 {
		return nil, fmt.Errorf("redolog: capacity_bytes too small to fit even one file: %w", redoerr.ErrOutOfSpace)
	}
	f, h, err := e.createFileOnDisk(0, lsn.LogStartLSN, size, logblock.FlagNotInitialized)
	if err != nil {
		return nil, err
	}

	initialLSN := lsn.SNToLSNFrom(lsn.LogStartLSN, 0)
	if err := writeCheckpointHeaders(h, initialLSN, initialLSN); err != nil {
		h.Close()
		return nil, err
	}
	if err := rewriteFlags(h, f.StartLSN, e.uuid, e.creator, 0); err != nil {
		h.Close()
		return nil, err
	}
	if err := h.Sync(); err != nil {
		h.Close()
		return nil, err
	}

	if err := e.dict.Add(f); err != nil {
		h.Close()
		return nil, err
	}
	e.current = h
	e.currentFile = f
	e.writtenBoundaryBlock = lsn.LogStartLSN.BlockIndex()
	e.checkpointBoundaryBlock = lsn.LogStartLSN.BlockIndex()
	e.nextFileID = 1

	e.ring, err = logbuffer.NewRing(uint64(cfg.BufferBytes), lsn.LogStartLSN, cfg.RecentWrittenSlots, cfg.RecentClosedSlots)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint64(&e.lastCheckpointLSN, uint64(initialLSN))
	atomic.StoreUint64(&e.flushedLSN, uint64(initialLSN))
	e.writeProgress = newProgressGate(uint64(initialLSN))
	e.flushProgress = newProgressGate(uint64(initialLSN))
	return e, nil
}

func openExisting(cfg logconfig.Config, dir string, dict *logfiles.Dictionary) (*Engine, error) {
	e, err := newEngineShell(cfg, dir)
	if err != nil {
		return nil, err
	}
	e.dict = dict
	front, ok := dict.Front()
	if !ok {
		return nil, fmt.Errorf("redolog: %q: empty dictionary: %w", dir, redoerr.ErrFilesInconsistent)
	}
	back, _ := dict.Back()

	cp, err := readNewestCheckpoint(e.filePath(front.ID, false))
	if err != nil {
		return nil, err
	}

	endLSN, err := scanLogEnd(dict, e.filePath)
	if err != nil {
		return nil, err
	}

	h, err := logio.Open(e.filePath(back.ID, false))
	if err != nil {
		return nil, err
	}
	e.current = h
	e.currentFile = back
	e.writtenBoundaryBlock = endLSN.BlockIndex()
	e.checkpointBoundaryBlock = front.StartLSN.BlockIndex()
	e.nextFileID = back.ID + 1

	e.ring, err = logbuffer.NewRing(uint64(cfg.BufferBytes), front.StartLSN, cfg.RecentWrittenSlots, cfg.RecentClosedSlots)
	if err != nil {
		h.Close()
		return nil, err
	}
	// endLSN is a block boundary; the SN starts at that block's first data byte.
	e.ring.Seed(lsn.LSNToSNFrom(front.StartLSN, endLSN.Add(lsn.HeaderSize)), endLSN)

	e.limits = logcapacity.Update(e.dict, logcapacity.Limits{}, e.tunables, endLSN.Sub(cp.CheckpointLSN), endLSN.Sub(cp.CheckpointLSN))
	atomic.StoreUint64(&e.lastCheckpointLSN, uint64(cp.CheckpointLSN))
	atomic.StoreUint64(&e.flushedLSN, uint64(endLSN))
	e.writeProgress = newProgressGate(uint64(endLSN))
	e.flushProgress = newProgressGate(uint64(endLSN))
	return e, nil
}

// filePath returns the on-disk path for file id, current or spare.
func (e *Engine) filePath(id int64, spare bool) string {
	if spare {
		return filepath.Join(e.dir, fmt.Sprintf("#ib_redo%d_tmp", id))
	}
	return filepath.Join(e.dir, fmt.Sprintf("#ib_redo%d", id))
}

// createFileOnDisk creates, sizes, and header-writes a new file at id
// with the given start LSN, returning both the dictionary record and the
// open handle (caller decides what else to write before closing/keeping
// it open).
func (e *Engine) createFileOnDisk(id int64, start lsn.LSN, size int64, flags uint32) (logfiles.File, *logio.Handle, error) {
	path := e.filePath(id, false)
	h, err := logio.Create(path)
	if err != nil {
		return logfiles.File{}, nil, err
	}
	if err := h.Truncate(size); err != nil {
		h.Close()
		return logfiles.File{}, nil, err
	}
	if err := h.Preallocate(size); err != nil {
		h.Close()
		return logfiles.File{}, nil, err
	}
	hdr := logblock.FileHeader{
		Format:   logblock.CurrentFormat,
		UUID:     e.uuid,
		StartLSN: start,
		Creator:  e.creator,
		Flags:    flags,
	}
	if err := h.WriteBlocksAt(logblock.SerializeFileHeader(hdr), 0); err != nil {
		h.Close()
		return logfiles.File{}, nil, err
	}
	return logfiles.File{ID: id, StartLSN: start, SizeBytes: size}, h, nil
}

func rewriteFlags(h *logio.Handle, start lsn.LSN, uuid uint32, creator string, flags uint32) error {
	hdr := logblock.FileHeader{Format: logblock.CurrentFormat, UUID: uuid, StartLSN: start, Creator: creator, Flags: flags}
	return h.WriteBlocksAt(logblock.SerializeFileHeader(hdr), 0)
}

func writeCheckpointHeaders(h *logio.Handle, cp1, cp2 lsn.LSN) error {
	if err := h.WriteBlocksAt(logblock.SerializeCheckpointHeader(logblock.CheckpointHeader{CheckpointLSN: cp1}), logblock.CheckpointHeader1Offset); err != nil {
		return err
	}
	return h.WriteBlocksAt(logblock.SerializeCheckpointHeader(logblock.CheckpointHeader{CheckpointLSN: cp2}), logblock.CheckpointHeader2Offset)
}

func readNewestCheckpoint(fileZeroPath string) (logblock.CheckpointHeader, error) {
	h, err := logio.Open(fileZeroPath)
	if err != nil {
		return logblock.CheckpointHeader{}, err
	}
	defer h.Close()

	var best logblock.CheckpointHeader
	var found bool
	for _, off := range []int64{logblock.CheckpointHeader1Offset, logblock.CheckpointHeader2Offset} {
		buf := make([]byte, lsn.BlockSize)
		if err := h.ReadBlocksAt(buf, off); err != nil {
			continue
		}
		cp, err := logblock.DeserializeCheckpointHeader(buf)
		if err != nil {
			continue
		}
		if !found || cp.CheckpointLSN > best.CheckpointLSN {
			best, found = cp, true
		}
	}
	if !found {
		return logblock.CheckpointHeader{}, fmt.Errorf("redolog: %q: no valid checkpoint header: %w", fileZeroPath, redoerr.ErrCorrupt)
	}
	return best, nil
}

// scanLogEnd walks the dictionary's files in order, reading data blocks
// until the first checksum failure (the normal end-of-log signal,
// spec.md §7) or a short (partial) block, and returns the resulting end
// LSN rounded up to the next block boundary: resumption always starts a
// fresh block rather than continuing a partial one, trading a few wasted
// bytes per reopen for a writer/ring restart path that never has to
// reload a half-written block's bytes from disk.
func scanLogEnd(dict *logfiles.Dictionary, pathFor func(id int64, spare bool) string) (lsn.LSN, error) {
	for _, f := range dict.All() {
		h, err := logio.Open(pathFor(f.ID, false))
		if err != nil {
			return 0, err
		}
		cursor := f.StartLSN
		for cursor < f.EndLSN() {
			fileOff := int64(lsn.HdrSize) + int64(uint64(cursor)-uint64(f.StartLSN))
			buf := make([]byte, lsn.BlockSize)
			if err := h.ReadBlocksAt(buf, fileOff); err != nil {
				h.Close()
				return cursor, nil
			}
			dh, _, err := logblock.DeserializeDataBlock(buf)
			if err != nil {
				h.Close()
				return cursor, nil
			}
			cursor = cursor.Add(lsn.BlockSize)
			if dh.DataLen < lsn.DataSize {
				h.Close()
				return cursor, nil
			}
		}
		h.Close()
	}
	back, _ := dict.Back()
	return back.EndLSN(), nil
}

// Limits returns the currently published capacity limits.
func (e *Engine) Limits() logcapacity.Limits {
	e.limitsMu.Lock()
	defer e.limitsMu.Unlock()
	return e.limits
}

func (e *Engine) setLimits(l logcapacity.Limits) {
	e.limitsMu.Lock()
	e.limits = l
	e.limitsMu.Unlock()
}

// LastCheckpointLSN returns the most recently published checkpoint LSN.
func (e *Engine) LastCheckpointLSN() lsn.LSN {
	return lsn.LSN(atomic.LoadUint64(&e.lastCheckpointLSN))
}

// WriteLSN returns the current write_lsn.
func (e *Engine) WriteLSN() lsn.LSN { return e.ring.WriteLSN() }

// FlushedLSN returns the current flushed_to_disk_lsn.
func (e *Engine) FlushedLSN() lsn.LSN { return lsn.LSN(atomic.LoadUint64(&e.flushedLSN)) }

// RegisterConsumer adds c to the set of collaborators whose oldest
// needed LSN bounds file consumption (spec.md §6).
func (e *Engine) RegisterConsumer(c Consumer) { e.consumers.Register(c) }

// UnregisterConsumer removes the named consumer.
func (e *Engine) UnregisterConsumer(name string) { e.consumers.Unregister(name) }

func (e *Engine) oldestNeededLSN() lsn.LSN {
	return e.consumers.OldestNeeded(e.ring.Base())
}

// OldestNeededLSN is the exported form of oldestNeededLSN, for callers
// (such as redologctl) that report on engine state without driving it.
func (e *Engine) OldestNeededLSN() lsn.LSN { return e.oldestNeededLSN() }

// Dir returns the directory this engine's files live in.
func (e *Engine) Dir() string { return e.dir }

// Files returns a snapshot of every file currently in the dictionary,
// ordered the way logfiles.Dictionary.All returns them.
func (e *Engine) Files() []logfiles.File {
	e.filesMu.Lock()
	defer e.filesMu.Unlock()
	return e.dict.All()
}

// SpareCount returns the number of pre-created spare files waiting for
// the writer's next rotation.
func (e *Engine) SpareCount() int {
	e.filesMu.Lock()
	defer e.filesMu.Unlock()
	return len(e.spares)
}

// RequestCheckpoint asks the checkpointer to run out of its normal
// cycle, the same signal the governor sends on crossing the aggressive
// checkpoint age threshold. It does not block until the checkpoint is
// written; callers that need that should poll LastCheckpointLSN.
func (e *Engine) RequestCheckpoint() {
	select {
	case e.checkpointDue <- struct{}{}:
	default:
	}
}

// Reserve atomically claims dataLen data bytes in the ring buffer,
// blocking the caller if hard logical capacity would be exceeded, and
// returns the reserved [start, end) SN range. The caller must write
// exactly dataLen bytes into the spans returned by Spans and then call
// CloseRange.
func (e *Engine) Reserve(ctx context.Context, dataLen int) (lsn.SN, lsn.SN, error) {
	for {
		select {
		case <-e.shutdown:
			return 0, 0, redoerr.ErrDisabledRedo
		default:
		}

		cur := e.ring.CurrentSN()
		prospectiveEnd := lsn.SNToLSNFrom(e.ring.Base(), cur+lsn.SN(dataLen))
		oldest := e.oldestNeededLSN()
		limits := e.Limits()
		logicalSize := prospectiveEnd.Sub(oldest)

		if logicalSize > limits.HardLogicalCapacity {
			e.consumers.Rush()
			e.governorWake.Signal()
			e.admission.Start()
			waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			err := e.writeProgress.WaitAtLeast(waitCtx, uint64(e.ring.WriteLSN())+1)
			cancel()
			e.admission.Done()
			if err != nil && ctx.Err() != nil {
				return 0, 0, fmt.Errorf("redolog: reserve blocked past deadline: %w", redoerr.ErrCapacityExceeded)
			}
			continue
		}

		start, end, ok := e.ring.Reserve(uint64(dataLen))
		if !ok {
			// Either the ring is locked (shutdown/resize) or this
			// reservation would overtake write_lsn+bufSize; either way
			// progress requires the writer to advance write_lsn.
			waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			err := e.writeProgress.WaitAtLeast(waitCtx, uint64(e.ring.WriteLSN())+1)
			cancel()
			if err != nil && ctx.Err() != nil {
				return 0, 0, redoerr.ErrDisabledRedo
			}
			continue
		}

		if logicalSize > limits.SoftLogicalCapacity {
			e.consumers.Rush()
			e.governorWake.Signal()
		}

		for _, b := range e.spanBlocks(start, end) {
			e.ring.Written.Add(b.blockIndex, int64(b.length))
			e.ring.Closed.Add(b.blockIndex, int64(b.length))
		}
		return start, end, nil
	}
}

type blockSpan struct {
	blockIndex uint64
	offset     uint64
	length     uint64
}

func (e *Engine) spanBlocks(start, end lsn.SN) []blockSpan {
	spans := e.ring.DataSpans(start, end)
	out := make([]blockSpan, len(spans))
	cursor := start
	for i, sp := range spans {
		out[i] = blockSpan{blockIndex: e.ring.BlockIndexForSN(cursor), offset: sp.Offset, length: sp.Length}
		cursor += lsn.SN(sp.Length)
	}
	return out
}

// Spans returns the buffer byte ranges a producer holding [start, end)
// should copy its payload into, in order.
func (e *Engine) Spans(start, end lsn.SN) []logbuffer.Span { return e.ring.DataSpans(start, end) }

// Buf returns the ring buffer producers write payload bytes into.
func (e *Engine) Buf() []byte { return e.ring.Buf() }

// CloseRange marks [start, end) as fully written by its producer.
// groupStart, if non-zero, is the data-relative offset (0-based, within
// the first block of the range) at which a new record group begins.
func (e *Engine) CloseRange(start, end lsn.SN, groupStart uint16) error {
	cursor := start
	first := true
	for _, sp := range e.ring.DataSpans(start, end) {
		blk := e.ring.BlockIndexForSN(cursor)
		blockStartLSN := lsn.LSN(blk * lsn.BlockSize)
		offsetInBlock := lsn.SNToLSNFrom(e.ring.Base(), cursor).Sub(blockStartLSN)

		m := e.blocks.Get(blk)
		newLen := uint16(offsetInBlock) - uint16(lsn.HeaderSize) + uint16(sp.Length)
		if newLen > m.DataLen {
			m.DataLen = newLen
		}
		if first && groupStart != 0 {
			m.FirstRecGroup = uint16(lsn.HeaderSize) + groupStart
		}
		e.blocks.Set(blk, m)

		e.ring.Written.Done(blk, int64(sp.Length))
		e.ring.Closed.Done(blk, int64(sp.Length))
		cursor += lsn.SN(sp.Length)
		first = false
	}
	e.blockClosed.Signal()
	return nil
}

// WaitWrittenAtLeast blocks until write_lsn reaches at least l.
func (e *Engine) WaitWrittenAtLeast(ctx context.Context, l lsn.LSN) error {
	return e.writeProgress.WaitAtLeast(ctx, uint64(l))
}

// WaitFlushedAtLeast blocks until flushed_to_disk_lsn reaches at least l.
func (e *Engine) WaitFlushedAtLeast(ctx context.Context, l lsn.LSN) error {
	return e.flushProgress.WaitAtLeast(ctx, uint64(l))
}

// Start launches the six background goroutines: writer, flusher,
// write-notifier, flush-notifier, checkpointer, file-governor.
func (e *Engine) Start() {
	e.consumers.Register(Consumer{
		Name:      "checkpointer",
		OldestLSN: e.LastCheckpointLSN,
	})
	e.wg.Add(6)
	go e.writerLoop()
	go e.flusherLoop()
	go e.writeNotifierLoop()
	go e.flushNotifierLoop()
	go e.checkpointerLoop()
	go e.governorLoop()
}

// Stop signals every background goroutine to drain and exit, then waits
// for them.
func (e *Engine) Stop() {
	e.shutdownOnce.Do(func() { close(e.shutdown) })
	e.wg.Wait()
}

// Close stops the background threads (if started) and releases open
// file handles.
func (e *Engine) Close() error {
	e.Stop()
	e.writerMu.Lock()
	cur := e.current
	e.writerMu.Unlock()
	if cur != nil {
		return cur.Close()
	}
	return nil
}
