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

// Package logbuffer implements the redo log's in-memory ring buffer (C5)
// and the completion bitmaps that make out-of-order filling safe with
// in-order publishing (C6). The reservation fast path is lock-free:
// SN is a single atomic counter carrying a "locked" high bit (spec.md §9
// "Atomic 64-bit state"), manipulated with bit operations rather than a
// tagged union, for portability to platforms with only 64-bit atomics.
package logbuffer

import (
	"fmt"
	"sync/atomic"

	"github.com/redologengine/redolog/pkg/lsn"
)

// snLockedBit marks the SN counter paused: new reservations must wait
// rather than advance. Used during initialization and shutdown.
const snLockedBit uint64 = 1 << 63

// Span is one contiguous run of bytes a producer should write into the
// ring buffer for part of its reservation.
type Span struct {
	Offset uint64 // byte offset into Buf()
	Length uint64
}

// Ring is the lock-free byte-stream allocator of spec.md §4.5.
type Ring struct {
	buf     []byte
	bufSize uint64
	base    lsn.LSN // absolute LSN corresponding to SN 0, block-aligned

	sn       uint64 // atomic: snLockedBit | value
	writeLSN uint64 // atomic lsn.LSN

	Written *CompletionMap // recent_written
	Closed  *CompletionMap // recent_closed
}

// NewRing allocates a ring buffer of bufSize bytes (must be a multiple of
// lsn.BlockSize) addressed starting at base (must be block-aligned),
// with completion maps sized by writtenSlots/closedSlots.
func NewRing(bufSize uint64, base lsn.LSN, writtenSlots, closedSlots uint64) (*Ring, error) {
	if bufSize%lsn.BlockSize != 0 {
		return nil, fmt.Errorf("logbuffer: buffer size %d not a multiple of block size %d", bufSize, lsn.BlockSize)
	}
	if uint64(base)%lsn.BlockSize != 0 {
		return nil, fmt.Errorf("logbuffer: base %v not block-aligned", base)
	}
	return &Ring{
		buf:      make([]byte, bufSize),
		bufSize:  bufSize,
		base:     base,
		writeLSN: uint64(base),
		Written:  NewCompletionMap(writtenSlots),
		Closed:   NewCompletionMap(closedSlots),
	}, nil
}

// Size returns the ring buffer's byte capacity.
func (r *Ring) Size() uint64 { return r.bufSize }

// Base returns the absolute LSN corresponding to SN 0.
func (r *Ring) Base() lsn.LSN { return r.base }

// Lock pauses new reservations (used during shutdown/resize). Reserve
// calls made after Lock return ok=false until Unlock.
func (r *Ring) Lock() {
	for {
		old := atomic.LoadUint64(&r.sn)
		if old&snLockedBit != 0 {
			return
		}
		if atomic.CompareAndSwapUint64(&r.sn, old, old|snLockedBit) {
			return
		}
	}
}

// Unlock resumes reservations.
func (r *Ring) Unlock() {
	for {
		old := atomic.LoadUint64(&r.sn)
		if old&snLockedBit == 0 {
			return
		}
		if atomic.CompareAndSwapUint64(&r.sn, old, old&^snLockedBit) {
			return
		}
	}
}

// Seed sets the ring's initial SN and write_lsn. It is for use only
// during startup, before any Reserve call is possible, to resume a log
// that already has data on disk (spec.md §6's open_existing_files path).
func (r *Ring) Seed(sn lsn.SN, writeLSN lsn.LSN) {
	atomic.StoreUint64(&r.sn, uint64(sn))
	atomic.StoreUint64(&r.writeLSN, uint64(writeLSN))
}

// CurrentSN returns the current SN value (ignoring the locked bit).
func (r *Ring) CurrentSN() lsn.SN {
	return lsn.SN(atomic.LoadUint64(&r.sn) &^ snLockedBit)
}

// Reserve atomically advances SN by length data bytes and returns the
// reserved [startSN, endSN) range. ok is false if the ring is currently
// locked, or if the reservation's end LSN would overtake write_lsn+bufSize
// (the writer hasn't drained enough of the buffer yet to reuse those
// bytes) — in either case the caller must wait for writer progress and
// retry (spec.md §4.5).
func (r *Ring) Reserve(length uint64) (start, end lsn.SN, ok bool) {
	for {
		old := atomic.LoadUint64(&r.sn)
		if old&snLockedBit != 0 {
			return 0, 0, false
		}
		next := old + length
		endLSN := lsn.SNToLSNFrom(r.base, lsn.SN(next))
		if uint64(endLSN) > uint64(r.WriteLSN())+r.bufSize {
			return 0, 0, false
		}
		if atomic.CompareAndSwapUint64(&r.sn, old, next) {
			return lsn.SN(old), lsn.SN(next), true
		}
	}
}

// WriteLSN returns the published write_lsn: every byte before it is
// formatted and handed to the file (but not necessarily fsynced).
func (r *Ring) WriteLSN() lsn.LSN { return lsn.LSN(atomic.LoadUint64(&r.writeLSN)) }

// PublishWriteLSN advances write_lsn to l. The caller (the writer thread)
// must ensure l is monotonically non-decreasing.
func (r *Ring) PublishWriteLSN(l lsn.LSN) { atomic.StoreUint64(&r.writeLSN, uint64(l)) }

// DataSpans returns the sequence of byte ranges, within Buf(), that a
// producer holding [startSN, endSN) should copy its payload into, in
// order, skipping header/trailer bytes automatically and wrapping at the
// buffer boundary. The sum of returned lengths always equals
// endSN-startSN.
func (r *Ring) DataSpans(startSN, endSN lsn.SN) []Span {
	var spans []Span
	sn := startSN
	for sn < endSN {
		l := lsn.SNToLSNFrom(r.base, sn)
		off := l.OffsetInBlock()
		avail := lsn.BlockSize - lsn.TrailerSize - off
		remaining := uint64(endSN - sn)
		if avail > remaining {
			avail = remaining
		}
		// Buffer offsets are relative to byte 0 of Buf(), i.e. LSN
		// measured from base, wrapped at the buffer's physical size.
		bufOff := uint64(l-r.base) % r.bufSize
		spans = append(spans, Span{Offset: bufOff, Length: avail})
		sn += lsn.SN(avail)
	}
	return spans
}

// Buf returns the underlying buffer. Producers write into it only via
// offsets returned by DataSpans, within their own reserved range.
func (r *Ring) Buf() []byte { return r.buf }

// BlockIndexForSN returns the global block index (for completion-map
// slotting) of the block containing sn's data bytes.
func (r *Ring) BlockIndexForSN(sn lsn.SN) uint64 {
	return lsn.SNToLSNFrom(r.base, sn).BlockIndex()
}

// BlockDataOffset returns the byte offset, within Buf(), of the first
// data byte of the block at blockIndex. A block's data region never
// wraps the ring (bufSize is block-aligned), so the writer can slice
// Buf()[off:off+dataLen] directly to recover a block's payload.
func (r *Ring) BlockDataOffset(blockIndex uint64) uint64 {
	blockStart := lsn.LSN(blockIndex * lsn.BlockSize)
	dataStart := blockStart.Add(lsn.HeaderSize)
	return uint64(dataStart-r.base) % r.bufSize
}
