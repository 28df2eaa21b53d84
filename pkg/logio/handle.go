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

// Package logio provides the low-level, aligned file IO primitives the
// redo log writes and reads through: a Handle wrapping one *os.File with
// explicit open/close and modified-tracking (fsync-on-close-if-modified,
// the same lifecycle diskpacked.storage.openCurrent/Close gives its
// current data file), a process-wide cap of two concurrently open
// handles, and fault-injection points for tests.
package logio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/redologengine/redolog/pkg/lsn"
	"github.com/redologengine/redolog/pkg/redoerr"
	"go4.org/fault"
)

// MaxOpenHandles is the process-wide cap on concurrently open Handles,
// per spec.md §5 ("At most two open file handles exist globally").
const MaxOpenHandles = 2

var openCount int32

// Fault injectors for the write and flush IO paths, in the style of
// pkg/blobserver/s3/s3.go's fault.NewInjector call sites. Tests drive
// these through the standard go4.org/fault debug-flag mechanism to force
// a failure through the real IO path instead of mocking the filesystem.
var (
	FaultWrite = fault.NewInjector("redolog_write")
	FaultFsync = fault.NewInjector("redolog_fsync")
	FaultRead  = fault.NewInjector("redolog_read")
)

// Handle owns one open *os.File and tracks whether it has unflushed
// writes since the last Sync.
type Handle struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	modified bool
	closed   bool
}

// Open opens path for read/write, counting against MaxOpenHandles.
func Open(path string) (*Handle, error) {
	if n := atomic.AddInt32(&openCount, 1); n > MaxOpenHandles {
		atomic.AddInt32(&openCount, -1)
		return nil, fmt.Errorf("logio: open %q: %w (cap %d already in use)", path, redoerr.ErrIO, MaxOpenHandles)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		atomic.AddInt32(&openCount, -1)
		return nil, fmt.Errorf("logio: open %q: %w", path, err)
	}
	return &Handle{f: f, path: path}, nil
}

// Create creates path, truncating any existing file, counting against
// MaxOpenHandles.
func Create(path string) (*Handle, error) {
	if n := atomic.AddInt32(&openCount, 1); n > MaxOpenHandles {
		atomic.AddInt32(&openCount, -1)
		return nil, fmt.Errorf("logio: create %q: %w (cap %d already in use)", path, redoerr.ErrIO, MaxOpenHandles)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		atomic.AddInt32(&openCount, -1)
		return nil, fmt.Errorf("logio: create %q: %w", path, err)
	}
	return &Handle{f: f, path: path, modified: true}, nil
}

// OpenCount reports the number of Handles currently open, for tests.
func OpenCount() int { return int(atomic.LoadInt32(&openCount)) }

// WriteBlocksAt writes buf (a multiple of lsn.BlockSize) at the given
// byte offset, which must itself be block-aligned.
func (h *Handle) WriteBlocksAt(buf []byte, offset int64) error {
	if len(buf)%lsn.BlockSize != 0 || offset%lsn.BlockSize != 0 {
		return fmt.Errorf("logio: unaligned write at %d len %d", offset, len(buf))
	}
	var err error
	if FaultWrite.FailErr(&err) {
		return fmt.Errorf("logio: injected write fault on %q at %d: %w", h.path, offset, redoerr.ErrIO)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("logio: write to closed handle %q", h.path)
	}
	if _, err := h.f.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("logio: write %q at %d: %w", h.path, offset, redoerr.ErrIO)
	}
	h.modified = true
	return nil
}

// ReadBlocksAt reads len(buf) bytes (a multiple of lsn.BlockSize) from
// the given block-aligned offset.
func (h *Handle) ReadBlocksAt(buf []byte, offset int64) error {
	if len(buf)%lsn.BlockSize != 0 || offset%lsn.BlockSize != 0 {
		return fmt.Errorf("logio: unaligned read at %d len %d", offset, len(buf))
	}
	var err error
	if FaultRead.FailErr(&err) {
		return fmt.Errorf("logio: injected read fault on %q at %d: %w", h.path, offset, redoerr.ErrIO)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.f.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("logio: read %q at %d: %w", h.path, offset, redoerr.ErrIO)
	}
	return nil
}

// Sync fsyncs the handle if it has unsynced writes.
func (h *Handle) Sync() error {
	var err error
	if FaultFsync.FailErr(&err) {
		return fmt.Errorf("logio: injected fsync fault on %q: %w", h.path, redoerr.ErrIO)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.modified {
		return nil
	}
	if err := h.f.Sync(); err != nil {
		return fmt.Errorf("logio: fsync %q: %w", h.path, redoerr.ErrIO)
	}
	h.modified = false
	return nil
}

// Truncate resizes the underlying file.
func (h *Handle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.f.Truncate(size); err != nil {
		return fmt.Errorf("logio: truncate %q to %d: %w", h.path, size, redoerr.ErrIO)
	}
	h.modified = true
	return nil
}

// Close syncs (if modified) and closes the handle, releasing its slot
// against MaxOpenHandles.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	modified := h.modified
	h.mu.Unlock()

	var syncErr error
	if modified {
		syncErr = h.Sync()
	}
	closeErr := h.f.Close()
	atomic.AddInt32(&openCount, -1)
	if syncErr != nil {
		return syncErr
	}
	if closeErr != nil {
		return fmt.Errorf("logio: close %q: %w", h.path, redoerr.ErrIO)
	}
	return nil
}

// Path returns the handle's underlying file path.
func (h *Handle) Path() string { return h.path }
