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

// Package redoerr defines the sentinel error kinds shared across the redo
// log engine's packages, in the style of sorted.ErrNotFound: a flat set
// of package-level errors, tested with errors.Is, rather than a custom
// error-stacking hierarchy.
package redoerr

import "errors"

// Error kinds, per spec.md §7. Callers use errors.Is against these.
var (
	// ErrNotFound means the requested file, block, or checkpoint does not
	// exist.
	ErrNotFound = errors.New("redolog: not found")

	// ErrIO wraps an underlying OS file error; the caller decides whether
	// to retry or crash.
	ErrIO = errors.New("redolog: io error")

	// ErrCorrupt means a checksum or structural field failed validation.
	ErrCorrupt = errors.New("redolog: corrupt")

	// ErrOutOfSpace means the capacity planner has no next file size to
	// offer; the caller must wait for consumption or fail.
	ErrOutOfSpace = errors.New("redolog: out of space")

	// ErrCapacityExceeded means a reservation would exceed hard logical
	// capacity even after the bounded wait.
	ErrCapacityExceeded = errors.New("redolog: capacity exceeded")

	// ErrEncryptionUnavailable means a file's encryption metadata refers
	// to a key the configured provider cannot supply.
	ErrEncryptionUnavailable = errors.New("redolog: encryption unavailable")

	// ErrFormatTooOld means the on-disk format predates what this engine
	// can write to (read-only legacy access may still be possible).
	ErrFormatTooOld = errors.New("redolog: format too old")

	// ErrFormatTooNew means the on-disk format is newer than this engine
	// understands.
	ErrFormatTooNew = errors.New("redolog: format too new")

	// ErrFilesInconsistent means the file dictionary's invariants (strictly
	// increasing ids, contiguous LSN ranges) do not hold across the files
	// found on disk.
	ErrFilesInconsistent = errors.New("redolog: files inconsistent")

	// ErrUninitializedFiles means a file set was found but never
	// completed its first checkpoint.
	ErrUninitializedFiles = errors.New("redolog: uninitialized files")

	// ErrDisabledRedo means the caller asked for log bookkeeping while
	// NO_LOGGING is in effect.
	ErrDisabledRedo = errors.New("redolog: redo logging disabled")

	// ErrMissingNewestFile means no file in the set covers the expected
	// newest LSN.
	ErrMissingNewestFile = errors.New("redolog: missing newest file")
)
