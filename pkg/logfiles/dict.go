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

// Package logfiles maintains the in-memory ordered set of log files
// backing the redo log, mirroring the shape of sorted.KeyValue's ordered
// iteration (pkg/sorted/kv.go) but specialized to the small, entirely
// in-memory file set a redo log ever has open: dozens of files, not
// millions of keys, so a linear scan for range queries is acceptable
// (spec.md §4.2 says as much explicitly).
package logfiles

import (
	"fmt"
	"sort"

	"github.com/redologengine/redolog/pkg/logcrypt"
	"github.com/redologengine/redolog/pkg/lsn"
	"github.com/redologengine/redolog/pkg/redoerr"
)

// File is one log file's metadata, per spec.md §3.
type File struct {
	ID             int64
	StartLSN       lsn.LSN
	SizeBytes      int64
	Full           bool
	Consumed       bool
	EncryptionMeta *logcrypt.Metadata
}

// EndLSN is start_lsn + (size - HdrSize), per spec.md §3.
func (f File) EndLSN() lsn.LSN { return f.StartLSN.Add(uint64(f.SizeBytes) - uint64(lsn.HdrSize)) }

// LogicalCapacity is the number of data bytes a file of this size can
// hold once its header region is subtracted.
func (f File) LogicalCapacity() int64 { return f.SizeBytes - int64(lsn.HdrSize) }

// Dictionary is the ordered, in-memory file set. All mutation happens
// under the caller's files_mutex (spec.md §5); Dictionary itself holds
// no lock, matching how pkg/sorted.KeyValue leaves synchronization to
// its caller.
type Dictionary struct {
	files []File // sorted by ID, which is sorted by StartLSN
}

// NewDictionary returns an empty Dictionary.
func NewDictionary() *Dictionary { return &Dictionary{} }

// Len returns the number of files currently tracked.
func (d *Dictionary) Len() int { return len(d.files) }

func (d *Dictionary) indexOf(id int64) int {
	return sort.Search(len(d.files), func(i int) bool { return d.files[i].ID >= id })
}

// File returns the file with the given id, or false if absent.
func (d *Dictionary) File(id int64) (File, bool) {
	i := d.indexOf(id)
	if i < len(d.files) && d.files[i].ID == id {
		return d.files[i], true
	}
	return File{}, false
}

// Front returns the oldest (lowest-id) file, or false if the dictionary
// is empty.
func (d *Dictionary) Front() (File, bool) {
	if len(d.files) == 0 {
		return File{}, false
	}
	return d.files[0], true
}

// Back returns the newest (highest-id) file, or false if the dictionary
// is empty.
func (d *Dictionary) Back() (File, bool) {
	if len(d.files) == 0 {
		return File{}, false
	}
	return d.files[len(d.files)-1], true
}

// All returns a snapshot slice of every file, oldest first.
func (d *Dictionary) All() []File {
	out := make([]File, len(d.files))
	copy(out, d.files)
	return out
}

// Find returns the file whose [StartLSN, EndLSN) range covers l. Linear
// scan is intentional: this is a control-path lookup over at most a few
// dozen files (spec.md §4.2).
func (d *Dictionary) Find(l lsn.LSN) (File, bool) {
	for _, f := range d.files {
		if l >= f.StartLSN && l < f.EndLSN() {
			return f, true
		}
	}
	return File{}, false
}

// Add inserts f, asserting the dictionary invariants of spec.md §4.2:
// ids strictly increasing by one, start_lsn block-aligned, and
// contiguous with the previous file's end_lsn.
func (d *Dictionary) Add(f File) error {
	if uint64(f.StartLSN)%lsn.BlockSize != 0 {
		return fmt.Errorf("logfiles: file %d start_lsn %v not block-aligned: %w", f.ID, f.StartLSN, redoerr.ErrFilesInconsistent)
	}
	if back, ok := d.Back(); ok {
		if f.ID != back.ID+1 {
			return fmt.Errorf("logfiles: file id %d does not follow %d: %w", f.ID, back.ID, redoerr.ErrFilesInconsistent)
		}
		if f.StartLSN != back.EndLSN() {
			return fmt.Errorf("logfiles: file %d start_lsn %v != previous end_lsn %v: %w", f.ID, f.StartLSN, back.EndLSN(), redoerr.ErrFilesInconsistent)
		}
	}
	d.files = append(d.files, f)
	return nil
}

// Erase removes the file with the given id.
func (d *Dictionary) Erase(id int64) bool {
	i := d.indexOf(id)
	if i >= len(d.files) || d.files[i].ID != id {
		return false
	}
	d.files = append(d.files[:i], d.files[i+1:]...)
	return true
}

func (d *Dictionary) mutate(id int64, fn func(*File)) bool {
	i := d.indexOf(id)
	if i >= len(d.files) || d.files[i].ID != id {
		return false
	}
	fn(&d.files[i])
	return true
}

// SetFull marks the file full (spec.md persisted flag FILE_FULL is set on
// every file except the newest).
func (d *Dictionary) SetFull(id int64, full bool) bool {
	return d.mutate(id, func(f *File) { f.Full = full })
}

// SetConsumed marks the file as eligible for recycling/removal.
func (d *Dictionary) SetConsumed(id int64, consumed bool) bool {
	return d.mutate(id, func(f *File) { f.Consumed = consumed })
}

// SetSize updates a file's on-disk size (used when the governor
// truncates the sole file, per spec.md §4.4 step 7).
func (d *Dictionary) SetSize(id int64, size int64) bool {
	return d.mutate(id, func(f *File) { f.SizeBytes = size })
}

// Count returns the number of files, mirroring spec.md §4.2's "count"
// helper name.
func (d *Dictionary) Count() int { return len(d.files) }

// TotalPhysicalSize sums every file's on-disk size.
func (d *Dictionary) TotalPhysicalSize() int64 {
	var total int64
	for _, f := range d.files {
		total += f.SizeBytes
	}
	return total
}

// TotalLogicalCapacity sums every file's data capacity (size minus header
// region).
func (d *Dictionary) TotalLogicalCapacity() int64 {
	var total int64
	for _, f := range d.files {
		total += f.LogicalCapacity()
	}
	return total
}

// Largest returns the largest file by size, or false if empty.
func (d *Dictionary) Largest() (File, bool) {
	if len(d.files) == 0 {
		return File{}, false
	}
	best := d.files[0]
	for _, f := range d.files[1:] {
		if f.SizeBytes > best.SizeBytes {
			best = f
		}
	}
	return best, true
}

// VisitRange calls fn for every file covering any part of [start, end),
// oldest first, and returns an error if the files do not fully cover the
// range (a hole would mean the dictionary is inconsistent with the
// stream it claims to describe).
func (d *Dictionary) VisitRange(start, end lsn.LSN, fn func(File) error) error {
	cursor := start
	for _, f := range d.files {
		if f.EndLSN() <= start || f.StartLSN >= end {
			continue
		}
		if f.StartLSN != cursor && !(cursor == start && f.StartLSN < start) {
			return fmt.Errorf("logfiles: gap before file %d (cursor %v, file starts %v): %w", f.ID, cursor, f.StartLSN, redoerr.ErrFilesInconsistent)
		}
		if err := fn(f); err != nil {
			return err
		}
		cursor = f.EndLSN()
		if cursor >= end {
			return nil
		}
	}
	if cursor < end {
		return fmt.Errorf("logfiles: range [%v,%v) not fully covered, reached %v: %w", start, end, cursor, redoerr.ErrFilesInconsistent)
	}
	return nil
}
