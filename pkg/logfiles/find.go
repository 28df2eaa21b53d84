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

package logfiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/redologengine/redolog/pkg/logblock"
	"github.com/redologengine/redolog/pkg/logio"
	"github.com/redologengine/redolog/pkg/lsn"
	"github.com/redologengine/redolog/pkg/redoerr"
)

// FindResult is the single decision surface recovery uses to decide
// whether to open an existing file set or create a new one, supplemented
// from original_source/storage/innobase/include/log0files_finder.h: one
// value per outcome recovery tells apart, plus the "all clear" case.
// Failures without a value of their own (a stat or file-header read
// error, for example) are reported as FindInconsistent along with the
// underlying error.
type FindResult int

const (
	FindOK FindResult = iota
	FindNewFiles
	FindInconsistent
	FindUninitialized
	FindFormatTooOld
	FindFormatTooNew
	FindMissingNewest
)

func (r FindResult) String() string {
	switch r {
	case FindOK:
		return "ok"
	case FindNewFiles:
		return "new-files"
	case FindInconsistent:
		return "inconsistent"
	case FindUninitialized:
		return "uninitialized"
	case FindFormatTooOld:
		return "format-too-old"
	case FindFormatTooNew:
		return "format-too-new"
	case FindMissingNewest:
		return "missing-newest"
	default:
		return fmt.Sprintf("FindResult(%d)", int(r))
	}
}

// redoFileName matches the current-format directory's data files,
// "#ib_redoN", per spec.md §6.
var redoFileName = regexp.MustCompile(`^#ib_redo(\d+)$`)

// legacyFileName matches the pre-8.0.30 single-directory layout,
// "ib_logfileN" with N <= 99, recognised on open per spec.md §6.
var legacyFileName = regexp.MustCompile(`^ib_logfile(\d{1,2})$`)

// Discover scans dir for redo log files and returns the result of
// classifying what it found, along with the decoded dictionary when the
// result is FindOK or FindNewFiles (empty directory).
func Discover(dir string) (FindResult, *Dictionary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FindNewFiles, NewDictionary(), nil
		}
		return FindInconsistent, nil, fmt.Errorf("logfiles: read dir %q: %w", dir, redoerr.ErrIO)
	}

	type found struct {
		id   int64
		path string
	}
	var current []found
	var legacy []found
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m := redoFileName.FindStringSubmatch(e.Name()); m != nil {
			id, _ := strconv.ParseInt(m[1], 10, 64)
			current = append(current, found{id, filepath.Join(dir, e.Name())})
			continue
		}
		if m := legacyFileName.FindStringSubmatch(e.Name()); m != nil {
			id, _ := strconv.ParseInt(m[1], 10, 64)
			if id <= 99 {
				legacy = append(legacy, found{id, filepath.Join(dir, e.Name())})
			}
		}
	}

	if len(current) == 0 && len(legacy) == 0 {
		return FindNewFiles, NewDictionary(), nil
	}
	if len(current) > 0 && len(legacy) > 0 {
		return FindInconsistent, nil, fmt.Errorf("logfiles: %q mixes current and legacy layouts: %w", dir, redoerr.ErrFilesInconsistent)
	}
	if len(legacy) > 0 {
		return FindFormatTooOld, nil, fmt.Errorf("logfiles: %q is a pre-8.0.30 legacy layout; use DiscoverLegacy: %w", dir, redoerr.ErrFormatTooOld)
	}

	dict := NewDictionary()
	// Sort by id for deterministic, contiguity-checked insertion.
	for i := 0; i < len(current); i++ {
		for j := i + 1; j < len(current); j++ {
			if current[j].id < current[i].id {
				current[i], current[j] = current[j], current[i]
			}
		}
	}
	sawNewest := false
	for _, c := range current {
		fi, err := os.Stat(c.path)
		if err != nil {
			return FindInconsistent, nil, fmt.Errorf("logfiles: stat %q: %w", c.path, redoerr.ErrIO)
		}
		hdr, err := readFileHeader(c.path)
		if err != nil {
			return FindInconsistent, nil, err
		}
		if hdr.Format > logblock.CurrentFormat {
			return FindFormatTooNew, nil, fmt.Errorf("logfiles: %q has format %d, newest understood is %d: %w", c.path, hdr.Format, logblock.CurrentFormat, redoerr.ErrFormatTooNew)
		}
		if logblock.HasFlag(hdr.Flags, logblock.FlagNotInitialized) {
			return FindUninitialized, nil, fmt.Errorf("logfiles: %q never completed its first checkpoint: %w", c.path, redoerr.ErrUninitializedFiles)
		}
		if !logblock.HasFlag(hdr.Flags, logblock.FlagFileFull) {
			sawNewest = true
		}
		if err := dict.Add(File{ID: c.id, StartLSN: hdr.StartLSN, SizeBytes: fi.Size(), Full: logblock.HasFlag(hdr.Flags, logblock.FlagFileFull)}); err != nil {
			return FindInconsistent, nil, err
		}
	}
	if !sawNewest {
		return FindMissingNewest, nil, fmt.Errorf("logfiles: %q: %w", dir, redoerr.ErrMissingNewestFile)
	}
	return FindOK, dict, nil
}

func readFileHeader(path string) (logblock.FileHeader, error) {
	h, err := logio.Open(path)
	if err != nil {
		return logblock.FileHeader{}, err
	}
	defer h.Close()
	buf := make([]byte, lsn.BlockSize)
	if err := h.ReadBlocksAt(buf, 0); err != nil {
		return logblock.FileHeader{}, err
	}
	return logblock.DeserializeFileHeader(buf)
}
