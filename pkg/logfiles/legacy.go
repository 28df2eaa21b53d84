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

// legacy.go reads the pre-8.0.30 log directory layout, supplemented from
// original_source/storage/innobase/include/log0pre_8_0_30.h and
// log0pre_8_0_30.cc: equal-size "ib_logfileN" files (no recycling, no
// elastic capacity) with a checkpoint block carrying extra fields this
// engine's current format dropped. This path is read-only and feeds the
// same Dictionary abstraction the current format uses, per spec.md §9
// ("Legacy format support").
package logfiles

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/redologengine/redolog/pkg/logio"
	"github.com/redologengine/redolog/pkg/lsn"
	"github.com/redologengine/redolog/pkg/redoerr"
)

// LegacyCheckpoint is a pre-8.0.30 checkpoint record: the modern
// CheckpointLSN plus the three fields the format later dropped.
type LegacyCheckpoint struct {
	CheckpointNo     uint64
	CheckpointLSN    lsn.LSN
	CheckpointOffset uint64
	LogBufSize       uint64
}

const (
	legacyCheckpoint1Offset = 1 * lsn.BlockSize
	legacyCheckpoint2Offset = 3 * lsn.BlockSize
	legacyDataStartOffset   = lsn.HdrSize
)

// DiscoverLegacy scans dir for the fixed-size "ib_logfileN" layout and
// returns a Dictionary built from the file sizes found on disk (legacy
// files carry no per-file start_lsn header field beyond file 0; ranges
// are reconstructed from the fixed file size and count).
func DiscoverLegacy(dir string) (*Dictionary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("logfiles: read dir %q: %w", dir, redoerr.ErrIO)
	}
	var ids []int64
	sizes := map[int64]int64{}
	for _, e := range entries {
		m := legacyFileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, _ := strconv.ParseInt(m[1], 10, 64)
		if id > 99 {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("logfiles: stat %q: %w", e.Name(), redoerr.ErrIO)
		}
		ids = append(ids, id)
		sizes[id] = fi.Size()
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("logfiles: no legacy files in %q: %w", dir, redoerr.ErrNotFound)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dict := NewDictionary()
	start := lsn.LogStartLSN
	for _, id := range ids {
		f := File{ID: id, StartLSN: start, SizeBytes: sizes[id], Full: true}
		if err := dict.Add(f); err != nil {
			return nil, err
		}
		start = f.EndLSN()
	}
	return dict, nil
}

// ReadLegacyCheckpoint reads whichever of the two legacy checkpoint slots
// in file 0 is valid, preferring the one with the higher CheckpointNo, in
// the style of the current format's two-slot alternation (spec.md §4.10)
// but using the legacy field layout.
func ReadLegacyCheckpoint(dir string, fileZeroID int64) (LegacyCheckpoint, error) {
	path := filepath.Join(dir, fmt.Sprintf("ib_logfile%d", fileZeroID))
	h, err := logio.Open(path)
	if err != nil {
		return LegacyCheckpoint{}, err
	}
	defer h.Close()

	var candidates []LegacyCheckpoint
	for _, off := range []int64{legacyCheckpoint1Offset, legacyCheckpoint2Offset} {
		buf := make([]byte, lsn.BlockSize)
		if err := h.ReadBlocksAt(buf, off); err != nil {
			continue
		}
		if cp, ok := decodeLegacyCheckpoint(buf); ok {
			candidates = append(candidates, cp)
		}
	}
	if len(candidates) == 0 {
		return LegacyCheckpoint{}, fmt.Errorf("logfiles: no valid legacy checkpoint in %q: %w", path, redoerr.ErrCorrupt)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CheckpointNo > best.CheckpointNo {
			best = c
		}
	}
	return best, nil
}

func decodeLegacyCheckpoint(buf []byte) (LegacyCheckpoint, bool) {
	if len(buf) != lsn.BlockSize {
		return LegacyCheckpoint{}, false
	}
	want := binary.BigEndian.Uint32(buf[lsn.BlockSize-4:])
	got := crc32.ChecksumIEEE(buf[:lsn.BlockSize-4])
	if want != got {
		return LegacyCheckpoint{}, false
	}
	return LegacyCheckpoint{
		CheckpointNo:     binary.BigEndian.Uint64(buf[0:8]),
		CheckpointLSN:    lsn.LSN(binary.BigEndian.Uint64(buf[8:16])),
		CheckpointOffset: binary.BigEndian.Uint64(buf[16:24]),
		LogBufSize:       binary.BigEndian.Uint64(buf[24:32]),
	}, true
}
