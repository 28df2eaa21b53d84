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

// Package logcapacity computes the elastic capacity limits of spec.md
// §4.3 from the current file dictionary and a handful of tunables. Every
// function here is pure: no IO, no locking, matching
// original_source/storage/innobase/include/log0files_capacity.h's own
// role as a header of constants and small computed quantities consumed
// by the governor.
package logcapacity

import "github.com/redologengine/redolog/pkg/logfiles"

// NFiles is the number of files an elastic capacity budget is divided
// into (spec.md §4.3: N_FILES = 32).
const NFiles = 32

// Ratio constants from original_source/log0files_capacity.h, carried
// forward as named constants rather than magic numbers (spec.md §C.3).
// Both thresholds sit below soft capacity: the adaptive-flush maximum age
// is soft - soft/16, and the aggressive-checkpoint age sits soft/32 above
// it.
const (
	AdaptiveFlushMinRatio   = 8
	AdaptiveFlushMaxRatio   = 16
	AggressiveCheckpointRatio = 32
)

// ResizeMode is the capacity planner's resize state machine, spec.md §3.
type ResizeMode int

const (
	ResizeNone ResizeMode = iota
	ResizeDown
)

func (m ResizeMode) String() string {
	switch m {
	case ResizeNone:
		return "none"
	case ResizeDown:
		return "down"
	default:
		return "unknown"
	}
}

// Tunables are the caller-supplied inputs that do not change as often as
// the file dictionary does.
type Tunables struct {
	TargetPhysicalCapacity int64 // configured capacity_bytes
	MaxConcurrentThreads   int
	BackgroundThreads      int // fixed count of the engine's own background threads
	PagesPerThread         int64
	PageSizeBytes          int64
}

// DefaultTunables mirrors spec.md §6's defaults.
func DefaultTunables(capacityBytes int64) Tunables {
	return Tunables{
		TargetPhysicalCapacity: capacityBytes,
		MaxConcurrentThreads:   8,
		BackgroundThreads:      6, // writer, flusher, write-notifier, flush-notifier, checkpointer, governor
		PagesPerThread:         32,
		PageSizeBytes:          16 << 10,
	}
}

// Limits is the published set of capacity limits, spec.md §3.
type Limits struct {
	PhysicalCapacity      int64
	SoftLogicalCapacity   int64
	HardLogicalCapacity   int64
	AdaptiveFlushMinAge   int64
	AdaptiveFlushMaxAge   int64
	AggressiveCheckpointMinAge int64
	NextFileSize          int64
	NextFileEarlierMargin int64
	ResizeMode            ResizeMode
}

// nFileSize is the per-file share of a physical capacity budget.
func nFileSize(physical int64) int64 { return physical / NFiles }

// resizeDownComplete reports whether all three criteria of spec.md §4.3
// hold: no existing file larger than target/N, non-spare total size fits
// in (N-2)*target/N, and current logical size also fits.
func resizeDownComplete(dict *logfiles.Dictionary, target int64, logicalSize int64) bool {
	perFile := nFileSize(target)
	if largest, ok := dict.Largest(); ok && largest.SizeBytes > perFile {
		return false
	}
	nonSpareCap := int64(NFiles-2) * perFile
	nonSpareTotal := dict.TotalPhysicalSize()
	if nonSpareTotal > nonSpareCap {
		return false
	}
	if logicalSize > nonSpareCap {
		return false
	}
	return true
}

// concurrencyMargin implements spec.md §4.3's formula, capped at 50% of
// soft capacity by the caller.
func concurrencyMargin(t Tunables) int64 {
	threads := int64(t.MaxConcurrentThreads + t.BackgroundThreads)
	return threads * t.PagesPerThread * t.PageSizeBytes
}

// Update recomputes Limits from the current dictionary state, previous
// limits (for resize-state continuity), and the configured tunables.
// currentLogicalSize is newest_lsn - oldest_consumer_lsn, block-aligned,
// as produced by the caller (the capacity planner does not own LSN
// bookkeeping). checkpointAge is last_checkpoint-relative age in bytes.
func Update(dict *logfiles.Dictionary, prev Limits, t Tunables, currentLogicalSize, checkpointAge int64) Limits {
	physical := prev.PhysicalCapacity
	if physical == 0 {
		physical = t.TargetPhysicalCapacity
	}
	mode := prev.ResizeMode
	if t.TargetPhysicalCapacity < physical {
		mode = ResizeDown
	}
	if mode == ResizeDown {
		if resizeDownComplete(dict, t.TargetPhysicalCapacity, currentLogicalSize) {
			physical = t.TargetPhysicalCapacity
			mode = ResizeNone
		}
	} else if t.TargetPhysicalCapacity > physical {
		physical = t.TargetPhysicalCapacity
	}

	var hard int64
	if mode == ResizeDown {
		proposed := checkpointAge
		if currentLogicalSize > proposed {
			proposed = currentLogicalSize
		}
		cap := int64(NFiles-2) * nFileSize(physical)
		if proposed > cap {
			proposed = cap
		}
		hard = proposed
	} else {
		hard = int64(NFiles-2) * nFileSize(physical)
	}

	extraWriterMargin := hard / AdaptiveFlushMinRatio
	extraConcurrencyMargin := concurrencyMargin(t)
	// margin <= (hard-extraWriterMargin)/3 keeps it at most half of soft.
	if cap := (hard - extraWriterMargin) / 3; extraConcurrencyMargin > cap {
		extraConcurrencyMargin = cap
	}
	soft := hard - extraWriterMargin - extraConcurrencyMargin
	if soft < 0 {
		soft = 0
	}

	syncFlushMargin := soft / AdaptiveFlushMaxRatio
	maxAge := soft - syncFlushMargin
	if maxAge < 0 {
		maxAge = 0
	}
	minAge := maxAge / 2
	aggressive := maxAge + soft/AggressiveCheckpointRatio

	nextSize := nFileSize(physical)
	return Limits{
		PhysicalCapacity:           physical,
		SoftLogicalCapacity:        soft,
		HardLogicalCapacity:        hard,
		AdaptiveFlushMinAge:        minAge,
		AdaptiveFlushMaxAge:        maxAge,
		AggressiveCheckpointMinAge: aggressive,
		NextFileSize:               nextSize,
		NextFileEarlierMargin:      nextSize / 10,
		ResizeMode:                 mode,
	}
}
