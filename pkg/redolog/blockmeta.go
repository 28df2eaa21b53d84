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

import "sync"

// blockMeta is the per-block information a producer fixes when it closes
// its last contribution to a block: how many data bytes the block
// actually holds, and where (if anywhere) a group starts in it. The
// writer reads this once CompletionMap says the block is fully written,
// per spec.md §4.7 step 3.
type blockMeta struct {
	DataLen       uint16
	FirstRecGroup uint16
}

// blockDirectory is a ring-shaped array of blockMeta, sized the same way
// as a logbuffer.CompletionMap, guarded by a single mutex: writes happen
// once per block (the last producer to touch it), reads happen once per
// block (the writer), so contention is not a concern the way it is for
// the completion counters.
type blockDirectory struct {
	mu   sync.Mutex
	meta []blockMeta
	mask uint64
}

func newBlockDirectory(numSlots uint64) *blockDirectory {
	n := uint64(1)
	for n < numSlots {
		n <<= 1
	}
	return &blockDirectory{meta: make([]blockMeta, n), mask: n - 1}
}

func (d *blockDirectory) slot(blockIndex uint64) uint64 { return blockIndex & d.mask }

// Set records m as the current metadata for blockIndex.
func (d *blockDirectory) Set(blockIndex uint64, m blockMeta) {
	d.mu.Lock()
	d.meta[d.slot(blockIndex)] = m
	d.mu.Unlock()
}

// Get returns the metadata last recorded for blockIndex.
func (d *blockDirectory) Get(blockIndex uint64) blockMeta {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta[d.slot(blockIndex)]
}
