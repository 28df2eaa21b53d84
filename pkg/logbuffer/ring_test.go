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

package logbuffer

import (
	"sync"
	"testing"

	"github.com/redologengine/redolog/pkg/lsn"
)

func mustRing(t *testing.T, bufSize uint64) *Ring {
	t.Helper()
	r, err := NewRing(bufSize, lsn.LogStartLSN, 64, 64)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	return r
}

func TestNewRingRejectsUnalignedSize(t *testing.T) {
	if _, err := NewRing(lsn.BlockSize+1, lsn.LogStartLSN, 4, 4); err == nil {
		t.Fatal("expected error for non-block-aligned size")
	}
}

func TestNewRingRejectsUnalignedBase(t *testing.T) {
	if _, err := NewRing(lsn.BlockSize*8, lsn.LogStartLSN+1, 4, 4); err == nil {
		t.Fatal("expected error for non-block-aligned base")
	}
}

func TestRingReserveAdvancesMonotonically(t *testing.T) {
	r := mustRing(t, lsn.BlockSize*8)
	s1, e1, ok := r.Reserve(100)
	if !ok || s1 != 0 || e1 != 100 {
		t.Fatalf("Reserve#1 = (%v, %v, %v), want (0, 100, true)", s1, e1, ok)
	}
	s2, e2, ok := r.Reserve(50)
	if !ok || s2 != 100 || e2 != 150 {
		t.Fatalf("Reserve#2 = (%v, %v, %v), want (100, 150, true)", s2, e2, ok)
	}
	if got := r.CurrentSN(); got != 150 {
		t.Fatalf("CurrentSN = %v, want 150", got)
	}
}

func TestRingReserveConcurrentNoOverlap(t *testing.T) {
	r := mustRing(t, lsn.BlockSize*64)
	const n = 200
	results := make([]struct{ s, e lsn.SN }, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, e, ok := r.Reserve(10)
			if !ok {
				t.Errorf("Reserve failed at %d", i)
			}
			results[i] = struct{ s, e lsn.SN }{s, e}
		}(i)
	}
	wg.Wait()

	seen := make(map[lsn.SN]bool)
	for _, res := range results {
		if res.e-res.s != 10 {
			t.Fatalf("reservation length = %d, want 10", res.e-res.s)
		}
		for sn := res.s; sn < res.e; sn++ {
			if seen[sn] {
				t.Fatalf("SN %v reserved twice", sn)
			}
			seen[sn] = true
		}
	}
	if got := r.CurrentSN(); got != lsn.SN(n*10) {
		t.Fatalf("CurrentSN = %v, want %v", got, n*10)
	}
}

func TestRingLockBlocksReserve(t *testing.T) {
	r := mustRing(t, lsn.BlockSize*8)
	r.Lock()
	if _, _, ok := r.Reserve(10); ok {
		t.Fatal("Reserve succeeded while locked")
	}
	r.Unlock()
	if _, _, ok := r.Reserve(10); !ok {
		t.Fatal("Reserve failed after Unlock")
	}
}

func TestRingWriteLSNPublish(t *testing.T) {
	r := mustRing(t, lsn.BlockSize*8)
	if got := r.WriteLSN(); got != lsn.LogStartLSN {
		t.Fatalf("initial WriteLSN = %v, want %v", got, lsn.LogStartLSN)
	}
	r.PublishWriteLSN(lsn.LogStartLSN + 100)
	if got := r.WriteLSN(); got != lsn.LogStartLSN+100 {
		t.Fatalf("WriteLSN = %v, want %v", got, lsn.LogStartLSN+100)
	}
}

func TestRingDataSpansCoversReservation(t *testing.T) {
	r := mustRing(t, lsn.BlockSize*8)
	start, end, ok := r.Reserve(600)
	if !ok {
		t.Fatal("Reserve failed")
	}
	spans := r.DataSpans(start, end)
	var total uint64
	for _, sp := range spans {
		total += sp.Length
		if sp.Offset+sp.Length > r.Size() {
			t.Fatalf("span %+v overruns buffer of size %d", sp, r.Size())
		}
	}
	if total != uint64(end-start) {
		t.Fatalf("sum of span lengths = %d, want %d", total, end-start)
	}
	if len(spans) < 2 {
		t.Fatalf("expected reservation crossing a block boundary to yield >=2 spans, got %d", len(spans))
	}
}

func TestRingDataSpansSingleBlockFits(t *testing.T) {
	r := mustRing(t, lsn.BlockSize*8)
	start, end, ok := r.Reserve(lsn.DataSize)
	if !ok {
		t.Fatal("Reserve failed")
	}
	spans := r.DataSpans(start, end)
	if len(spans) != 1 {
		t.Fatalf("expected exactly 1 span for a full single block, got %d: %+v", len(spans), spans)
	}
	if spans[0].Length != lsn.DataSize {
		t.Fatalf("span length = %d, want %d", spans[0].Length, lsn.DataSize)
	}
}

func TestRingBlockIndexForSN(t *testing.T) {
	r := mustRing(t, lsn.BlockSize*8)
	idx := r.BlockIndexForSN(0)
	want := lsn.LogStartLSN.BlockIndex()
	if idx != want {
		t.Fatalf("BlockIndexForSN(0) = %d, want %d", idx, want)
	}
}
