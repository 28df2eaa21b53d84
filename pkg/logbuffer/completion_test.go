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

import "testing"

func TestNewCompletionMapRoundsToPow2(t *testing.T) {
	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		if got := NewCompletionMap(in).NumSlots(); got != want {
			t.Errorf("NewCompletionMap(%d).NumSlots() = %d, want %d", in, got, want)
		}
	}
}

func TestCompletionMapAddDone(t *testing.T) {
	c := NewCompletionMap(8)
	c.Add(3, 5)
	if got := c.Pending(3); got != 5 {
		t.Fatalf("Pending = %d, want 5", got)
	}
	if got := c.Done(3, 2); got != 3 {
		t.Fatalf("Done = %d, want 3", got)
	}
	if got := c.Done(3, 3); got != 0 {
		t.Fatalf("Done = %d, want 0", got)
	}
}

func TestCompletionMapSlotWraps(t *testing.T) {
	c := NewCompletionMap(4)
	c.Add(1, 1)
	c.Add(5, 2) // same slot as 1 (mask 3)
	if got := c.Pending(1); got != 3 {
		t.Fatalf("Pending(1) = %d, want 3 (shared slot with block 5)", got)
	}
}

func TestCompletionMapScanForward(t *testing.T) {
	c := NewCompletionMap(16)
	c.Add(4, 1)
	if b, ok := c.ScanForward(0, 16); !ok || b != 4 {
		t.Fatalf("ScanForward = (%d, %v), want (4, true)", b, ok)
	}
	c.Done(4, 1)
	if b, ok := c.ScanForward(0, 16); ok {
		t.Fatalf("ScanForward = (%d, %v), want (_, false)", b, ok)
	}
}

func TestCompletionMapScanForwardPanicsOnBadRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for upTo < from")
		}
	}()
	NewCompletionMap(4).ScanForward(5, 2)
}
