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

import (
	"context"
	"testing"
	"time"

	"github.com/redologengine/redolog/pkg/jsonconfig"
	"github.com/redologengine/redolog/pkg/logconfig"
	"github.com/redologengine/redolog/pkg/lsn"
)

func testConfig(t *testing.T) logconfig.Config {
	t.Helper()
	obj := jsonconfig.Obj{
		"dir":                  t.TempDir(),
		"capacity_bytes":       float64(16 << 20),
		"buffer_bytes":         float64(1 << 20),
		"skip_fsyncs":          true,
		"checkpoint_period_ms": float64(20),
	}
	cfg, err := logconfig.Load(obj)
	if err != nil {
		t.Fatalf("logconfig.Load: %v", err)
	}
	return cfg
}

func TestOpenColdStart(t *testing.T) {
	e, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if got := e.Files(); len(got) != 1 {
		t.Fatalf("Files() = %d entries, want 1 after cold start", len(got))
	}
	if e.WriteLSN() == 0 {
		t.Errorf("WriteLSN() = 0, want the log start LSN")
	}
}

func TestReserveWriteFlushCheckpoint(t *testing.T) {
	e, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()
	e.Start()
	defer e.Stop()

	payload := []byte("hello redo log")
	start, end, err := e.Reserve(context.Background(), len(payload))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	buf := e.Buf()
	n := 0
	for _, sp := range e.Spans(start, end) {
		n += copy(buf[sp.Offset:sp.Offset+sp.Length], payload[n:])
	}
	if err := e.CloseRange(start, end, 0); err != nil {
		t.Fatalf("CloseRange: %v", err)
	}

	writeLSN := lsn.SNToLSNFrom(e.ring.Base(), end)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.WaitWrittenAtLeast(ctx, writeLSN); err != nil {
		t.Fatalf("WaitWrittenAtLeast: %v", err)
	}
	if err := e.WaitFlushedAtLeast(ctx, writeLSN); err != nil {
		t.Fatalf("WaitFlushedAtLeast: %v", err)
	}

	e.RequestCheckpoint()
	deadline := time.Now().Add(2 * time.Second)
	for e.LastCheckpointLSN() < writeLSN && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.LastCheckpointLSN() < writeLSN {
		t.Errorf("LastCheckpointLSN() = %d, want >= %d", e.LastCheckpointLSN(), writeLSN)
	}
}

func TestReserveRejectsAfterStop(t *testing.T) {
	e, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	e.Start()
	e.Stop()
	e.Close()

	if _, _, err := e.Reserve(context.Background(), 4); err == nil {
		t.Fatal("Reserve after Stop: expected error, got nil")
	}
}

func TestRegisterUnregisterConsumer(t *testing.T) {
	e, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	called := false
	e.RegisterConsumer(Consumer{
		Name:      "test",
		OldestLSN: func() lsn.LSN { return e.ring.Base() },
		Rush:      func() { called = true },
	})
	e.consumers.Rush()
	if !called {
		t.Error("registered consumer's Rush was not invoked")
	}
	e.UnregisterConsumer("test")
}
