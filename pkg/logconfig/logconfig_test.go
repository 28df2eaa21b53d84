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

package logconfig

import (
	"testing"

	"github.com/redologengine/redolog/pkg/jsonconfig"
)

func TestLoadDefaults(t *testing.T) {
	obj := jsonconfig.Obj{"dir": "/var/lib/redolog"}
	c, err := Load(obj)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CapacityBytes != 128<<20 {
		t.Errorf("CapacityBytes = %d, want default %d", c.CapacityBytes, 128<<20)
	}
	if c.MaxConcurrentThreads != 8 {
		t.Errorf("MaxConcurrentThreads = %d, want 8", c.MaxConcurrentThreads)
	}
}

func TestLoadMissingDir(t *testing.T) {
	obj := jsonconfig.Obj{}
	if _, err := Load(obj); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestLoadUnknownKeyRejected(t *testing.T) {
	obj := jsonconfig.Obj{"dir": "/x", "bogus_key": true}
	if _, err := Load(obj); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadEncryptRequiresRecipient(t *testing.T) {
	obj := jsonconfig.Obj{"dir": "/x", "encrypt": true}
	if _, err := Load(obj); err == nil {
		t.Fatal("expected error for encrypt without recipient")
	}
}

func TestLoadEncryptWithRecipientOK(t *testing.T) {
	obj := jsonconfig.Obj{"dir": "/x", "encrypt": true, "encrypt_recipient": "age1...."}
	if _, err := Load(obj); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadCapacityMustBePositive(t *testing.T) {
	obj := jsonconfig.Obj{"dir": "/x", "capacity_bytes": float64(0)}
	if _, err := Load(obj); err == nil {
		t.Fatal("expected error for zero capacity_bytes")
	}
}
