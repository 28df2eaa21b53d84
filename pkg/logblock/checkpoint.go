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

package logblock

import (
	"encoding/binary"
	"fmt"

	"github.com/redologengine/redolog/pkg/lsn"
	"github.com/redologengine/redolog/pkg/redoerr"
)

// CheckpointHeader1Offset and CheckpointHeader2Offset are the byte offsets,
// within file 0, of the two alternating checkpoint header blocks
// (spec.md §3, §6).
const (
	CheckpointHeader1Offset = 1 * lsn.BlockSize
	CheckpointHeader2Offset = 3 * lsn.BlockSize

	// EncryptionMetaOffset is the byte offset of the encryption metadata
	// block, present only in the first file.
	EncryptionMetaOffset = 2 * lsn.BlockSize
)

// CheckpointHeader is one of the two alternating checkpoint records.
type CheckpointHeader struct {
	CheckpointLSN lsn.LSN
}

// SerializeCheckpointHeader encodes c into a fresh lsn.BlockSize buffer.
func SerializeCheckpointHeader(c CheckpointHeader) []byte {
	buf := make([]byte, lsn.BlockSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(c.CheckpointLSN))
	binary.BigEndian.PutUint32(buf[checksummedBody:], crc(buf[:checksummedBody]))
	return buf
}

// DeserializeCheckpointHeader decodes and verifies a CheckpointHeader.
func DeserializeCheckpointHeader(buf []byte) (CheckpointHeader, error) {
	if len(buf) != lsn.BlockSize {
		return CheckpointHeader{}, fmt.Errorf("logblock: checkpoint header buffer is %d bytes, want %d: %w", len(buf), lsn.BlockSize, redoerr.ErrCorrupt)
	}
	want := binary.BigEndian.Uint32(buf[checksummedBody:])
	got := crc(buf[:checksummedBody])
	if want != got {
		return CheckpointHeader{}, fmt.Errorf("logblock: checkpoint header checksum mismatch (want %x got %x): %w", want, got, redoerr.ErrCorrupt)
	}
	return CheckpointHeader{CheckpointLSN: lsn.LSN(binary.BigEndian.Uint64(buf[0:8]))}, nil
}
