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

// reservedBlockNoBit is the legacy "first block in a write" marker the
// pre-8.0.30 format stored in block_no's high bit. spec.md §9 keeps it
// reserved: parsed on read, never set by this writer.
const reservedBlockNoBit uint32 = 1 << 31

// encryptedDataLenBit marks, in DataHeader.DataLen's high bit, that this
// block's payload is encrypted.
const encryptedDataLenBit uint16 = 1 << 15

const dataLenMask uint16 = encryptedDataLenBit - 1

// DataHeader is a data block's 12-byte header.
type DataHeader struct {
	BlockNo       uint32
	DataLen       uint16 // data bytes actually present, <= lsn.DataSize
	Encrypted     bool
	FirstRecGroup uint16 // 0 means "no group starts in this block"
	EpochNo       uint32
}

const dataHeaderLen = 4 + 2 + 2 + 4 // == lsn.HeaderSize

func init() {
	if dataHeaderLen != lsn.HeaderSize {
		panic("logblock: data header layout does not match lsn.HeaderSize")
	}
}

// SerializeDataBlock encodes h and writes it, followed by the given
// payload (padded to lsn.DataSize), into a fresh lsn.BlockSize buffer
// with a trailing CRC32. payload must be <= lsn.DataSize bytes.
func SerializeDataBlock(h DataHeader, payload []byte) ([]byte, error) {
	if len(payload) > lsn.DataSize {
		return nil, fmt.Errorf("logblock: payload is %d bytes, max %d", len(payload), lsn.DataSize)
	}
	if h.BlockNo&reservedBlockNoBit != 0 {
		return nil, fmt.Errorf("logblock: block_no reserved bit must not be set")
	}
	if h.FirstRecGroup != 0 && (uint64(h.FirstRecGroup) < lsn.HeaderSize || uint64(h.FirstRecGroup) > uint64(lsn.HeaderSize)+uint64(h.DataLen)) {
		return nil, fmt.Errorf("logblock: first_rec_group %d out of [%d,%d]", h.FirstRecGroup, lsn.HeaderSize, uint64(lsn.HeaderSize)+uint64(h.DataLen))
	}

	buf := make([]byte, lsn.BlockSize)
	binary.BigEndian.PutUint32(buf[0:4], h.BlockNo)
	dl := h.DataLen & dataLenMask
	if h.Encrypted {
		dl |= encryptedDataLenBit
	}
	binary.BigEndian.PutUint16(buf[4:6], dl)
	binary.BigEndian.PutUint16(buf[6:8], h.FirstRecGroup)
	binary.BigEndian.PutUint32(buf[8:12], h.EpochNo)
	copy(buf[lsn.HeaderSize:lsn.HeaderSize+len(payload)], payload)
	binary.BigEndian.PutUint32(buf[checksummedBody:], crc(buf[:checksummedBody]))
	return buf, nil
}

// DeserializeDataBlock decodes a data block's header and returns its
// header plus the full lsn.DataSize payload region (including any
// trailing zero padding beyond DataLen). A checksum mismatch is reported
// via redoerr.ErrCorrupt; per spec.md §7 this is the normal end-of-log
// signal, not a hard error, and callers should treat it as "stop reading
// here" rather than propagate it upward as a failure.
func DeserializeDataBlock(buf []byte) (DataHeader, []byte, error) {
	if len(buf) != lsn.BlockSize {
		return DataHeader{}, nil, fmt.Errorf("logblock: data block buffer is %d bytes, want %d: %w", len(buf), lsn.BlockSize, redoerr.ErrCorrupt)
	}
	want := binary.BigEndian.Uint32(buf[checksummedBody:])
	got := crc(buf[:checksummedBody])
	if want != got {
		return DataHeader{}, nil, fmt.Errorf("logblock: data block checksum mismatch (want %x got %x): %w", want, got, redoerr.ErrCorrupt)
	}
	var h DataHeader
	h.BlockNo = binary.BigEndian.Uint32(buf[0:4]) &^ reservedBlockNoBit
	dl := binary.BigEndian.Uint16(buf[4:6])
	h.Encrypted = dl&encryptedDataLenBit != 0
	h.DataLen = dl & dataLenMask
	h.FirstRecGroup = binary.BigEndian.Uint16(buf[6:8])
	h.EpochNo = binary.BigEndian.Uint32(buf[8:12])
	payload := make([]byte, lsn.DataSize)
	copy(payload, buf[lsn.HeaderSize:lsn.HeaderSize+lsn.DataSize])
	return h, payload, nil
}
