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

// Package logblock serializes and deserializes the fixed-size on-disk
// structures of the redo log: the file header, the two checkpoint
// headers, and data-block headers and trailers. Every structure is
// exactly one lsn.BlockSize (512 byte) block, trailed by a CRC32
// checksum over the preceding bytes, mirroring how
// blobserver/diskpacked encodes its own small fixed records
// (blobMeta.String/parseBlobMeta) but at the byte level the redo log
// requires.
package logblock

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/redologengine/redolog/pkg/lsn"
	"github.com/redologengine/redolog/pkg/redoerr"
)

// CreatorMaxLen is the maximum length, in bytes, of a FileHeader's
// Creator string.
const CreatorMaxLen = 31

// Persisted file flags, per spec.md §6.
const (
	FlagNoLogging      uint32 = 1 << 0
	FlagCrashUnsafe    uint32 = 1 << 1
	FlagNotInitialized uint32 = 1 << 2
	FlagFileFull       uint32 = 1 << 3
)

// legacyFormat is the sentinel format value whose trailer checksum is not
// verified on read, matching the historical escape hatch spec.md §4.1
// describes.
const legacyFormat uint32 = 0

// CurrentFormat is the format version this engine writes.
const CurrentFormat uint32 = 1

// FileHeader is the first block of a log file.
type FileHeader struct {
	Format   uint32
	UUID     uint32
	StartLSN lsn.LSN
	Creator  string
	Flags    uint32
}

// checksummedBody is the byte count, within a block, covered by the
// trailing CRC32: every block is BlockSize with the last 4 bytes holding
// the checksum of everything before it.
const checksummedBody = lsn.BlockSize - 4

func crc(body []byte) uint32 { return crc32.ChecksumIEEE(body) }

// creatorFieldLen is the full reserved width of the creator field,
// including its terminating pad byte, per spec.md §3 ("creator string
// (<=31 bytes)").
const creatorFieldLen = CreatorMaxLen + 1

const (
	offFormat  = 0
	offUUID    = offFormat + 4
	offStart   = offUUID + 4
	offCreator = offStart + 8
	offFlags   = offCreator + creatorFieldLen
	offHdrEnd  = offFlags + 4
)

// SerializeFileHeader encodes h into a fresh lsn.BlockSize buffer.
func SerializeFileHeader(h FileHeader) []byte {
	buf := make([]byte, lsn.BlockSize)
	binary.BigEndian.PutUint32(buf[offFormat:], h.Format)
	binary.BigEndian.PutUint32(buf[offUUID:], h.UUID)
	binary.BigEndian.PutUint64(buf[offStart:], uint64(h.StartLSN))
	creator := h.Creator
	if len(creator) > CreatorMaxLen {
		creator = creator[:CreatorMaxLen]
	}
	copy(buf[offCreator:offCreator+creatorFieldLen], creator)
	binary.BigEndian.PutUint32(buf[offFlags:], h.Flags)
	binary.BigEndian.PutUint32(buf[checksummedBody:], crc(buf[:checksummedBody]))
	return buf
}

// DeserializeFileHeader decodes a FileHeader from a lsn.BlockSize buffer,
// verifying its trailer checksum unless the stored format is the legacy
// sentinel that predates checksummed headers.
func DeserializeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) != lsn.BlockSize {
		return FileHeader{}, fmt.Errorf("logblock: file header buffer is %d bytes, want %d: %w", len(buf), lsn.BlockSize, redoerr.ErrCorrupt)
	}
	var h FileHeader
	h.Format = binary.BigEndian.Uint32(buf[offFormat:])
	if h.Format != legacyFormat {
		want := binary.BigEndian.Uint32(buf[checksummedBody:])
		got := crc(buf[:checksummedBody])
		if want != got {
			return FileHeader{}, fmt.Errorf("logblock: file header checksum mismatch (want %x got %x): %w", want, got, redoerr.ErrCorrupt)
		}
	}
	h.UUID = binary.BigEndian.Uint32(buf[offUUID:])
	h.StartLSN = lsn.LSN(binary.BigEndian.Uint64(buf[offStart:]))
	h.Creator = trimNulls(buf[offCreator : offCreator+creatorFieldLen])
	h.Flags = binary.BigEndian.Uint32(buf[offFlags:])
	return h, nil
}

func trimNulls(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// HasFlag reports whether flags has all bits of want set.
func HasFlag(flags, want uint32) bool { return flags&want == want }

// SetFlag returns flags with want's bits set.
func SetFlag(flags, want uint32) uint32 { return flags | want }

// ResetFlag returns flags with want's bits cleared.
func ResetFlag(flags, want uint32) uint32 { return flags &^ want }
