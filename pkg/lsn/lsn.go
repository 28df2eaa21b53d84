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

// Package lsn defines the log sequence number and block geometry of the
// redo log: the conversion between SN (a sequence over data bytes only)
// and LSN (a sequence over the physical byte stream, including block
// framing), and the fixed sizes that make that conversion possible.
package lsn

import "fmt"

const (
	// BlockSize is the fixed physical size, in bytes, of every block in a
	// log file: header + payload + trailer.
	BlockSize = 512

	// HeaderSize is the size, in bytes, of a data block's header
	// (epoch_no, block_no, data_len, first_rec_group).
	HeaderSize = 12

	// TrailerSize is the size, in bytes, of a data block's checksum
	// trailer.
	TrailerSize = 4

	// DataSize is the number of data bytes carried per block.
	DataSize = BlockSize - HeaderSize - TrailerSize

	// FileHeaderBlocks is the number of leading blocks in every log file
	// reserved for the file header, the two checkpoint headers, and the
	// encryption metadata block, before data blocks begin.
	FileHeaderBlocks = 4

	// HdrSize is the byte offset, within every log file, at which data
	// blocks begin.
	HdrSize = FileHeaderBlocks * BlockSize

	// LogStartLSN is the start LSN of the first file of a freshly
	// initialized log: block 16, past a generous reserved region mirroring
	// the source engine's on-disk layout. It is a block boundary, so the
	// very first data byte is at LogStartLSN + HeaderSize.
	LogStartLSN LSN = 16 * BlockSize

	// EpochBlocks is the number of blocks in one epoch window, used to
	// disambiguate block numbers on wraparound.
	EpochBlocks = 1 << 30
)

// LSN is a log sequence number: an offset into the logical byte stream of
// the redo log, counting block headers and trailers.
type LSN uint64

// SN is a sequence number over data bytes only, with no block framing.
type SN uint64

func (l LSN) String() string { return fmt.Sprintf("LSN(%d)", uint64(l)) }
func (s SN) String() string  { return fmt.Sprintf("SN(%d)", uint64(s)) }

// Add returns l+n.
func (l LSN) Add(n uint64) LSN { return l + LSN(n) }

// Sub returns l-other as a signed byte count.
func (l LSN) Sub(other LSN) int64 { return int64(l) - int64(other) }

// BlockAlignDown returns the largest multiple of BlockSize <= l.
func (l LSN) BlockAlignDown() LSN { return l - LSN(uint64(l)%BlockSize) }

// BlockAlignUp returns the smallest multiple of BlockSize >= l.
func (l LSN) BlockAlignUp() LSN {
	rem := uint64(l) % BlockSize
	if rem == 0 {
		return l
	}
	return l + LSN(BlockSize-rem)
}

// OffsetInBlock returns l's byte offset within its containing block.
func (l LSN) OffsetInBlock() uint64 { return uint64(l) % BlockSize }

// BlockIndex returns the zero-based block index containing l, counting
// from the start of the log (not from the start of any particular file).
func (l LSN) BlockIndex() uint64 { return uint64(l) / BlockSize }

// IsDataLSN reports whether l lies within the data region of its block,
// i.e. not inside the header or trailer bytes. This is the invariant
// spec.md §3 requires of every LSN used as a "data LSN".
func (l LSN) IsDataLSN() bool {
	off := l.OffsetInBlock()
	return off >= HeaderSize && off < BlockSize-TrailerSize
}

// SNToLSN maps a data-byte sequence number to its logical LSN, skipping
// over header and trailer bytes automatically. This is the pure function
// of spec.md §3: lsn = sn/DATA*BLOCK + sn%DATA + HDR.
func SNToLSN(sn SN) LSN {
	s := uint64(sn)
	return LSN(s/DataSize*BlockSize + s%DataSize + HeaderSize)
}

// LSNToSN is the inverse of SNToLSN. The caller must ensure lsn is a data
// LSN (see IsDataLSN); behavior on a header/trailer LSN is undefined.
func LSNToSN(l LSN) SN {
	u := uint64(l)
	block := u / BlockSize
	off := u % BlockSize
	return SN(block*DataSize + (off - HeaderSize))
}

// SNToLSNFrom maps sn to an absolute LSN measured from base, a
// block-aligned starting point such as LogStartLSN. Because base is
// block-aligned, adding it to the block-0-relative result of SNToLSN
// preserves the header/trailer structure of each block.
func SNToLSNFrom(base LSN, sn SN) LSN {
	return base + SNToLSN(sn)
}

// LSNToSNFrom is the inverse of SNToLSNFrom.
func LSNToSNFrom(base, l LSN) SN {
	return LSNToSN(l - base)
}

// EpochNo returns the epoch number for the block containing startLSN, per
// spec.md §6: epoch_no = 1 + floor(start_lsn / BLOCK / 2^30).
func EpochNo(startLSN LSN) uint32 {
	return uint32(1 + uint64(startLSN)/BlockSize/EpochBlocks)
}

// BlockNo returns the 1-based, epoch-relative block number for startLSN,
// per spec.md §6: block_no = 1 + (start_lsn / BLOCK) mod 2^30.
func BlockNo(startLSN LSN) uint32 {
	return uint32(1 + (uint64(startLSN)/BlockSize)%EpochBlocks)
}
