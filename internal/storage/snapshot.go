/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package storage

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"flyraft/internal/compression"
	"flyraft/internal/errors"
)

/*
Snapshot file (raft_snapshot.dat):

	| magic(4) | version(4) | crc32(4) | flags(4) | last_index(8) | last_term(8) | state_len(4) |

followed by state_len bytes of (possibly compressed) application state.
The CRC covers last_index, last_term, and state_len. The flags field
records the compression algorithm used for the payload.
*/

const snapshotHeaderSize = 36

// SnapshotMeta anchors a snapshot in the log.
type SnapshotMeta struct {
	LastIndex uint64
	LastTerm  uint64
}

// SnapshotExists reports whether dataDir contains a readable snapshot header.
func SnapshotExists(dataDir string) bool {
	st, err := os.Stat(filepath.Join(dataDir, SnapshotFile))
	return err == nil && st.Size() >= snapshotHeaderSize
}

// SaveSnapshot atomically writes a snapshot file covering the log through
// meta.LastIndex. The state payload is compressed with algo.
func (s *Store) SaveSnapshot(meta SnapshotMeta, state []byte, algo compression.Algorithm) error {
	payload, err := compression.Compress(algo, state)
	if err != nil {
		return errors.IO("compress snapshot", err)
	}

	buf := make([]byte, snapshotHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:], SnapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:], Version)
	binary.LittleEndian.PutUint32(buf[12:], uint32(algo))
	binary.LittleEndian.PutUint64(buf[16:], meta.LastIndex)
	binary.LittleEndian.PutUint64(buf[24:], meta.LastTerm)
	binary.LittleEndian.PutUint32(buf[32:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[8:], crc32.ChecksumIEEE(buf[16:36]))
	copy(buf[snapshotHeaderSize:], payload)

	return s.writeFileAtomic(filepath.Join(s.dataDir, SnapshotFile), buf)
}

// LoadSnapshotMeta reads and validates only the snapshot header.
func (s *Store) LoadSnapshotMeta() (SnapshotMeta, error) {
	meta, _, _, err := readSnapshotHeader(s.dataDir)
	return meta, err
}

// LoadSnapshot reads the snapshot metadata and the decompressed state
// payload.
func (s *Store) LoadSnapshot() (SnapshotMeta, []byte, error) {
	meta, algo, stateLen, err := readSnapshotHeader(s.dataDir)
	if err != nil {
		return SnapshotMeta{}, nil, err
	}

	f, err := os.Open(filepath.Join(s.dataDir, SnapshotFile))
	if err != nil {
		return SnapshotMeta{}, nil, errors.IO("open snapshot file", err)
	}
	defer f.Close()

	if _, err := f.Seek(snapshotHeaderSize, io.SeekStart); err != nil {
		return SnapshotMeta{}, nil, errors.IO("seek snapshot payload", err)
	}
	payload := make([]byte, stateLen)
	if _, err := io.ReadFull(f, payload); err != nil {
		return SnapshotMeta{}, nil, errors.Corruption("truncated snapshot payload")
	}

	state, err := compression.Decompress(algo, payload)
	if err != nil {
		return SnapshotMeta{}, nil, errors.Corruption("snapshot payload decompression failed")
	}
	return meta, state, nil
}

func readSnapshotHeader(dataDir string) (SnapshotMeta, compression.Algorithm, uint32, error) {
	f, err := os.Open(filepath.Join(dataDir, SnapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotMeta{}, 0, 0, errors.NotFound("snapshot file")
		}
		return SnapshotMeta{}, 0, 0, errors.IO("open snapshot file", err)
	}
	defer f.Close()

	hdr := make([]byte, snapshotHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return SnapshotMeta{}, 0, 0, errors.IO("read snapshot header", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != SnapshotMagic {
		return SnapshotMeta{}, 0, 0, errors.Corruption("snapshot file magic mismatch")
	}
	if binary.LittleEndian.Uint32(hdr[4:]) != Version {
		return SnapshotMeta{}, 0, 0, errors.Corruption("snapshot file version mismatch")
	}
	if binary.LittleEndian.Uint32(hdr[8:]) != crc32.ChecksumIEEE(hdr[16:36]) {
		return SnapshotMeta{}, 0, 0, errors.Corruption("snapshot header checksum mismatch")
	}

	meta := SnapshotMeta{
		LastIndex: binary.LittleEndian.Uint64(hdr[16:]),
		LastTerm:  binary.LittleEndian.Uint64(hdr[24:]),
	}
	algo := compression.Algorithm(binary.LittleEndian.Uint32(hdr[12:]))
	stateLen := binary.LittleEndian.Uint32(hdr[32:])
	return meta, algo, stateLen, nil
}
