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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"flyraft/internal/compression"
	"flyraft/internal/errors"
)

func TestSnapshotRoundTrip(t *testing.T) {
	algos := []compression.Algorithm{
		compression.AlgorithmNone,
		compression.AlgorithmSnappy,
		compression.AlgorithmGzip,
		compression.AlgorithmLZ4,
	}

	for _, algo := range algos {
		t.Run(algo.String(), func(t *testing.T) {
			s, dir := openStore(t)
			state := bytes.Repeat([]byte("flyraft snapshot state "), 100)
			meta := SnapshotMeta{LastIndex: 42, LastTerm: 3}

			if err := s.SaveSnapshot(meta, state, algo); err != nil {
				t.Fatalf("SaveSnapshot: %v", err)
			}
			if !SnapshotExists(dir) {
				t.Fatal("SnapshotExists = false after save")
			}

			gotMeta, err := s.LoadSnapshotMeta()
			if err != nil {
				t.Fatalf("LoadSnapshotMeta: %v", err)
			}
			if gotMeta != meta {
				t.Errorf("meta = %+v, want %+v", gotMeta, meta)
			}

			gotMeta, gotState, err := s.LoadSnapshot()
			if err != nil {
				t.Fatalf("LoadSnapshot: %v", err)
			}
			if gotMeta != meta || !bytes.Equal(gotState, state) {
				t.Errorf("snapshot round trip mismatch (meta %+v, %d state bytes)", gotMeta, len(gotState))
			}
		})
	}
}

func TestSnapshotMissing(t *testing.T) {
	s, dir := openStore(t)
	if SnapshotExists(dir) {
		t.Error("SnapshotExists = true in empty dir")
	}
	if _, err := s.LoadSnapshotMeta(); !errors.IsNotFound(err) {
		t.Errorf("LoadSnapshotMeta = %v, want NotFound", err)
	}
}

func TestSnapshotHeaderCorruptionDetected(t *testing.T) {
	s, dir := openStore(t)
	if err := s.SaveSnapshot(SnapshotMeta{LastIndex: 9, LastTerm: 2}, []byte("s"), compression.AlgorithmNone); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	path := filepath.Join(dir, SnapshotFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Flip a byte inside last_index, which the header CRC covers.
	data[17] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := s.LoadSnapshotMeta(); !errors.IsCorruption(err) {
		t.Errorf("LoadSnapshotMeta = %v, want Corruption", err)
	}
}

func TestSnapshotReplacedAtomically(t *testing.T) {
	s, _ := openStore(t)
	if err := s.SaveSnapshot(SnapshotMeta{LastIndex: 5, LastTerm: 1}, []byte("old"), compression.AlgorithmSnappy); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveSnapshot(SnapshotMeta{LastIndex: 9, LastTerm: 2}, []byte("new"), compression.AlgorithmSnappy); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	meta, state, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if meta.LastIndex != 9 || !bytes.Equal(state, []byte("new")) {
		t.Errorf("snapshot = %+v %q, want the replacement", meta, state)
	}
}
