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

package raft

import (
	"flyraft/internal/errors"
	"flyraft/internal/storage"
)

// InstallSnapshot atomically installs a snapshot: the snapshot persists,
// the log re-anchors at the snapshot's last entry, and commit/applied
// advance to at least that point. Log entries beyond the anchor that are
// consistent with it survive; a divergent log is reset.
func (n *Node) InstallSnapshot(meta SnapshotMeta, state []byte) error {
	if meta.LastIndex == 0 {
		return errors.InvalidArg("snapshot last_index must be positive")
	}
	return n.installSnapshot(meta, state)
}

func (n *Node) installSnapshot(meta SnapshotMeta, state []byte) error {
	if n.store != nil {
		smeta := storage.SnapshotMeta{LastIndex: meta.LastIndex, LastTerm: meta.LastTerm}
		if err := n.store.SaveSnapshot(smeta, state, n.cfg.compressionAlgorithm()); err != nil {
			return err
		}
	}

	// Keep a consistent tail; anything else is superseded by the
	// snapshot.
	if t := n.log.TermAt(meta.LastIndex); t != 0 && t == meta.LastTerm {
		n.log.TruncateBefore(meta.LastIndex + 1)
	} else {
		n.log.Reset(meta.LastIndex, meta.LastTerm)
	}

	if n.store != nil {
		if err := n.store.RewriteLog(n.log.BaseIndex(), n.log.BaseTerm(), n.survivingRecords()); err != nil {
			return err
		}
	}

	if n.commitIndex < meta.LastIndex {
		n.commitIndex = meta.LastIndex
	}
	if n.lastApplied < meta.LastIndex {
		n.lastApplied = meta.LastIndex
	}

	n.snapMeta = meta
	n.snapState = append([]byte(nil), state...)
	n.hasSnap = true

	if n.cfg.RestoreSnapshot != nil {
		n.cfg.RestoreSnapshot(n, meta, state)
	}

	n.logger.Info("snapshot installed",
		"last_index", meta.LastIndex,
		"last_term", meta.LastTerm,
		"state_bytes", len(state))
	return nil
}

// Snapshot returns the most recent snapshot's metadata, if any.
func (n *Node) Snapshot() (SnapshotMeta, bool) {
	return n.snapMeta, n.hasSnap
}

// EntriesSinceSnapshot returns how far the log has grown past its
// compaction anchor.
func (n *Node) EntriesSinceSnapshot() uint64 {
	return n.log.Count()
}

// maybeCompact takes a snapshot of the application state and truncates
// the applied log prefix once the entry count passes the configured
// threshold. Advisory: without a snapshot callback the log just keeps
// growing.
func (n *Node) maybeCompact() {
	if n.cfg.SnapshotState == nil || n.cfg.LogCompactionThreshold == 0 {
		return
	}
	if n.log.Count() <= n.cfg.LogCompactionThreshold {
		return
	}
	if n.lastApplied <= n.log.BaseIndex() {
		return
	}

	state, err := n.cfg.SnapshotState(n)
	if err != nil {
		n.logger.Warn("snapshot callback failed, compaction skipped", "error", err)
		return
	}

	meta := SnapshotMeta{LastIndex: n.lastApplied, LastTerm: n.log.TermAt(n.lastApplied)}
	if n.store != nil {
		smeta := storage.SnapshotMeta{LastIndex: meta.LastIndex, LastTerm: meta.LastTerm}
		if err := n.store.SaveSnapshot(smeta, state, n.cfg.compressionAlgorithm()); err != nil {
			n.logger.Warn("snapshot persist failed, compaction skipped", "error", err)
			return
		}
	}

	n.log.TruncateBefore(meta.LastIndex + 1)
	if n.store != nil {
		if err := n.store.RewriteLog(n.log.BaseIndex(), n.log.BaseTerm(), n.survivingRecords()); err != nil {
			n.logger.Warn("log rewrite after compaction failed", "error", err)
		}
	}

	n.snapMeta = meta
	n.snapState = state
	n.hasSnap = true

	n.logger.Info("log compacted",
		"base_index", n.log.BaseIndex(),
		"base_term", n.log.BaseTerm(),
		"remaining_entries", n.log.Count())
}

// survivingRecords converts the in-memory tail into storage records for
// an atomic log rewrite.
func (n *Node) survivingRecords() []storage.LogRecord {
	records := make([]storage.LogRecord, 0, n.log.Count())
	for idx := n.log.BaseIndex() + 1; idx <= n.log.LastIndex(); idx++ {
		e := n.log.Get(idx)
		records = append(records, storage.LogRecord{
			Term:    e.Term,
			Index:   e.Index,
			Kind:    uint32(e.Kind),
			Command: e.Command,
		})
	}
	return records
}
