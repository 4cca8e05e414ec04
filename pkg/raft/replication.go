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
	"flyraft/internal/protocol"
	"flyraft/internal/storage"
)

// replicateAll dispatches one AppendEntries (or InstallSnapshot) to every
// replication target. Doubles as the heartbeat: an up-to-date peer just
// receives an empty entry stream carrying the leader's commit index.
func (n *Node) replicateAll() {
	if n.role != Leader {
		return
	}
	for _, peer := range n.replicationTargets() {
		n.replicateToPeer(peer)
	}
}

// replicateToPeer assembles the next AppendEntries for one peer from its
// progress. A peer whose next index has fallen behind the compaction
// anchor receives the current snapshot instead.
func (n *Node) replicateToPeer(peer int32) {
	pr, ok := n.progress[peer]
	if !ok {
		return
	}

	if pr.nextIndex <= n.log.BaseIndex() {
		if n.hasSnap {
			n.send(peer, &protocol.InstallSnapshot{
				Term:      n.currentTerm,
				LeaderID:  n.cfg.NodeID,
				LastIndex: n.snapMeta.LastIndex,
				LastTerm:  n.snapMeta.LastTerm,
				State:     n.snapState,
			})
			return
		}
		// No snapshot to offer; resync from the anchor.
		pr.nextIndex = n.log.BaseIndex() + 1
	}

	prevIndex := pr.nextIndex - 1
	req := &protocol.AppendEntries{
		Term:         n.currentTerm,
		LeaderID:     n.cfg.NodeID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  n.log.TermAt(prevIndex),
		LeaderCommit: n.commitIndex,
	}
	for _, e := range n.log.slice(pr.nextIndex, n.cfg.MaxEntriesPerAppend) {
		req.Entries = append(req.Entries, protocol.Entry{
			Term:    e.Term,
			Kind:    uint8(e.Kind),
			Command: e.Command,
		})
	}
	n.send(peer, req)
}

// handleAppendEntries is the follower side: consistency check, conflict
// truncation, append, and commit advancement. Entries are durable before
// the success reply is released.
func (n *Node) handleAppendEntries(req *protocol.AppendEntries) (*protocol.AppendEntriesResponse, error) {
	resp := &protocol.AppendEntriesResponse{Term: n.currentTerm}

	if req.Term < n.currentTerm {
		return resp, nil
	}
	if req.Term > n.currentTerm {
		if err := n.stepDown(req.Term); err != nil {
			return nil, err
		}
		resp.Term = n.currentTerm
	}

	n.resetElectionTimer()
	n.noteLeaderContact()
	n.currentLeader = req.LeaderID

	// A candidate at the leader's term yields to it.
	if n.role != Follower {
		n.role = Follower
		n.votesGranted = make(map[int32]bool)
		n.preVotesGranted = make(map[int32]bool)
	}

	// Consistency check: our log must contain the leader's previous
	// entry. The last index is returned as a conservative back-off hint.
	if req.PrevLogIndex > n.log.BaseIndex() {
		if n.log.TermAt(req.PrevLogIndex) != req.PrevLogTerm {
			resp.MatchIndex = n.log.LastIndex()
			return resp, nil
		}
	}

	for i, e := range req.Entries {
		index := req.PrevLogIndex + 1 + uint64(i)
		if index <= n.log.BaseIndex() {
			// Covered by our snapshot anchor.
			continue
		}
		existing := n.log.TermAt(index)
		if existing != 0 && existing != e.Term {
			n.log.TruncateAfter(index - 1)
			if n.store != nil {
				if err := n.store.TruncateLog(index - 1); err != nil {
					return nil, err
				}
			}
		}
		if index > n.log.LastIndex() {
			n.log.Append(e.Term, EntryKind(e.Kind), e.Command)
			if n.store != nil {
				rec := storage.LogRecord{Term: e.Term, Index: index, Kind: uint32(e.Kind), Command: e.Command}
				if err := n.store.AppendEntry(rec); err != nil {
					n.log.TruncateAfter(index - 1)
					return nil, err
				}
			}
		}
	}

	// Every valid AppendEntries carries the leader's commit index,
	// heartbeat or not.
	if req.LeaderCommit > n.commitIndex {
		newCommit := req.LeaderCommit
		if lastNew := req.PrevLogIndex + uint64(len(req.Entries)); lastNew < newCommit {
			newCommit = lastNew
		}
		if last := n.log.LastIndex(); last < newCommit {
			newCommit = last
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
			n.applyCommitted()
		}
	}

	resp.Success = true
	resp.MatchIndex = n.log.LastIndex()
	return resp, nil
}

// handleAppendEntriesResponse is the leader side: progress bookkeeping,
// commit advancement, read confirmation, and transfer progress.
func (n *Node) handleAppendEntriesResponse(from int32, resp *protocol.AppendEntriesResponse) error {
	if resp.Term > n.currentTerm {
		return n.stepDown(resp.Term)
	}
	if n.role != Leader || resp.Term < n.currentTerm {
		return nil
	}
	pr, ok := n.progress[from]
	if !ok {
		return nil
	}

	if resp.Success {
		if resp.MatchIndex > pr.matchIndex {
			pr.matchIndex = resp.MatchIndex
			pr.nextIndex = pr.matchIndex + 1
		}
		n.advanceCommitIndex()
		n.processReadAck(from)
		n.checkTransferProgress()
		return nil
	}

	// Consistency check failed: back off one step and retry on the next
	// heartbeat. The follower's hint may fast-forward the walk, but it
	// is advisory only.
	if pr.nextIndex > 1 {
		pr.nextIndex--
	}
	if resp.MatchIndex > 0 && resp.MatchIndex+1 < pr.nextIndex {
		pr.nextIndex = resp.MatchIndex + 1
	}
	n.logger.Debug("append rejected, backing off", "peer", from, "next_index", pr.nextIndex)
	return nil
}

// handleInstallSnapshot atomically replaces the follower's log prefix
// with the leader's snapshot.
func (n *Node) handleInstallSnapshot(req *protocol.InstallSnapshot) (*protocol.InstallSnapshotResponse, error) {
	resp := &protocol.InstallSnapshotResponse{Term: n.currentTerm}

	if req.Term < n.currentTerm {
		return resp, nil
	}
	if req.Term > n.currentTerm {
		if err := n.stepDown(req.Term); err != nil {
			return nil, err
		}
		resp.Term = n.currentTerm
	}

	n.resetElectionTimer()
	n.noteLeaderContact()
	n.currentLeader = req.LeaderID
	if n.role != Follower {
		n.role = Follower
	}

	if req.LastIndex <= n.commitIndex {
		// Stale snapshot; everything it covers is already committed here.
		resp.Success = true
		return resp, nil
	}

	meta := SnapshotMeta{LastIndex: req.LastIndex, LastTerm: req.LastTerm}
	if err := n.installSnapshot(meta, req.State); err != nil {
		return nil, err
	}
	resp.Success = true
	return resp, nil
}

// handleInstallSnapshotResponse advances the peer past the snapshot it
// accepted.
func (n *Node) handleInstallSnapshotResponse(from int32, resp *protocol.InstallSnapshotResponse) error {
	if resp.Term > n.currentTerm {
		return n.stepDown(resp.Term)
	}
	if n.role != Leader || resp.Term < n.currentTerm || !resp.Success {
		return nil
	}
	pr, ok := n.progress[from]
	if !ok {
		return nil
	}
	if n.hasSnap && n.snapMeta.LastIndex > pr.matchIndex {
		pr.matchIndex = n.snapMeta.LastIndex
		pr.nextIndex = pr.matchIndex + 1
	}
	n.advanceCommitIndex()
	return nil
}
