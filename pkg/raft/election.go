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
	"flyraft/internal/protocol"
)

// stepDown reverts to follower at newTerm, clearing the vote when the
// term advances. Persisted before any dependent reply is released.
func (n *Node) stepDown(newTerm uint64) error {
	wasLeader := n.role == Leader

	n.role = Follower
	if newTerm > n.currentTerm {
		n.currentTerm = newTerm
		n.votedFor = NoVote
	}
	n.currentLeader = NoNode
	n.votesGranted = make(map[int32]bool)
	n.preVotesGranted = make(map[int32]bool)
	n.resetElectionTimer()

	if wasLeader {
		n.cancelReads()
		n.abortTransfer()
		if n.cfg.OnLeadershipChange != nil {
			n.cfg.OnLeadershipChange(n, false, n.currentTerm)
		}
		n.logger.Info("stepped down", "term", n.currentTerm)
	}

	return n.saveState()
}

// startElection transitions to candidate, votes for itself, and solicits
// votes. The term and vote are persisted before any RPC leaves the node.
func (n *Node) startElection() error {
	if !n.running {
		return errors.Stopped()
	}

	n.role = Candidate
	n.currentTerm++
	n.votedFor = n.cfg.NodeID
	n.currentLeader = NoNode
	n.votesGranted = map[int32]bool{n.cfg.NodeID: true}
	n.resetElectionTimer()

	if err := n.saveState(); err != nil {
		return err
	}

	n.logger.Info("starting election", "term", n.currentTerm)

	if n.hasQuorum(len(n.votesGranted)) {
		n.becomeLeader()
		return nil
	}

	req := &protocol.RequestVote{
		Term:         n.currentTerm,
		CandidateID:  n.cfg.NodeID,
		LastLogIndex: n.log.LastIndex(),
		LastLogTerm:  n.log.LastTerm(),
	}
	for _, peer := range n.otherMembers() {
		n.send(peer, req)
	}
	return nil
}

// handleRequestVote applies the voting rules: one vote per term, granted
// only to candidates whose log is at least as up-to-date as ours.
func (n *Node) handleRequestVote(req *protocol.RequestVote) (*protocol.RequestVoteResponse, error) {
	if req.Term > n.currentTerm {
		if err := n.stepDown(req.Term); err != nil {
			return nil, err
		}
	}

	resp := &protocol.RequestVoteResponse{Term: n.currentTerm}

	if req.Term < n.currentTerm {
		return resp, nil
	}

	canVote := n.votedFor == NoVote || n.votedFor == req.CandidateID
	if canVote && n.logUpToDate(req.LastLogTerm, req.LastLogIndex) {
		n.votedFor = req.CandidateID
		if err := n.saveState(); err != nil {
			return nil, err
		}
		resp.VoteGranted = true
		n.resetElectionTimer()
		n.logger.Debug("granted vote", "candidate", req.CandidateID, "term", req.Term)
	}
	return resp, nil
}

// handleRequestVoteResponse tallies first-time grants; a majority
// promotes this candidate to leader.
func (n *Node) handleRequestVoteResponse(from int32, resp *protocol.RequestVoteResponse) error {
	if resp.Term > n.currentTerm {
		return n.stepDown(resp.Term)
	}
	if n.role != Candidate || resp.Term < n.currentTerm {
		return nil
	}

	if resp.VoteGranted && !n.votesGranted[from] {
		n.votesGranted[from] = true
		if n.hasQuorum(len(n.votesGranted)) {
			n.becomeLeader()
		}
	}
	return nil
}

// becomeLeader initialises per-peer progress and announces leadership
// with an immediate heartbeat round.
func (n *Node) becomeLeader() {
	n.role = Leader
	n.currentLeader = n.cfg.NodeID
	n.heartbeatElapsed = 0

	n.progress = make(map[int32]*peerProgress)
	next := n.log.LastIndex() + 1
	for _, peer := range n.replicationTargets() {
		n.progress[peer] = &peerProgress{nextIndex: next}
	}

	n.logger.Info("became leader", "term", n.currentTerm, "last_index", n.log.LastIndex())

	if n.cfg.OnLeadershipChange != nil {
		n.cfg.OnLeadershipChange(n, true, n.currentTerm)
	}

	if n.clusterSize() == 1 {
		n.commitIndex = n.log.LastIndex()
		n.applyCommitted()
		return
	}
	n.replicateAll()
}

// logUpToDate reports whether a candidate log described by (lastTerm,
// lastIndex) is at least as up-to-date as ours.
func (n *Node) logUpToDate(lastTerm, lastIndex uint64) bool {
	myLastTerm := n.log.LastTerm()
	if lastTerm != myLastTerm {
		return lastTerm > myLastTerm
	}
	return lastIndex >= n.log.LastIndex()
}

// saveState persists current_term and voted_for when storage is enabled.
func (n *Node) saveState() error {
	if n.store == nil {
		return nil
	}
	return n.store.SaveState(n.currentTerm, n.votedFor)
}

// send encodes and transmits one message, fire-and-forget.
func (n *Node) send(peer int32, msg protocol.Message) {
	if n.cfg.Send == nil {
		return
	}
	n.cfg.Send(n, peer, protocol.Encode(msg))
}

// otherMembers returns every voting member except this node.
func (n *Node) otherMembers() []int32 {
	out := make([]int32, 0, len(n.members))
	for _, m := range n.members {
		if m != n.cfg.NodeID {
			out = append(out, m)
		}
	}
	return out
}

// replicationTargets returns every node the leader must replicate to:
// the other members plus a pending addition.
func (n *Node) replicationTargets() []int32 {
	out := n.otherMembers()
	if n.pendingAdd && n.pendingNode != NoNode {
		out = append(out, n.pendingNode)
	}
	return out
}

// clusterSize returns the quorum denominator: current members plus a
// pending addition.
func (n *Node) clusterSize() int {
	size := len(n.members)
	if n.pendingAdd && n.pendingNode != NoNode {
		size++
	}
	return size
}

// hasQuorum reports whether count reaches a strict majority of the
// cluster.
func (n *Node) hasQuorum(count int) bool {
	return count > n.clusterSize()/2
}
