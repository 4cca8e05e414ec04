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

// startPreVote solicits hypothetical votes at currentTerm+1 without
// touching any persistent state. Only a majority of grants lets the node
// proceed to a real election; a transiently partitioned follower that
// rejoins therefore cannot disrupt a stable leader.
func (n *Node) startPreVote() error {
	if !n.running {
		return errors.Stopped()
	}

	n.role = PreCandidate
	n.preVotesGranted = map[int32]bool{n.cfg.NodeID: true}
	n.resetElectionTimer()

	n.logger.Debug("starting pre-vote", "hypothetical_term", n.currentTerm+1)

	if n.hasQuorum(len(n.preVotesGranted)) {
		return n.startElection()
	}

	req := &protocol.PreVote{
		Term:         n.currentTerm + 1,
		CandidateID:  n.cfg.NodeID,
		LastLogIndex: n.log.LastIndex(),
		LastLogTerm:  n.log.LastTerm(),
	}
	for _, peer := range n.otherMembers() {
		n.send(peer, req)
	}
	return nil
}

// handlePreVote grants a hypothetical vote without changing the
// responder's term, vote, or timers. A grant requires that no live
// leader was heard within one election timeout and that the candidate's
// log is up-to-date.
func (n *Node) handlePreVote(req *protocol.PreVote) (*protocol.PreVoteResponse, error) {
	resp := &protocol.PreVoteResponse{Term: n.currentTerm}

	if req.Term < n.currentTerm {
		return resp, nil
	}
	// A live leadership refuses: either we are the leader, or we heard
	// from one within an election timeout.
	if n.role == Leader || n.leaderRecentlyHeard() {
		return resp, nil
	}
	resp.VoteGranted = n.logUpToDate(req.LastLogTerm, req.LastLogIndex)
	return resp, nil
}

// handlePreVoteResponse tallies grants; a majority starts the real
// election.
func (n *Node) handlePreVoteResponse(from int32, resp *protocol.PreVoteResponse) error {
	if resp.Term > n.currentTerm {
		return n.stepDown(resp.Term)
	}
	if n.role != PreCandidate {
		return nil
	}

	if resp.VoteGranted && !n.preVotesGranted[from] {
		n.preVotesGranted[from] = true
		if n.hasQuorum(len(n.preVotesGranted)) {
			return n.startElection()
		}
	}
	return nil
}
