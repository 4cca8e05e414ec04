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
	"testing"
	"time"

	"flyraft/internal/protocol"
)

func TestPreVoteDoesNotDisturbResponder(t *testing.T) {
	n := newTestNode(t, 0, 3)
	n.currentTerm = 2
	n.votedFor = 1

	resp, err := n.handlePreVote(&protocol.PreVote{Term: 3, CandidateID: 2})
	if err != nil {
		t.Fatalf("handlePreVote: %v", err)
	}
	if !resp.VoteGranted {
		t.Error("pre-vote refused with no live leader and an up-to-date log")
	}
	if n.currentTerm != 2 {
		t.Errorf("term changed to %d by a pre-vote", n.currentTerm)
	}
	if n.votedFor != 1 {
		t.Errorf("voted_for changed to %d by a pre-vote", n.votedFor)
	}
}

func TestPreVoteRefusedWhileLeaderAlive(t *testing.T) {
	n := newTestNode(t, 0, 3)
	n.currentTerm = 1

	// A live leader just contacted us.
	if _, err := n.handleAppendEntries(appendReq(1, 0, 0, 0)); err != nil {
		t.Fatalf("handleAppendEntries: %v", err)
	}

	resp, err := n.handlePreVote(&protocol.PreVote{Term: 2, CandidateID: 2})
	if err != nil {
		t.Fatalf("handlePreVote: %v", err)
	}
	if resp.VoteGranted {
		t.Error("pre-vote granted while the leader is still heard from")
	}

	// After more than an election timeout of silence, grants resume.
	n.leaderContact = n.electionTimeout + time.Millisecond
	resp, _ = n.handlePreVote(&protocol.PreVote{Term: 2, CandidateID: 2})
	if !resp.VoteGranted {
		t.Error("pre-vote refused after the leader went silent")
	}
}

func TestPreVoteRequiresUpToDateLog(t *testing.T) {
	n := newTestNode(t, 0, 3)
	n.log.Append(2, EntryCommand, []byte("x"))
	n.currentTerm = 2

	resp, err := n.handlePreVote(&protocol.PreVote{Term: 3, CandidateID: 2, LastLogIndex: 3, LastLogTerm: 1})
	if err != nil {
		t.Fatalf("handlePreVote: %v", err)
	}
	if resp.VoteGranted {
		t.Error("pre-vote granted to a candidate with a stale log")
	}
}

func TestPreVoteMajorityStartsRealElection(t *testing.T) {
	n := newTestNode(t, 0, 3)
	if err := n.startPreVote(); err != nil {
		t.Fatalf("startPreVote: %v", err)
	}
	if n.role != PreCandidate {
		t.Fatalf("role = %s, want PRE_CANDIDATE", n.role)
	}
	if n.currentTerm != 0 {
		t.Fatalf("pre-vote incremented the term to %d", n.currentTerm)
	}

	err := n.handlePreVoteResponse(1, &protocol.PreVoteResponse{Term: 0, VoteGranted: true})
	if err != nil {
		t.Fatalf("handlePreVoteResponse: %v", err)
	}
	if n.role != Candidate {
		t.Errorf("role = %s after pre-vote majority, want CANDIDATE", n.role)
	}
	if n.currentTerm != 1 {
		t.Errorf("term = %d after real election start, want 1", n.currentTerm)
	}
}

func TestFailedPreVoteRoundLeavesClusterUnchanged(t *testing.T) {
	c := newCluster(t, 3)
	defer c.close()

	leader := c.electLeader(0)
	term := leader.Term()

	// Node 2 is cut off and times out repeatedly; its pre-vote rounds
	// must fail without pushing any term forward.
	c.partition(2)
	c.run(100, 10*time.Millisecond)

	if got := c.nodes[2].Term(); got != term {
		t.Errorf("partitioned node term = %d, want unchanged %d", got, term)
	}
	if c.nodes[2].Role() == Leader || c.nodes[2].Role() == Candidate {
		t.Errorf("partitioned node escalated to %s", c.nodes[2].Role())
	}

	// On rejoin the stable leader is not disrupted.
	c.heal()
	c.run(20, 10*time.Millisecond)
	if leader.Role() != Leader || leader.Term() != term {
		t.Errorf("leader disturbed after rejoin: role %s term %d", leader.Role(), leader.Term())
	}
}
