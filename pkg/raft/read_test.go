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

	"flyraft/internal/errors"
	"flyraft/internal/protocol"
)

func TestReadIndexOnFollowerRefused(t *testing.T) {
	n := newTestNode(t, 0, 3)
	err := n.ReadIndex(func(_ *Node, err error) {})
	if !errors.IsNotLeader(err) {
		t.Errorf("ReadIndex on follower = %v, want NotLeader", err)
	}
}

func TestReadIndexSingleNodeServesImmediately(t *testing.T) {
	n := newTestNode(t, 0, 1)
	if _, err := n.Propose([]byte("x")); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	served := false
	err := n.ReadIndex(func(_ *Node, err error) {
		if err != nil {
			t.Errorf("read callback error: %v", err)
		}
		served = true
	})
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if !served {
		t.Error("single-node read not served immediately")
	}
	if n.PendingReads() != 0 {
		t.Errorf("PendingReads = %d, want 0", n.PendingReads())
	}
}

func TestReadIndexWaitsForQuorumAcks(t *testing.T) {
	n := newTestNode(t, 0, 5)
	n.currentTerm = 1
	n.becomeLeader()

	served := 0
	if err := n.ReadIndex(func(_ *Node, err error) {
		if err != nil {
			t.Errorf("read callback error: %v", err)
		}
		served++
	}); err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if served != 0 {
		t.Fatal("read served before quorum confirmation")
	}

	// One ack is not a majority of five.
	n.processReadAck(1)
	if served != 0 {
		t.Fatal("read served after a single ack")
	}

	// The same peer acking again must not count twice.
	n.processReadAck(1)
	if served != 0 {
		t.Fatal("duplicate ack counted twice")
	}

	n.processReadAck(2)
	if served != 1 {
		t.Errorf("served = %d after quorum, want 1", served)
	}
	if n.PendingReads() != 0 {
		t.Errorf("PendingReads = %d, want 0", n.PendingReads())
	}
}

func TestReadIndexWaitsForApply(t *testing.T) {
	n := newTestNode(t, 0, 3)
	n.currentTerm = 1
	n.becomeLeader()
	n.log.Append(1, EntryCommand, []byte("a"))
	n.commitIndex = 1 // applied lags behind

	served := false
	if err := n.ReadIndex(func(_ *Node, err error) { served = true }); err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	n.processReadAck(1)
	if served {
		t.Fatal("read served before last_applied caught up to the read index")
	}

	n.applyCommitted()
	if !served {
		t.Error("read not served after apply caught up")
	}
}

func TestStepDownCancelsPendingReads(t *testing.T) {
	n := newTestNode(t, 0, 3)
	n.currentTerm = 1
	n.becomeLeader()

	var got error
	calls := 0
	if err := n.ReadIndex(func(_ *Node, err error) {
		got = err
		calls++
	}); err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}

	if err := n.stepDown(2); err != nil {
		t.Fatalf("stepDown: %v", err)
	}
	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
	if !errors.IsNotLeader(got) {
		t.Errorf("cancelled read error = %v, want NotLeader", got)
	}
	if n.PendingReads() != 0 {
		t.Errorf("PendingReads = %d after step-down, want 0", n.PendingReads())
	}
}

func TestReadAcksFlowFromHeartbeatResponses(t *testing.T) {
	n := newTestNode(t, 0, 3)
	n.currentTerm = 1
	n.becomeLeader()

	served := false
	if err := n.ReadIndex(func(_ *Node, err error) { served = true }); err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}

	// A successful heartbeat response doubles as the read ack.
	err := n.handleAppendEntriesResponse(1, &protocol.AppendEntriesResponse{Term: 1, Success: true})
	if err != nil {
		t.Fatalf("handleAppendEntriesResponse: %v", err)
	}
	if !served {
		t.Error("read not confirmed by heartbeat ack quorum")
	}
}
