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
	"encoding/binary"

	"flyraft/internal/errors"
)

/*
Cluster membership changes one node at a time: a CONFIG entry encoding
(op, node_id) replicates through the ordinary log. The leader counts a
pending addition toward quorum from the moment the entry is appended, so
availability does not regress across the change; every node, leader and
followers alike, makes the change effective only when it applies the
committed CONFIG entry.

Config change command format: one op byte ('A' add, 'R' remove) followed
by the node ID as a little-endian int32.
*/

const (
	configOpAdd    = 'A'
	configOpRemove = 'R'
	configCmdSize  = 5
)

// AddNode proposes adding a node to the cluster. Leader-only; a single
// change may be pending at a time. The new node counts toward quorum
// immediately, but membership becomes effective on commit.
func (n *Node) AddNode(id int32) (uint64, error) {
	if !n.running {
		return 0, errors.Stopped()
	}
	if n.role != Leader {
		return 0, errors.NotLeader(n.currentLeader)
	}
	if id < 0 {
		return 0, errors.InvalidArg("node id must be non-negative")
	}
	if n.isMember(id) {
		return 0, errors.InvalidArg("node is already a cluster member")
	}
	if n.pendingNode != NoNode {
		return 0, errors.InvalidArg("a membership change is already in progress")
	}

	// The pending addition counts toward quorum from this point on.
	n.pendingNode = id
	n.pendingAdd = true

	index, err := n.propose(encodeConfigChange(configOpAdd, id), EntryConfig)
	if err != nil {
		n.pendingNode = NoNode
		n.pendingAdd = false
		return 0, err
	}

	// Still pending unless a single-node cluster committed it in place.
	if n.pendingNode == id {
		if _, ok := n.progress[id]; !ok {
			n.progress[id] = &peerProgress{nextIndex: n.log.LastIndex() + 1}
		}
	}
	n.logger.Info("add-node proposed", "target", id, "index", index)

	n.replicateAll()
	return index, nil
}

// RemoveNode proposes removing a node from the cluster. Leader-only; a
// single change may be pending at a time. Removing the leader itself is
// legal and triggers a step-down once the entry commits and applies.
func (n *Node) RemoveNode(id int32) (uint64, error) {
	if !n.running {
		return 0, errors.Stopped()
	}
	if n.role != Leader {
		return 0, errors.NotLeader(n.currentLeader)
	}
	if !n.isMember(id) {
		return 0, errors.InvalidArg("node is not a cluster member")
	}
	if n.pendingNode != NoNode {
		return 0, errors.InvalidArg("a membership change is already in progress")
	}

	n.pendingNode = id
	n.pendingAdd = false

	index, err := n.propose(encodeConfigChange(configOpRemove, id), EntryConfig)
	if err != nil {
		n.pendingNode = NoNode
		return 0, err
	}
	n.logger.Info("remove-node proposed", "target", id, "index", index)

	n.replicateAll()
	return index, nil
}

// IsVotingMember reports whether id participates in quorum right now,
// counting a pending addition.
func (n *Node) IsVotingMember(id int32) bool {
	if n.isMember(id) {
		return true
	}
	return n.pendingAdd && n.pendingNode == id
}

// Members returns the effective membership.
func (n *Node) Members() []int32 {
	out := make([]int32, len(n.members))
	copy(out, n.members)
	return out
}

// ConfigChangePending reports whether a membership change is in flight.
func (n *Node) ConfigChangePending() bool {
	return n.pendingNode != NoNode
}

// applyConfigChange makes a committed CONFIG entry effective: the
// membership updates and the pending marker clears. A committed removal
// of the current leader steps it down.
func (n *Node) applyConfigChange(entry *Entry) {
	op, id, ok := decodeConfigChange(entry.Command)
	if !ok {
		n.logger.Warn("malformed config entry ignored", "index", entry.Index)
		return
	}

	switch op {
	case configOpAdd:
		if !n.isMember(id) {
			n.members = append(n.members, id)
		}
		if n.role == Leader {
			if _, ok := n.progress[id]; !ok {
				n.progress[id] = &peerProgress{nextIndex: n.log.LastIndex() + 1}
			}
		}
		n.logger.Info("node added to cluster", "target", id, "members", len(n.members))

	case configOpRemove:
		for i, m := range n.members {
			if m == id {
				n.members = append(n.members[:i], n.members[i+1:]...)
				break
			}
		}
		delete(n.progress, id)
		n.logger.Info("node removed from cluster", "target", id, "members", len(n.members))
	}

	n.pendingNode = NoNode
	n.pendingAdd = false

	if op == configOpRemove && id == n.cfg.NodeID && n.role == Leader {
		// Hand the survivors the final commit index before leaving, or
		// the removal they just granted quorum for stays invisible to
		// them until a current-term entry commits.
		n.replicateAll()
		if err := n.stepDown(n.currentTerm); err != nil {
			n.logger.Error("step-down after self-removal failed", "error", err)
		}
	}
}

func encodeConfigChange(op byte, id int32) []byte {
	cmd := make([]byte, configCmdSize)
	cmd[0] = op
	binary.LittleEndian.PutUint32(cmd[1:], uint32(id))
	return cmd
}

func decodeConfigChange(cmd []byte) (byte, int32, bool) {
	if len(cmd) != configCmdSize {
		return 0, 0, false
	}
	op := cmd[0]
	if op != configOpAdd && op != configOpRemove {
		return 0, 0, false
	}
	return op, int32(binary.LittleEndian.Uint32(cmd[1:])), true
}
