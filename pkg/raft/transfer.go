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

// TransferLeadership hands leadership to target. With target NoNode the
// most caught-up peer is chosen. The TimeoutNow order is only sent once
// the target's match index has reached the leader's last index; until
// then replication keeps draining toward it.
func (n *Node) TransferLeadership(target int32) error {
	if !n.running {
		return errors.Stopped()
	}
	if n.role != Leader {
		return errors.NotLeader(n.currentLeader)
	}
	if target == n.cfg.NodeID {
		return errors.InvalidArg("cannot transfer leadership to self")
	}

	if target == NoNode {
		best := uint64(0)
		for _, peer := range n.otherMembers() {
			if pr, ok := n.progress[peer]; ok && (target == NoNode || pr.matchIndex > best) {
				best = pr.matchIndex
				target = peer
			}
		}
		if target == NoNode {
			return errors.InvalidArg("no follower to transfer leadership to")
		}
	} else if !n.isMember(target) {
		return errors.InvalidArg("transfer target is not a cluster member")
	}

	n.transferring = true
	n.transferTarget = target
	n.logger.Info("leadership transfer started", "target", target)

	n.checkTransferProgress()
	return nil
}

// AbortTransfer cancels an in-progress leadership transfer.
func (n *Node) AbortTransfer() {
	n.abortTransfer()
}

// TransferInProgress reports whether a leadership transfer is pending.
func (n *Node) TransferInProgress() bool {
	return n.transferring
}

// TransferTarget returns the transfer target, or NoNode.
func (n *Node) TransferTarget() int32 {
	if !n.transferring {
		return NoNode
	}
	return n.transferTarget
}

func (n *Node) abortTransfer() {
	n.transferring = false
	n.transferTarget = NoNode
}

// checkTransferProgress sends TimeoutNow once the target has caught up.
func (n *Node) checkTransferProgress() {
	if !n.transferring {
		return
	}
	if n.role != Leader {
		n.abortTransfer()
		return
	}
	pr, ok := n.progress[n.transferTarget]
	if !ok {
		n.abortTransfer()
		return
	}
	if pr.matchIndex < n.log.LastIndex() {
		return
	}

	n.send(n.transferTarget, &protocol.TimeoutNow{
		Term:     n.currentTerm,
		LeaderID: n.cfg.NodeID,
	})
	n.logger.Info("transfer target caught up, sent timeout-now", "target", n.transferTarget)
	n.abortTransfer()
}

// handleTimeoutNow starts an immediate election on the transfer target,
// skipping both the election timer and the PreVote phase.
func (n *Node) handleTimeoutNow(req *protocol.TimeoutNow) error {
	if req.Term < n.currentTerm {
		return nil
	}
	if req.Term > n.currentTerm {
		if err := n.stepDown(req.Term); err != nil {
			return err
		}
	}
	if n.role == Leader {
		return nil
	}
	n.logger.Info("received timeout-now, starting election", "from", req.LeaderID)
	return n.startElection()
}

func (n *Node) isMember(id int32) bool {
	for _, m := range n.members {
		if m == id {
			return true
		}
	}
	return false
}
