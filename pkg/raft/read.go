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
	"github.com/google/uuid"

	"flyraft/internal/errors"
)

// ReadFunc receives the outcome of a linearizable read barrier: nil once
// the read can be served, or a NotLeader error if leadership was lost
// first.
type ReadFunc func(n *Node, err error)

// readRequest is one pending ReadIndex barrier.
type readRequest struct {
	id        string
	readIndex uint64
	callback  ReadFunc
	acked     map[int32]bool
	confirmed bool
}

// ReadIndex serves a linearizable read: it binds the request to the
// current commit index, confirms leadership through a majority round of
// heartbeat acks, and fires the callback once the applied state has
// caught up to the bound index.
func (n *Node) ReadIndex(callback ReadFunc) error {
	if callback == nil {
		return errors.InvalidArg("nil read callback")
	}
	if !n.running {
		return errors.Stopped()
	}
	if n.role != Leader {
		return errors.NotLeader(n.currentLeader)
	}

	req := &readRequest{
		id:        uuid.NewString(),
		readIndex: n.commitIndex,
		callback:  callback,
		acked:     make(map[int32]bool),
	}

	if n.clusterSize() == 1 {
		req.confirmed = true
		n.pendingReads = append(n.pendingReads, req)
		n.completeReads()
		return nil
	}

	n.pendingReads = append(n.pendingReads, req)
	n.logger.Debug("read barrier opened", "read_id", req.id, "read_index", req.readIndex)

	// Confirm leadership without waiting for the heartbeat timer.
	n.replicateAll()
	return nil
}

// PendingReads returns the number of read barriers not yet completed.
func (n *Node) PendingReads() int {
	return len(n.pendingReads)
}

// processReadAck counts one peer's heartbeat ack toward every pending
// read, each peer at most once per request.
func (n *Node) processReadAck(from int32) {
	if n.role != Leader {
		return
	}
	needed := n.clusterSize() / 2
	for _, req := range n.pendingReads {
		if req.confirmed || req.acked[from] {
			continue
		}
		req.acked[from] = true
		// The leader's own ack is implicit; a majority needs acks from
		// half the cluster beyond it.
		if len(req.acked) >= needed {
			req.confirmed = true
		}
	}
	n.completeReads()
}

// completeReads fires every confirmed read whose bound index has been
// applied.
func (n *Node) completeReads() {
	if len(n.pendingReads) == 0 {
		return
	}
	remaining := n.pendingReads[:0]
	for _, req := range n.pendingReads {
		if req.confirmed && n.lastApplied >= req.readIndex {
			req.callback(n, nil)
			continue
		}
		remaining = append(remaining, req)
	}
	n.pendingReads = remaining
}

// cancelReads fails every outstanding read with NotLeader, as on
// step-down.
func (n *Node) cancelReads() {
	if len(n.pendingReads) == 0 {
		return
	}
	pending := n.pendingReads
	n.pendingReads = nil
	for _, req := range pending {
		req.callback(n, errors.NotLeader(n.currentLeader))
	}
}
