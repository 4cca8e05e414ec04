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

// Deliver routes one message received from a peer into the matching
// handler and transmits the handler's reply, if any. Malformed messages
// surface as InvalidArg; a reply is withheld whenever the handler could
// not persist the state the reply depends on.
func (n *Node) Deliver(from int32, data []byte) error {
	if !n.running {
		return errors.Stopped()
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		return errors.InvalidArg(err.Error()).WithCause(err)
	}

	switch m := msg.(type) {
	case *protocol.RequestVote:
		resp, err := n.handleRequestVote(m)
		if err != nil {
			return err
		}
		n.send(from, resp)
		return nil

	case *protocol.RequestVoteResponse:
		return n.handleRequestVoteResponse(from, m)

	case *protocol.AppendEntries:
		resp, err := n.handleAppendEntries(m)
		if err != nil {
			return err
		}
		n.send(from, resp)
		return nil

	case *protocol.AppendEntriesResponse:
		return n.handleAppendEntriesResponse(from, m)

	case *protocol.InstallSnapshot:
		resp, err := n.handleInstallSnapshot(m)
		if err != nil {
			return err
		}
		n.send(from, resp)
		return nil

	case *protocol.InstallSnapshotResponse:
		return n.handleInstallSnapshotResponse(from, m)

	case *protocol.PreVote:
		resp, err := n.handlePreVote(m)
		if err != nil {
			return err
		}
		n.send(from, resp)
		return nil

	case *protocol.PreVoteResponse:
		return n.handlePreVoteResponse(from, m)

	case *protocol.TimeoutNow:
		return n.handleTimeoutNow(m)

	default:
		return errors.InvalidArg("unhandled message type")
	}
}
