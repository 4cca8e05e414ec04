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
	"time"

	"flyraft/internal/errors"
)

// Tick advances the node's timers by elapsed wall-clock time. The caller
// is responsible for feeding ticks at a granularity finer than the
// heartbeat interval; the core consults no time source of its own.
//
// Expiry of the election timer starts a PreVote round (or a direct
// election in a single-node cluster); expiry of the heartbeat timer makes
// a leader replicate to every peer.
func (n *Node) Tick(elapsed time.Duration) error {
	if !n.running {
		return errors.Stopped()
	}

	n.leaderContact += elapsed

	if n.role == Leader {
		n.heartbeatElapsed += elapsed
		if n.heartbeatElapsed >= n.cfg.HeartbeatInterval {
			n.heartbeatElapsed = 0
			n.replicateAll()
		}
		return nil
	}

	n.electionElapsed += elapsed
	if n.electionElapsed >= n.electionTimeout {
		return n.onElectionTimeout()
	}
	return nil
}

// onElectionTimeout enters the PreVote phase. The real election, and
// its term increment, only start once a hypothetical majority exists.
func (n *Node) onElectionTimeout() error {
	// A node removed from the membership holds no seat to campaign for.
	if !n.isMember(n.cfg.NodeID) {
		n.resetElectionTimer()
		return nil
	}
	if n.clusterSize() == 1 {
		return n.startElection()
	}
	return n.startPreVote()
}

// resetElectionTimer re-arms the election timer with a fresh random
// timeout from the configured range.
func (n *Node) resetElectionTimer() {
	n.electionElapsed = 0
	n.electionTimeout = n.randomElectionTimeout()
}

// randomElectionTimeout picks a timeout uniformly from the configured
// [min, max] range.
func (n *Node) randomElectionTimeout() time.Duration {
	spread := n.cfg.ElectionTimeoutMax - n.cfg.ElectionTimeoutMin
	if spread <= 0 {
		return n.cfg.ElectionTimeoutMin
	}
	return n.cfg.ElectionTimeoutMin + time.Duration(n.rng.Int63n(int64(spread)+1))
}

// noteLeaderContact records that a live leader was heard from, for the
// PreVote disruption check.
func (n *Node) noteLeaderContact() {
	n.heardFromLeader = true
	n.leaderContact = 0
}

// leaderRecentlyHeard reports whether a leader was heard from within one
// election timeout.
func (n *Node) leaderRecentlyHeard() bool {
	return n.heardFromLeader && n.leaderContact < n.electionTimeout
}
