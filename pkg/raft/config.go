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

	"flyraft/internal/compression"
	"flyraft/internal/errors"
)

// Defaults for the tunable parameters.
const (
	DefaultElectionTimeoutMin     = 150 * time.Millisecond
	DefaultElectionTimeoutMax     = 300 * time.Millisecond
	DefaultHeartbeatInterval      = 50 * time.Millisecond
	DefaultMaxEntriesPerAppend    = 100
	DefaultLogCompactionThreshold = 10000
	DefaultMaxCommandSize         = 1024 * 1024
	DefaultSnapshotCompression    = "snappy"
)

// ApplyFunc delivers a committed entry to the application state machine.
// It is invoked synchronously during commit advancement, exactly once per
// index in increasing order, and must not mutate the node.
type ApplyFunc func(n *Node, entry Entry)

// SendFunc transmits an encoded message to a peer. Fire-and-forget: the
// transport may drop or reorder messages and the core tolerates both.
type SendFunc func(n *Node, peer int32, data []byte)

// SnapshotFunc produces a serialised snapshot of the application state at
// the node's last applied index.
type SnapshotFunc func(n *Node) ([]byte, error)

// RestoreFunc hands a snapshot received from the leader to the
// application state machine.
type RestoreFunc func(n *Node, meta SnapshotMeta, state []byte)

// LeadershipFunc is notified when this node gains or loses leadership.
type LeadershipFunc func(n *Node, isLeader bool, term uint64)

// Config holds configuration for a Raft node.
type Config struct {
	NodeID   int32 `json:"node_id"`
	NumNodes int32 `json:"num_nodes"`

	// DataDir enables persistence when non-empty; absent means the node
	// runs in-memory only.
	DataDir    string `json:"data_dir"`
	SyncWrites bool   `json:"sync_writes"`

	ElectionTimeoutMin time.Duration `json:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `json:"election_timeout_max"`
	HeartbeatInterval  time.Duration `json:"heartbeat_interval"`

	MaxEntriesPerAppend    int    `json:"max_entries_per_append"`
	LogCompactionThreshold uint64 `json:"log_compaction_threshold"`
	MaxCommandSize         int    `json:"max_command_size"`

	// SnapshotCompression selects the snapshot payload codec:
	// "none", "snappy", "gzip", or "lz4".
	SnapshotCompression string `json:"snapshot_compression"`

	// Seed fixes the election timer randomisation; zero derives a seed
	// from the clock at construction.
	Seed int64 `json:"seed"`

	Apply              ApplyFunc      `json:"-"`
	Send               SendFunc       `json:"-"`
	SnapshotState      SnapshotFunc   `json:"-"`
	RestoreSnapshot    RestoreFunc    `json:"-"`
	OnLeadershipChange LeadershipFunc `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults for the given
// identity and cluster size.
func DefaultConfig(nodeID, numNodes int32) Config {
	return Config{
		NodeID:                 nodeID,
		NumNodes:               numNodes,
		ElectionTimeoutMin:     DefaultElectionTimeoutMin,
		ElectionTimeoutMax:     DefaultElectionTimeoutMax,
		HeartbeatInterval:      DefaultHeartbeatInterval,
		MaxEntriesPerAppend:    DefaultMaxEntriesPerAppend,
		LogCompactionThreshold: DefaultLogCompactionThreshold,
		MaxCommandSize:         DefaultMaxCommandSize,
		SnapshotCompression:    DefaultSnapshotCompression,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.NumNodes < 1 {
		return errors.InvalidArg("num_nodes must be at least 1")
	}
	if c.NodeID < 0 || c.NodeID >= c.NumNodes {
		return errors.InvalidArg("node_id out of range")
	}
	if c.ElectionTimeoutMin <= 0 || c.ElectionTimeoutMax < c.ElectionTimeoutMin {
		return errors.InvalidArg("election timeout range is empty")
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ElectionTimeoutMin {
		return errors.InvalidArg("heartbeat interval must be below the election timeout minimum")
	}
	if c.MaxEntriesPerAppend < 1 {
		return errors.InvalidArg("max_entries_per_append must be at least 1")
	}
	if c.MaxCommandSize < 1 {
		return errors.InvalidArg("max_command_size must be at least 1")
	}
	if _, err := compression.ParseAlgorithm(c.SnapshotCompression); err != nil {
		return errors.InvalidArg(err.Error())
	}
	return nil
}

func (c *Config) compressionAlgorithm() compression.Algorithm {
	algo, err := compression.ParseAlgorithm(c.SnapshotCompression)
	if err != nil {
		return compression.AlgorithmNone
	}
	return algo
}
