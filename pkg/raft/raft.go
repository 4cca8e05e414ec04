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

/*
Package raft implements the Raft consensus algorithm for FlyRaft.

Raft Consensus Overview:
========================

Raft replicates a totally-ordered sequence of opaque commands across an
odd-sized cluster. As long as a strict majority of peers is reachable and
alive, the cluster agrees on a single monotonically growing prefix of
committed commands and delivers that prefix to the application state
machine exactly once per index, in index order.

Key Properties:
- Leader Election: at most one leader per term, elected by majority vote
- Log Replication: the leader replicates log entries to followers
- Safety: committed entries are never lost
- Availability: the cluster stays available while a majority is alive

Embedding Model:
================

A Node is driven entirely from the outside through four hooks:

- Tick(elapsed): the wall-clock driver advances the election and
  heartbeat timers; the core never consults a time source of its own.
- Deliver(from, data): the transport hands in a received message.
- Send (Config callback): the core hands an encoded message to the
  transport, fire-and-forget.
- Apply (Config callback): committed entries flow out to the state
  machine, synchronously, during commit advancement.

A Node is exclusively owned by one driver: every mutating entry point
(Tick, Deliver, Propose, AddNode, RemoveNode, TransferLeadership,
ReadIndex) must be invoked serially. Nothing inside the core blocks or
yields; persistence happens synchronously inside the call that needs it.

Term-Based Leadership:
======================

Time is divided into terms (monotonically increasing integers). Each term
has at most one leader. Terms act as logical clocks: a node that sees a
greater term immediately reverts to follower at that term.
*/
package raft

import (
	"math/rand"
	"time"

	"flyraft/internal/compression"
	"flyraft/internal/errors"
	"flyraft/internal/logging"
	"flyraft/internal/storage"
)

// Role represents the state of a Raft node.
type Role int32

const (
	Follower Role = iota
	PreCandidate
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "FOLLOWER"
	case PreCandidate:
		return "PRE_CANDIDATE"
	case Candidate:
		return "CANDIDATE"
	case Leader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// NoNode is the node ID used when no node is designated.
const NoNode int32 = -1

// SnapshotMeta anchors a snapshot in the log and guarantees that all
// entries at or below LastIndex have been applied to the state machine.
type SnapshotMeta struct {
	LastIndex uint64 `json:"last_index"`
	LastTerm  uint64 `json:"last_term"`
}

// Storage is the durable backing of a node. Implemented by the on-disk
// store; nil on in-memory nodes.
type Storage interface {
	SaveState(currentTerm uint64, votedFor int32) error
	LoadState() (uint64, int32, error)
	AppendEntry(rec storage.LogRecord) error
	TruncateLog(afterIndex uint64) error
	RewriteLog(baseIndex, baseTerm uint64, records []storage.LogRecord) error
	IterateLog(fn storage.IterFunc) error
	GetLogInfo() (baseIndex, baseTerm, entryCount uint64, err error)
	SaveSnapshot(meta storage.SnapshotMeta, state []byte, algo compression.Algorithm) error
	LoadSnapshotMeta() (storage.SnapshotMeta, error)
	LoadSnapshot() (storage.SnapshotMeta, []byte, error)
	Sync() error
	Close() error
}

// peerProgress is the leader's view of one peer's log.
type peerProgress struct {
	nextIndex  uint64
	matchIndex uint64
}

// Node implements a single member of a Raft cluster.
type Node struct {
	cfg    Config
	logger *logging.Logger

	role          Role
	currentTerm   uint64
	votedFor      int32
	currentLeader int32
	running       bool

	log *Log

	commitIndex uint64
	lastApplied uint64

	// Leader-only per-peer progress. Never contains self; the leader's
	// own last index joins quorum counting through replicationCount.
	progress map[int32]*peerProgress

	// Election tallies, keyed by voter.
	votesGranted    map[int32]bool
	preVotesGranted map[int32]bool

	// Timers, advanced only by Tick.
	electionTimeout  time.Duration
	electionElapsed  time.Duration
	heartbeatElapsed time.Duration
	heardFromLeader  bool
	leaderContact    time.Duration
	rng              *rand.Rand

	// Membership.
	members     []int32
	pendingNode int32
	pendingAdd  bool

	// Pending linearizable reads.
	pendingReads []*readRequest

	// Leadership transfer.
	transferring   bool
	transferTarget int32

	// Latest snapshot held for peers that fall behind the anchor.
	snapMeta  SnapshotMeta
	snapState []byte
	hasSnap   bool

	store Storage
}

// New creates a Raft node. When cfg.DataDir is set, persistent state is
// recovered from it: snapshot anchor first, then term and vote, then the
// log records. Any corruption aborts with an error; the node always
// starts as a follower regardless of its pre-crash role.
func New(cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() + int64(cfg.NodeID)
	}

	n := &Node{
		cfg:             cfg,
		logger:          logging.NewLogger("raft").With("node", cfg.NodeID),
		role:            Follower,
		votedFor:        NoVote,
		currentLeader:   NoNode,
		log:             NewLog(),
		votesGranted:    make(map[int32]bool),
		preVotesGranted: make(map[int32]bool),
		pendingNode:     NoNode,
		transferTarget:  NoNode,
		rng:             rand.New(rand.NewSource(seed)),
	}

	n.members = make([]int32, cfg.NumNodes)
	for i := int32(0); i < cfg.NumNodes; i++ {
		n.members[i] = i
	}

	if cfg.DataDir != "" {
		store, err := storage.Open(cfg.DataDir, cfg.SyncWrites)
		if err != nil {
			return nil, err
		}
		n.store = store
		if err := n.recover(); err != nil {
			store.Close()
			return nil, err
		}
	}

	n.resetElectionTimer()
	return n, nil
}

// NoVote mirrors the persistent voted_for sentinel.
const NoVote = storage.NoVote

// Start makes the node responsive to ticks and messages. A single-node
// cluster promotes itself to leader immediately.
func (n *Node) Start() error {
	if n.running {
		return nil
	}
	n.running = true
	n.logger.Info("node started", "members", len(n.members), "term", n.currentTerm)

	// A single-node cluster needs no timer to expire: it elects itself
	// immediately.
	if n.clusterSize() == 1 {
		return n.startElection()
	}
	return nil
}

// Stop makes the node inert. Pending reads are cancelled.
func (n *Node) Stop() error {
	if !n.running {
		return nil
	}
	n.running = false
	n.cancelReads()
	n.abortTransfer()
	n.logger.Info("node stopped", "term", n.currentTerm)
	return nil
}

// Close stops the node and releases its storage handles.
func (n *Node) Close() error {
	n.Stop()
	if n.store != nil {
		err := n.store.Close()
		n.store = nil
		return err
	}
	return nil
}

// IsLeader reports whether this node currently leads the cluster.
func (n *Node) IsLeader() bool {
	return n.role == Leader
}

// Leader returns the current leader's node ID, or NoNode when unknown.
func (n *Node) Leader() int32 {
	if n.role == Leader {
		return n.cfg.NodeID
	}
	return n.currentLeader
}

// Term returns the current term.
func (n *Node) Term() uint64 {
	return n.currentTerm
}

// VotedFor returns the vote cast in the current term, or NoVote.
func (n *Node) VotedFor() int32 {
	return n.votedFor
}

// Role returns the node's current role.
func (n *Node) Role() Role {
	return n.role
}

// CommitIndex returns the highest committed log index.
func (n *Node) CommitIndex() uint64 {
	return n.commitIndex
}

// LastApplied returns the highest log index delivered to the state
// machine.
func (n *Node) LastApplied() uint64 {
	return n.lastApplied
}

// Log exposes the in-memory log.
func (n *Node) Log() *Log {
	return n.log
}

// ID returns this node's ID.
func (n *Node) ID() int32 {
	return n.cfg.NodeID
}

// IsCommitted reports whether the entry at index has been committed.
func (n *Node) IsCommitted(index uint64) bool {
	return index > 0 && index <= n.commitIndex
}

// PendingApply returns the number of committed entries not yet applied.
func (n *Node) PendingApply() uint64 {
	if n.commitIndex > n.lastApplied {
		return n.commitIndex - n.lastApplied
	}
	return 0
}

// Status is a point-in-time summary of the node.
type Status struct {
	NodeID      int32   `json:"node_id"`
	Role        string  `json:"role"`
	Term        uint64  `json:"term"`
	Leader      int32   `json:"leader"`
	CommitIndex uint64  `json:"commit_index"`
	LastApplied uint64  `json:"last_applied"`
	LastIndex   uint64  `json:"last_index"`
	BaseIndex   uint64  `json:"base_index"`
	Members     []int32 `json:"members"`
	PendingNode int32   `json:"pending_node"`
}

// Status returns a snapshot of the node's externally visible state.
func (n *Node) Status() Status {
	members := make([]int32, len(n.members))
	copy(members, n.members)
	return Status{
		NodeID:      n.cfg.NodeID,
		Role:        n.role.String(),
		Term:        n.currentTerm,
		Leader:      n.Leader(),
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LastIndex:   n.log.LastIndex(),
		BaseIndex:   n.log.BaseIndex(),
		Members:     members,
		PendingNode: n.pendingNode,
	}
}

// Propose appends a command to the log and begins replicating it. Only
// the leader accepts proposals; the returned index is where the command
// will commit if this leader's term survives.
func (n *Node) Propose(command []byte) (uint64, error) {
	return n.propose(command, EntryCommand)
}

func (n *Node) propose(command []byte, kind EntryKind) (uint64, error) {
	if !n.running {
		return 0, errors.Stopped()
	}
	if n.role != Leader {
		return 0, errors.NotLeader(n.currentLeader)
	}
	if len(command) > n.cfg.MaxCommandSize {
		return 0, errors.InvalidArg("command exceeds max_command_size")
	}

	index := n.log.Append(n.currentTerm, kind, command)
	if n.store != nil {
		rec := storage.LogRecord{Term: n.currentTerm, Index: index, Kind: uint32(kind), Command: command}
		if err := n.store.AppendEntry(rec); err != nil {
			// The reply must not promise durability the disk refused.
			n.log.TruncateAfter(index - 1)
			return 0, err
		}
	}

	if n.clusterSize() == 1 {
		n.commitIndex = index
		n.applyCommitted()
	} else {
		n.replicateAll()
	}
	return index, nil
}

// ProposeBatch atomically appends a group of commands. Either every
// command is appended and persisted, or the log is left exactly as it
// was before the call.
func (n *Node) ProposeBatch(commands [][]byte) (uint64, error) {
	if !n.running {
		return 0, errors.Stopped()
	}
	if n.role != Leader {
		return 0, errors.NotLeader(n.currentLeader)
	}
	if len(commands) == 0 {
		return 0, errors.InvalidArg("empty batch")
	}
	for _, cmd := range commands {
		if len(cmd) > n.cfg.MaxCommandSize {
			return 0, errors.InvalidArg("command exceeds max_command_size")
		}
	}

	firstIndex := uint64(0)
	for _, cmd := range commands {
		index := n.log.Append(n.currentTerm, EntryCommand, cmd)
		if firstIndex == 0 {
			firstIndex = index
		}
		if n.store != nil {
			rec := storage.LogRecord{Term: n.currentTerm, Index: index, Kind: uint32(EntryCommand), Command: cmd}
			if err := n.store.AppendEntry(rec); err != nil {
				n.log.TruncateAfter(firstIndex - 1)
				if terr := n.store.TruncateLog(firstIndex - 1); terr != nil {
					n.logger.Error("batch rollback truncation failed", "error", terr)
				}
				return 0, err
			}
		}
	}

	if n.clusterSize() == 1 {
		n.commitIndex = n.log.LastIndex()
		n.applyCommitted()
	} else {
		n.replicateAll()
	}
	return firstIndex, nil
}

// applyCommitted delivers newly committed entries to the state machine in
// index order, exactly once per index.
func (n *Node) applyCommitted() {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		entry := n.log.Get(n.lastApplied)
		if entry == nil {
			// Covered by a snapshot installed mid-advance.
			continue
		}
		if entry.Kind == EntryConfig {
			n.applyConfigChange(entry)
		}
		if n.cfg.Apply != nil {
			n.cfg.Apply(n, *entry)
		}
	}
	n.completeReads()
	n.maybeCompact()
}

// recover rebuilds in-memory state from the data directory.
func (n *Node) recover() error {
	if storage.SnapshotExists(n.cfg.DataDir) {
		meta, state, err := n.store.LoadSnapshot()
		if err != nil {
			return err
		}
		n.log.Reset(meta.LastIndex, meta.LastTerm)
		n.commitIndex = meta.LastIndex
		n.lastApplied = meta.LastIndex
		n.snapMeta = SnapshotMeta{LastIndex: meta.LastIndex, LastTerm: meta.LastTerm}
		n.snapState = state
		n.hasSnap = true
		if n.cfg.RestoreSnapshot != nil {
			n.cfg.RestoreSnapshot(n, n.snapMeta, state)
		}
	}

	term, votedFor, err := n.store.LoadState()
	if err == nil {
		n.currentTerm = term
		n.votedFor = votedFor
	} else if !errors.IsNotFound(err) {
		return err
	}

	// Validates the log header's magic and version before replay.
	if _, _, _, err := n.store.GetLogInfo(); err != nil {
		return err
	}

	base := n.log.BaseIndex()
	err = n.store.IterateLog(func(rec storage.LogRecord) error {
		if rec.Index <= base {
			// Already covered by the snapshot anchor.
			return nil
		}
		expected := n.log.LastIndex() + 1
		if rec.Index != expected {
			return errors.Corruption("log record index out of sequence")
		}
		n.log.Append(rec.Term, EntryKind(rec.Kind), rec.Command)
		return nil
	})
	if err != nil {
		return err
	}

	n.logger.Info("recovered persistent state",
		"term", n.currentTerm,
		"voted_for", n.votedFor,
		"base_index", n.log.BaseIndex(),
		"last_index", n.log.LastIndex())
	return nil
}
