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

package protocol

// Entry is one replicated log entry as carried by AppendEntries.
type Entry struct {
	Term    uint64
	Kind    uint8
	Command []byte
}

// RequestVote solicits a vote for candidate CandidateID at Term.
type RequestVote struct {
	Term         uint64
	CandidateID  int32
	LastLogIndex uint64
	LastLogTerm  uint64
}

func (*RequestVote) Type() MessageType { return MsgRequestVote }

func (m *RequestVote) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendU32(buf, uint32(m.CandidateID))
	buf = appendU64(buf, m.LastLogIndex)
	buf = appendU64(buf, m.LastLogTerm)
	return buf
}

func (m *RequestVote) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.CandidateID = int32(r.u32())
	m.LastLogIndex = r.u64()
	m.LastLogTerm = r.u64()
	return r.err
}

// RequestVoteResponse answers a RequestVote.
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

func (*RequestVoteResponse) Type() MessageType { return MsgRequestVoteResponse }

func (m *RequestVoteResponse) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendBool(buf, m.VoteGranted)
	return buf
}

func (m *RequestVoteResponse) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.VoteGranted = r.bool()
	return r.err
}

// AppendEntries replicates log entries and doubles as the heartbeat when
// Entries is empty.
type AppendEntries struct {
	Term         uint64
	LeaderID     int32
	PrevLogIndex uint64
	PrevLogTerm  uint64
	LeaderCommit uint64
	Entries      []Entry
}

func (*AppendEntries) Type() MessageType { return MsgAppendEntries }

func (m *AppendEntries) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendU32(buf, uint32(m.LeaderID))
	buf = appendU64(buf, m.PrevLogIndex)
	buf = appendU64(buf, m.PrevLogTerm)
	buf = appendU64(buf, m.LeaderCommit)
	buf = appendU32(buf, uint32(len(m.Entries)))
	for _, e := range m.Entries {
		buf = appendU64(buf, e.Term)
		buf = appendU8(buf, e.Kind)
		buf = appendU32(buf, uint32(len(e.Command)))
		buf = append(buf, e.Command...)
	}
	return buf
}

func (m *AppendEntries) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.LeaderID = int32(r.u32())
	m.PrevLogIndex = r.u64()
	m.PrevLogTerm = r.u64()
	m.LeaderCommit = r.u64()
	count := r.u32()
	if r.err != nil {
		return r.err
	}
	m.Entries = make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e Entry
		e.Term = r.u64()
		e.Kind = r.u8()
		e.Command = r.bytes(r.u32())
		if r.err != nil {
			return r.err
		}
		m.Entries = append(m.Entries, e)
	}
	return r.err
}

// AppendEntriesResponse answers an AppendEntries. MatchIndex reports the
// follower's last log index; on failure it serves as a back-off hint.
type AppendEntriesResponse struct {
	Term       uint64
	Success    bool
	MatchIndex uint64
}

func (*AppendEntriesResponse) Type() MessageType { return MsgAppendEntriesResponse }

func (m *AppendEntriesResponse) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendBool(buf, m.Success)
	buf = appendU64(buf, m.MatchIndex)
	return buf
}

func (m *AppendEntriesResponse) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.Success = r.bool()
	m.MatchIndex = r.u64()
	return r.err
}

// InstallSnapshot transfers a complete snapshot to a follower whose log
// has fallen behind the leader's compaction anchor. Installation is
// atomic; there is no chunking.
type InstallSnapshot struct {
	Term      uint64
	LeaderID  int32
	LastIndex uint64
	LastTerm  uint64
	State     []byte
}

func (*InstallSnapshot) Type() MessageType { return MsgInstallSnapshot }

func (m *InstallSnapshot) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendU32(buf, uint32(m.LeaderID))
	buf = appendU64(buf, m.LastIndex)
	buf = appendU64(buf, m.LastTerm)
	buf = appendU32(buf, uint32(len(m.State)))
	return append(buf, m.State...)
}

func (m *InstallSnapshot) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.LeaderID = int32(r.u32())
	m.LastIndex = r.u64()
	m.LastTerm = r.u64()
	m.State = r.bytes(r.u32())
	return r.err
}

// InstallSnapshotResponse answers an InstallSnapshot.
type InstallSnapshotResponse struct {
	Term    uint64
	Success bool
}

func (*InstallSnapshotResponse) Type() MessageType { return MsgInstallSnapshotResponse }

func (m *InstallSnapshotResponse) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendBool(buf, m.Success)
	return buf
}

func (m *InstallSnapshotResponse) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.Success = r.bool()
	return r.err
}

// PreVote probes whether a real election at Term would succeed, without
// disturbing any responder's persistent state.
type PreVote struct {
	Term         uint64
	CandidateID  int32
	LastLogIndex uint64
	LastLogTerm  uint64
}

func (*PreVote) Type() MessageType { return MsgPreVote }

func (m *PreVote) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendU32(buf, uint32(m.CandidateID))
	buf = appendU64(buf, m.LastLogIndex)
	buf = appendU64(buf, m.LastLogTerm)
	return buf
}

func (m *PreVote) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.CandidateID = int32(r.u32())
	m.LastLogIndex = r.u64()
	m.LastLogTerm = r.u64()
	return r.err
}

// PreVoteResponse answers a PreVote.
type PreVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

func (*PreVoteResponse) Type() MessageType { return MsgPreVoteResponse }

func (m *PreVoteResponse) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendBool(buf, m.VoteGranted)
	return buf
}

func (m *PreVoteResponse) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.VoteGranted = r.bool()
	return r.err
}

// TimeoutNow orders the target of a leadership transfer to start an
// election immediately.
type TimeoutNow struct {
	Term     uint64
	LeaderID int32
}

func (*TimeoutNow) Type() MessageType { return MsgTimeoutNow }

func (m *TimeoutNow) appendPayload(buf []byte) []byte {
	buf = appendU64(buf, m.Term)
	buf = appendU32(buf, uint32(m.LeaderID))
	return buf
}

func (m *TimeoutNow) decodePayload(r *reader) error {
	m.Term = r.u64()
	m.LeaderID = int32(r.u32())
	return r.err
}
