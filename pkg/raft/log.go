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

// EntryKind distinguishes replicated entry payloads.
type EntryKind uint8

const (
	EntryCommand EntryKind = 0
	EntryConfig  EntryKind = 1
	EntryNoop    EntryKind = 2
)

func (k EntryKind) String() string {
	switch k {
	case EntryCommand:
		return "COMMAND"
	case EntryConfig:
		return "CONFIG"
	case EntryNoop:
		return "NOOP"
	default:
		return "UNKNOWN"
	}
}

// Entry is a single replicated log entry. Index is 1-based and strictly
// monotonic in append order.
type Entry struct {
	Term    uint64    `json:"term"`
	Index   uint64    `json:"index"`
	Kind    EntryKind `json:"kind"`
	Command []byte    `json:"command"`
}

// Log is the in-memory replicated log. Entries are contiguous starting at
// baseIndex+1; the (baseIndex, baseTerm) anchor records the last entry
// covered by the most recent snapshot.
type Log struct {
	entries   []Entry
	baseIndex uint64
	baseTerm  uint64
}

// NewLog creates an empty log anchored at index 0.
func NewLog() *Log {
	return &Log{}
}

// Append extends the tail with one entry and returns its index. The
// command bytes are copied; the caller retains its buffer.
func (l *Log) Append(term uint64, kind EntryKind, command []byte) uint64 {
	index := l.baseIndex + uint64(len(l.entries)) + 1
	var cmd []byte
	if len(command) > 0 {
		cmd = make([]byte, len(command))
		copy(cmd, command)
	}
	l.entries = append(l.entries, Entry{Term: term, Index: index, Kind: kind, Command: cmd})
	return index
}

// Get returns the entry at index, or nil when index is at or below the
// base anchor or beyond the tail.
func (l *Log) Get(index uint64) *Entry {
	if index <= l.baseIndex {
		return nil
	}
	offset := index - l.baseIndex - 1
	if offset >= uint64(len(l.entries)) {
		return nil
	}
	return &l.entries[offset]
}

// TermAt returns the term of the entry at index, the base term for the
// anchor itself, and 0 when no such entry exists.
func (l *Log) TermAt(index uint64) uint64 {
	if index == 0 {
		return 0
	}
	if index == l.baseIndex {
		return l.baseTerm
	}
	if e := l.Get(index); e != nil {
		return e.Term
	}
	return 0
}

// LastIndex returns the index of the last entry, or the base index when
// the log is empty.
func (l *Log) LastIndex() uint64 {
	return l.baseIndex + uint64(len(l.entries))
}

// LastTerm returns the term of the last entry, or the base term when the
// log is empty.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return l.baseTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// Count returns the number of entries held in memory.
func (l *Log) Count() uint64 {
	return uint64(len(l.entries))
}

// BaseIndex returns the snapshot anchor index.
func (l *Log) BaseIndex() uint64 {
	return l.baseIndex
}

// BaseTerm returns the snapshot anchor term.
func (l *Log) BaseTerm() uint64 {
	return l.baseTerm
}

// TruncateAfter deletes all entries with index > after. Idempotent when
// after is at or beyond the tail.
func (l *Log) TruncateAfter(after uint64) {
	if after >= l.LastIndex() {
		return
	}
	if after <= l.baseIndex {
		l.entries = l.entries[:0]
		return
	}
	l.entries = l.entries[:after-l.baseIndex]
}

// TruncateBefore removes entries with index < before, advancing the base
// anchor to before-1. The caller must not compact past unapplied entries.
func (l *Log) TruncateBefore(before uint64) {
	if before <= l.baseIndex+1 {
		return
	}
	last := l.LastIndex()
	if before > last+1 {
		before = last + 1
	}

	newBaseTerm := l.TermAt(before - 1)
	remove := before - l.baseIndex - 1
	remaining := uint64(len(l.entries)) - remove

	copy(l.entries, l.entries[remove:])
	l.entries = l.entries[:remaining]
	l.baseIndex = before - 1
	l.baseTerm = newBaseTerm
}

// Reset clears the log and re-anchors it, as after a snapshot install.
func (l *Log) Reset(baseIndex, baseTerm uint64) {
	l.entries = l.entries[:0]
	l.baseIndex = baseIndex
	l.baseTerm = baseTerm
}

// slice returns up to max entries starting at from, or nil when from is
// past the tail.
func (l *Log) slice(from uint64, max int) []Entry {
	if from <= l.baseIndex || from > l.LastIndex() {
		return nil
	}
	offset := from - l.baseIndex - 1
	end := offset + uint64(max)
	if end > uint64(len(l.entries)) {
		end = uint64(len(l.entries))
	}
	return l.entries[offset:end]
}
