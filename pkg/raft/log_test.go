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
	"bytes"
	"fmt"
	"testing"
)

func checkLogInvariants(t *testing.T, l *Log) {
	t.Helper()

	if got := l.LastIndex(); got != l.BaseIndex()+l.Count() {
		t.Errorf("LastIndex() = %d, want base %d + count %d", got, l.BaseIndex(), l.Count())
	}
	prevTerm := l.BaseTerm()
	for i := l.BaseIndex() + 1; i <= l.LastIndex(); i++ {
		e := l.Get(i)
		if e == nil {
			t.Fatalf("Get(%d) = nil inside [base+1, last]", i)
		}
		if e.Index != i {
			t.Errorf("Get(%d).Index = %d", i, e.Index)
		}
		if e.Term < prevTerm {
			t.Errorf("term at %d decreased: %d < %d", i, e.Term, prevTerm)
		}
		prevTerm = e.Term
	}
}

func TestLogAppendAndGet(t *testing.T) {
	l := NewLog()

	for i := 1; i <= 5; i++ {
		idx := l.Append(1, EntryCommand, []byte(fmt.Sprintf("cmd-%d", i)))
		if idx != uint64(i) {
			t.Errorf("Append #%d returned index %d", i, idx)
		}
	}
	checkLogInvariants(t, l)

	if e := l.Get(3); e == nil || !bytes.Equal(e.Command, []byte("cmd-3")) {
		t.Errorf("Get(3) = %v, want cmd-3", e)
	}
	if e := l.Get(0); e != nil {
		t.Errorf("Get(0) = %v, want nil", e)
	}
	if e := l.Get(6); e != nil {
		t.Errorf("Get(6) = %v, want nil", e)
	}
}

func TestLogAppendCopiesCommand(t *testing.T) {
	l := NewLog()
	cmd := []byte("original")
	l.Append(1, EntryCommand, cmd)
	cmd[0] = 'X'

	if got := l.Get(1).Command; !bytes.Equal(got, []byte("original")) {
		t.Errorf("entry command mutated through caller buffer: %q", got)
	}
}

func TestLogTermAt(t *testing.T) {
	l := NewLog()
	l.Append(1, EntryCommand, []byte("a"))
	l.Append(1, EntryCommand, []byte("b"))
	l.Append(3, EntryCommand, []byte("c"))

	tests := []struct {
		index uint64
		want  uint64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 3},
		{4, 0},
	}
	for _, tt := range tests {
		if got := l.TermAt(tt.index); got != tt.want {
			t.Errorf("TermAt(%d) = %d, want %d", tt.index, got, tt.want)
		}
	}
}

func TestLogTruncateAfter(t *testing.T) {
	l := NewLog()
	for i := 0; i < 5; i++ {
		l.Append(1, EntryCommand, []byte{byte(i)})
	}

	l.TruncateAfter(3)
	checkLogInvariants(t, l)
	if l.LastIndex() != 3 {
		t.Errorf("LastIndex() = %d after TruncateAfter(3)", l.LastIndex())
	}
	if e := l.Get(4); e != nil {
		t.Errorf("Get(4) = %v after TruncateAfter(3), want nil", e)
	}

	// Idempotent at or beyond the tail.
	l.TruncateAfter(10)
	if l.LastIndex() != 3 {
		t.Errorf("LastIndex() = %d after no-op truncation", l.LastIndex())
	}

	l.TruncateAfter(0)
	if l.LastIndex() != 0 || l.Count() != 0 {
		t.Errorf("log not empty after TruncateAfter(0): last=%d count=%d", l.LastIndex(), l.Count())
	}
}

func TestLogTruncateBefore(t *testing.T) {
	l := NewLog()
	l.Append(1, EntryCommand, []byte("a"))
	l.Append(1, EntryCommand, []byte("b"))
	l.Append(2, EntryCommand, []byte("c"))
	l.Append(2, EntryCommand, []byte("d"))

	wantBaseTerm := l.TermAt(2)
	l.TruncateBefore(3)
	checkLogInvariants(t, l)

	if l.BaseIndex() != 2 {
		t.Errorf("BaseIndex() = %d, want 2", l.BaseIndex())
	}
	if l.BaseTerm() != wantBaseTerm {
		t.Errorf("BaseTerm() = %d, want %d", l.BaseTerm(), wantBaseTerm)
	}
	if e := l.Get(2); e != nil {
		t.Errorf("Get(2) = %v after TruncateBefore(3), want nil", e)
	}
	if e := l.Get(3); e == nil || !bytes.Equal(e.Command, []byte("c")) {
		t.Errorf("Get(3) = %v, want c", e)
	}
	if l.LastIndex() != 4 {
		t.Errorf("LastIndex() = %d, want 4", l.LastIndex())
	}

	// base_index never decreases.
	l.TruncateBefore(1)
	if l.BaseIndex() != 2 {
		t.Errorf("BaseIndex() = %d after backwards truncation, want 2", l.BaseIndex())
	}
}

func TestLogAppendAfterCompaction(t *testing.T) {
	l := NewLog()
	for i := 0; i < 4; i++ {
		l.Append(1, EntryCommand, []byte{byte(i)})
	}
	l.TruncateBefore(4)

	idx := l.Append(2, EntryCommand, []byte("next"))
	if idx != 5 {
		t.Errorf("Append after compaction returned %d, want 5", idx)
	}
	checkLogInvariants(t, l)
}

func TestLogReset(t *testing.T) {
	l := NewLog()
	for i := 0; i < 3; i++ {
		l.Append(1, EntryCommand, []byte{byte(i)})
	}

	l.Reset(7, 3)
	if l.Count() != 0 || l.BaseIndex() != 7 || l.BaseTerm() != 3 {
		t.Errorf("Reset left count=%d base=%d/%d", l.Count(), l.BaseIndex(), l.BaseTerm())
	}
	if l.LastIndex() != 7 || l.LastTerm() != 3 {
		t.Errorf("LastIndex/LastTerm = %d/%d, want 7/3", l.LastIndex(), l.LastTerm())
	}
}

func TestLogSlice(t *testing.T) {
	l := NewLog()
	for i := 0; i < 10; i++ {
		l.Append(1, EntryCommand, []byte{byte(i)})
	}

	entries := l.slice(4, 3)
	if len(entries) != 3 || entries[0].Index != 4 || entries[2].Index != 6 {
		t.Errorf("slice(4, 3) = %+v", entries)
	}
	if got := l.slice(11, 5); got != nil {
		t.Errorf("slice past tail = %+v, want nil", got)
	}
	if got := l.slice(8, 100); len(got) != 3 {
		t.Errorf("slice(8, 100) returned %d entries, want 3", len(got))
	}
}
