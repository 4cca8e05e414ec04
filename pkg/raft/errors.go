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
)

// ErrorCode identifies a class of consensus failure.
type ErrorCode = errors.ErrorCode

// Error codes surfaced by node operations.
const (
	CodeNotLeader  = errors.CodeNotLeader
	CodeNotFound   = errors.CodeNotFound
	CodeIOError    = errors.CodeIOError
	CodeCorruption = errors.CodeCorruption
	CodeInvalidArg = errors.CodeInvalidArg
	CodeNoMemory   = errors.CodeNoMemory
	CodeStopped    = errors.CodeStopped
)

// CodeOf returns the error code, or 0 for nil and foreign errors.
func CodeOf(err error) ErrorCode {
	return errors.CodeOf(err)
}

// IsNotLeader reports whether err says the operation needs the leader.
func IsNotLeader(err error) bool { return errors.IsNotLeader(err) }

// IsNotFound reports whether err is a missing file or record.
func IsNotFound(err error) bool { return errors.IsNotFound(err) }

// IsCorruption reports whether err reports corrupted persistent state.
func IsCorruption(err error) bool { return errors.IsCorruption(err) }

// IsIOError reports whether err is a storage i/o failure.
func IsIOError(err error) bool { return errors.IsIOError(err) }

// IsInvalidArg reports whether err is a caller mistake.
func IsInvalidArg(err error) bool { return errors.IsInvalidArg(err) }

// IsStopped reports whether err reports a stopped node.
func IsStopped(err error) bool { return errors.IsStopped(err) }
