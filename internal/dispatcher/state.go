// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

package dispatcher

import "sync"

// commitState is the dispatcher's view of every commit id it knows about:
// the assignment table and the pending queue, both guarded by a single
// lock (commits-lock) since they are mutated together by eviction and
// redistribution.
type commitState struct {
	mu          sync.Mutex
	assignments map[string]Descriptor
	pending     []string
}

func newCommitState() *commitState {
	return &commitState{assignments: make(map[string]Descriptor)}
}

// Assign records that commit is executing on d, removing it from the
// pending queue if present.
func (s *commitState) Assign(commit string, d Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[commit] = d
	s.removePendingLocked(commit)
}

// Unassign clears commit's assignment, if any. It reports whether an
// assignment existed.
func (s *commitState) Unassign(commit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.assignments[commit]
	delete(s.assignments, commit)
	return ok
}

// Enqueue appends commit to the pending queue unless it is already
// assigned or already pending.
func (s *commitState) Enqueue(commit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, assigned := s.assignments[commit]; assigned {
		return
	}
	for _, c := range s.pending {
		if c == commit {
			return
		}
	}
	s.pending = append(s.pending, commit)
}

// DrainPending atomically empties the pending queue and returns its
// former contents in order.
func (s *commitState) DrainPending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.pending
	s.pending = nil
	return drained
}

// AssignedTo reports the descriptor a commit is assigned to, if any.
func (s *commitState) AssignedTo(commit string) (Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.assignments[commit]
	return d, ok
}

// IsPending reports whether commit currently sits in the pending queue.
func (s *commitState) IsPending(commit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.pending {
		if c == commit {
			return true
		}
	}
	return false
}

// EvictRunner removes every assignment held by d and appends the
// affected commit ids to the pending queue, in the order they were
// found in the assignment table.
func (s *commitState) EvictRunner(d Descriptor) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var requeued []string
	for commit, owner := range s.assignments {
		if owner.Equal(d) {
			requeued = append(requeued, commit)
			delete(s.assignments, commit)
		}
	}
	s.pending = append(s.pending, requeued...)
	return requeued
}

// removePendingLocked removes commit from the pending queue. Caller
// must hold s.mu.
func (s *commitState) removePendingLocked(commit string) {
	for i, c := range s.pending {
		if c == commit {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}
