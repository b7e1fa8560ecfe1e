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

// Registry is the dispatcher's set of registered test runners, identified
// by their (host, port) pair. It is the first of the two locks described
// in the design: registry-lock, acquired before commits-lock whenever
// both are needed.
package dispatcher

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// Descriptor identifies a registered runner. Identity is the (Host,
// Port) pair; LastSeen is advisory bookkeeping only.
type Descriptor struct {
	Host     string
	Port     int
	LastSeen time.Time
}

// Addr renders the descriptor as a dialable host:port string.
func (d Descriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Equal reports whether two descriptors name the same runner.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Host == o.Host && d.Port == o.Port
}

// Registry is a set of runner descriptors with no duplicate (host, port)
// pairs, mutated by registration and health eviction.
type Registry struct {
	mu      sync.Mutex
	runners []Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts d, rejecting a duplicate (host, port) pair.
func (r *Registry) Add(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runners {
		if existing.Equal(d) {
			return fmt.Errorf("runner already registered")
		}
	}
	r.runners = append(r.runners, d)
	return nil
}

// Remove deletes d from the registry, if present.
func (r *Registry) Remove(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runners {
		if existing.Equal(d) {
			r.runners = append(r.runners[:i], r.runners[i+1:]...)
			return
		}
	}
}

// Snapshot returns a consistent copy of the registry in registration
// order, safe to range over without holding the lock. Callers must take
// this snapshot before performing any network call, since long
// operations must never run while a lock is held.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, len(r.runners))
	copy(out, r.runners)
	return out
}

// Len reports the number of registered runners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runners)
}

// Touch updates d's LastSeen to now, matching on (host, port). LastSeen
// is monotonically non-decreasing per descriptor because it is only ever
// set to the current time.
func (r *Registry) Touch(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runners {
		if existing.Equal(d) {
			r.runners[i].LastSeen = time.Now()
			return
		}
	}
}
