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

// Package notify fans a single dispatcher.Notifier call out to any
// number of sinks (the AMQP audit bus, the GitHub commit-status
// poster, ...), and adapts ghstatus.Notifier's commit-status-only
// Post into the dispatcher's broader event stream.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/codepr/narwhal-ci/internal/ghstatus"
)

// Multi fans out to every non-nil sink in order, on the caller's
// goroutine: a slow sink (eventbus.Bus.Notify dials the broker, GitHub
// goes through GitHubStatus below) delays the sinks after it, and a
// panicking sink is not recovered. The dispatcher calls Notify on a
// goroutine of its own, so neither blocks dispatch.
type Multi struct {
	sinks []Sink
}

// Sink is anything satisfying dispatcher.Notifier without importing
// the dispatcher package back (it would create an import cycle, since
// ghstatus and eventbus are both leaves).
type Sink interface {
	Notify(event, commitID, runnerAddr string, payload []byte)
}

// NewMulti builds a fan-out notifier from any number of sinks. Nil
// sinks are dropped, so callers can pass an optionally-configured
// notifier straight through.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) Notify(event, commitID, runnerAddr string, payload []byte) {
	for _, s := range m.sinks {
		s.Notify(event, commitID, runnerAddr, payload)
	}
}

// GitHubStatus adapts a ghstatus.Notifier (which only knows how to
// post a final commit status) to the dispatcher.Notifier shape,
// posting only on the "completed" event and ignoring the rest.
type GitHubStatus struct {
	log     *log.Logger
	inner   *ghstatus.Notifier
	timeout time.Duration
}

// NewGitHubStatus wraps inner so it can be passed to NewMulti
// alongside the AMQP bus.
func NewGitHubStatus(l *log.Logger, inner *ghstatus.Notifier, timeout time.Duration) *GitHubStatus {
	return &GitHubStatus{log: l, inner: inner, timeout: timeout}
}

func (g *GitHubStatus) Notify(event, commitID, runnerAddr string, payload []byte) {
	if event != "completed" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.inner.Post(ctx, commitID, payload); err != nil {
		g.log.Printf("notify: github status post failed for %s: %s", commitID, err)
	}
}
