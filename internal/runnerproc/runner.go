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

// Package runnerproc implements the single-slot test runner: it accepts
// ping and runtest commands, executes at most one test suite at a time,
// and posts results back to the dispatcher.
package runnerproc

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/codepr/narwhal-ci/internal/wire"
)

// ExecBackend produces the textual result payload for one commit. The
// process, docker and git backends in this package implement it.
type ExecBackend interface {
	Execute(repoPath, commitID string) (payload string, err error)
}

// Config holds the runner's tunables.
type Config struct {
	RepoPath           string
	DispatcherAddr     string
	HeartbeatTimeout   time.Duration
	ResultPostTimeout  time.Duration
	WatchCheckInterval time.Duration
}

// Runner is a single-slot test executor: busy guards admission so at
// most one execution worker exists at any time, set before replying OK
// and cleared after posting results, per the runner's happens-before
// contract.
type Runner struct {
	log  *log.Logger
	cfg  Config
	exec ExecBackend

	busy           int32
	lastComm       int64 // unix nanos, accessed atomically
	shutdown       chan struct{}
	watcherStopped chan struct{}
}

// New constructs a Runner bound to repoPath and dispatcherAddr, using
// exec to produce each commit's test result payload.
func New(l *log.Logger, cfg Config, exec ExecBackend) *Runner {
	return &Runner{
		log:      l,
		cfg:      cfg,
		exec:     exec,
		shutdown: make(chan struct{}),
	}
}

// Handle processes one accepted connection's raw request and returns the
// single reply to write back.
func (r *Runner) Handle(raw []byte) string {
	req := wire.ParseRequest(raw)
	switch req.Command {
	case "ping":
		atomic.StoreInt64(&r.lastComm, time.Now().UnixNano())
		return "pong"
	case "runtest":
		return r.handleRuntest(req.Tail, req.HasTail)
	default:
		return "Unknown command"
	}
}

func (r *Runner) handleRuntest(tail string, hasTail bool) string {
	if !hasTail || tail == "" {
		return "Unknown command"
	}
	if !atomic.CompareAndSwapInt32(&r.busy, 0, 1) {
		return "BUSY"
	}
	commitID := tail
	go r.runAndReport(commitID)
	return "OK"
}

// runAndReport executes the commit's test suite and posts the result,
// clearing busy only once the post attempt (successful or not) is done.
func (r *Runner) runAndReport(commitID string) {
	defer atomic.StoreInt32(&r.busy, 0)

	payload, err := r.exec.Execute(r.cfg.RepoPath, commitID)
	if err != nil {
		payload = fmt.Sprintf("Error updating repository: %s\n%s", err, payload)
	}

	msg := fmt.Sprintf("results:%s:%d:%s", commitID, len(payload), payload)
	if _, err := wire.Exchange(r.cfg.DispatcherAddr, msg, r.cfg.ResultPostTimeout); err != nil {
		r.log.Printf("failed to post results for %s: %s", commitID, err)
	}
}

// Register announces addr (the runner's own bound host:port, discovered
// after Listen so that a requested port of 0 resolves to the kernel-
// assigned one) to the dispatcher, per spec.md §6 and the teacher's
// test_runner.py serve(), which sends this exact message right after
// binding and before accepting any connection.
func (r *Runner) Register(addr string) error {
	reply, err := wire.Exchange(r.cfg.DispatcherAddr, fmt.Sprintf("register:%s", addr), r.cfg.HeartbeatTimeout)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("registration rejected: %s", reply)
	}
	return nil
}

// WatchDispatcher runs the optional liveness watcher described in
// spec.md §4.3: if no ping has arrived within the heartbeat timeout, it
// issues status to the dispatcher and shuts down if unreachable. It
// blocks the calling goroutine until Stop is called or the dispatcher
// is found unreachable.
func (r *Runner) WatchDispatcher() {
	r.watcherStopped = make(chan struct{})
	defer close(r.watcherStopped)
	atomic.StoreInt64(&r.lastComm, time.Now().UnixNano())
	for {
		select {
		case <-r.shutdown:
			return
		case <-time.After(r.cfg.WatchCheckInterval):
		}
		last := time.Unix(0, atomic.LoadInt64(&r.lastComm))
		if time.Since(last) < r.cfg.HeartbeatTimeout {
			continue
		}
		reply, err := wire.Exchange(r.cfg.DispatcherAddr, "status", r.cfg.HeartbeatTimeout)
		if err != nil || reply != "OK" {
			r.log.Printf("dispatcher unreachable, shutting down: %v", err)
			return
		}
	}
}

// Stop signals the watcher loop to exit at its next wake-up.
func (r *Runner) Stop() {
	select {
	case <-r.shutdown:
	default:
		close(r.shutdown)
	}
}

// isBusy reports the current admission state, used by tests.
func (r *Runner) isBusy() bool {
	return atomic.LoadInt32(&r.busy) == 1
}
