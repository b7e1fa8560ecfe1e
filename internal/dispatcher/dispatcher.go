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

// Package dispatcher implements the coordination fabric: runner
// registration, health monitoring, commit assignment and redistribution,
// and result ingestion into a result store.
package dispatcher

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codepr/narwhal-ci/internal/commit"
	"github.com/codepr/narwhal-ci/internal/wire"
)

// ResultSaver persists a result payload for a commit. internal/resultstore.Store
// satisfies this.
type ResultSaver interface {
	Put(commitID string, payload []byte) error
}

// Notifier receives the dispatcher's lifecycle events: "registered",
// "assigned", "pending", "evicted", and "completed" once a result has been
// durably persisted (only "completed" carries the payload). The AMQP
// lifecycle bus, notify.GitHubStatus and notify.Multi satisfy this; it may
// be nil.
type Notifier interface {
	Notify(event, commitID, runnerAddr string, payload []byte)
}

// Config holds the tunables from spec.md §6: intervals and backoff are
// all configurable, with the spec's defaults applied by the caller.
type Config struct {
	HealthCheckInterval  time.Duration
	RedistributeInterval time.Duration
	DispatchBackoff      time.Duration
	PingTimeout          time.Duration
	RuntestTimeout       time.Duration
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval:  time.Second,
		RedistributeInterval: time.Second,
		DispatchBackoff:      2 * time.Second,
		PingTimeout:          2 * time.Second,
		RuntestTimeout:       5 * time.Second,
	}
}

// Dispatcher owns the registry and commit state described in spec.md §3
// and implements the protocol, health monitor and redistributor of
// spec.md §4.2.
type Dispatcher struct {
	log    *log.Logger
	cfg    Config
	store  ResultSaver
	notify Notifier

	registry *Registry
	commits  *commitState

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Dispatcher. store persists results; notify may be nil
// when no commit-status or audit integration is configured.
func New(l *log.Logger, cfg Config, store ResultSaver, notify Notifier) *Dispatcher {
	return &Dispatcher{
		log:      l,
		cfg:      cfg,
		store:    store,
		notify:   notify,
		registry: NewRegistry(),
		commits:  newCommitState(),
		shutdown: make(chan struct{}),
	}
}

// Start launches the health monitor and redistributor background
// workers. Call Stop to terminate them at their next sleep boundary.
func (d *Dispatcher) Start() {
	d.wg.Add(2)
	go d.healthMonitorLoop()
	go d.redistributorLoop()
}

// Stop signals both background workers to exit and waits for them.
func (d *Dispatcher) Stop() {
	close(d.shutdown)
	d.wg.Wait()
}

// Handle processes one accepted connection: parse the single request,
// act on it, write the single reply. It is safe to call concurrently
// from many goroutines, one per connection, per spec.md §5.
func (d *Dispatcher) Handle(raw []byte) string {
	req := wire.ParseRequest(raw)
	switch req.Command {
	case "status":
		return "OK"
	case "register":
		return d.handleRegister(req.Tail, req.HasTail)
	case "dispatch":
		return d.handleDispatch(req.Tail, req.HasTail)
	case "results":
		return d.handleResults(req.Tail, req.HasTail)
	default:
		return "Unknown command"
	}
}

func (d *Dispatcher) handleRegister(tail string, hasTail bool) string {
	if !hasTail || tail == "" {
		return "Missing runner info"
	}
	parts := strings.SplitN(tail, ":", 2)
	if len(parts) != 2 {
		return fmt.Sprintf("Invalid registration: %s", tail)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Sprintf("Invalid registration: %s", tail)
	}
	desc := Descriptor{Host: parts[0], Port: port, LastSeen: time.Now()}
	if err := d.registry.Add(desc); err != nil {
		return "Runner already registered"
	}
	d.log.Printf("registered runner %s", desc.Addr())
	d.notifyAsync("registered", "", desc.Addr(), nil)
	return "OK"
}

func (d *Dispatcher) handleDispatch(tail string, hasTail bool) string {
	if !hasTail || tail == "" {
		return "No runners available"
	}
	commitID := tail
	if err := commit.Valid(commitID); err != nil {
		return fmt.Sprintf("Invalid commit: %s", err)
	}
	if d.registry.Len() == 0 {
		return "No runners available"
	}
	d.wg.Add(1)
	go d.assignWithRetry(commitID)
	return "OK"
}

func (d *Dispatcher) handleResults(tail string, hasTail bool) string {
	if !hasTail || tail == "" {
		return "Missing results data"
	}
	upload, err := wire.ParseResultUpload(tail)
	if err != nil {
		return err.Error()
	}
	if len(upload.Payload) != upload.Length {
		return "Invalid length in results"
	}
	if err := d.store.Put(upload.Commit, []byte(upload.Payload)); err != nil {
		return fmt.Sprintf("Error saving results: %s", err)
	}
	d.commits.Unassign(upload.Commit)
	d.log.Printf("results saved for %s", upload.Commit)
	d.notifyAsync("completed", upload.Commit, "", []byte(upload.Payload))
	return "OK"
}

// assignWithRetry implements spec.md §4.2's assignment procedure: try
// every registered runner in turn, and on total refusal back off and
// retry indefinitely until the dispatcher shuts down. It must never run
// on the connection-handling goroutine.
func (d *Dispatcher) assignWithRetry(commitID string) {
	defer d.wg.Done()
	for {
		if d.tryAssignOnce(commitID) {
			return
		}
		select {
		case <-d.shutdown:
			return
		case <-time.After(d.cfg.DispatchBackoff):
		}
	}
}

// tryAssignOnce snapshots the registry and offers commitID to each
// runner in registration order, recording the first acceptance. It
// returns false (and enqueues commitID as pending) if every runner
// refused or was unreachable.
func (d *Dispatcher) tryAssignOnce(commitID string) bool {
	snapshot := d.registry.Snapshot()
	if len(snapshot) == 0 {
		d.commits.Enqueue(commitID)
		return false
	}
	for _, rd := range snapshot {
		reply, err := wire.Exchange(rd.Addr(), "runtest:"+commitID, d.cfg.RuntestTimeout)
		if err != nil {
			continue
		}
		if reply == "OK" {
			d.commits.Assign(commitID, rd)
			d.notifyAsync("assigned", commitID, rd.Addr(), nil)
			return true
		}
		// BUSY or any other non-OK reply: try the next runner.
	}
	d.commits.Enqueue(commitID)
	d.notifyAsync("pending", commitID, "", nil)
	return false
}

// healthMonitorLoop pings every registered runner roughly once per
// HealthCheckInterval, evicting any that fails to answer pong.
func (d *Dispatcher) healthMonitorLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.shutdown:
			return
		case <-time.After(d.cfg.HealthCheckInterval):
		}
		for _, rd := range d.registry.Snapshot() {
			reply, err := wire.Exchange(rd.Addr(), "ping", d.cfg.PingTimeout)
			if err != nil || reply != "pong" {
				d.evict(rd)
			}
		}
	}
}

// redistributorLoop drains the pending queue roughly once per
// RedistributeInterval and re-attempts assignment for each commit.
func (d *Dispatcher) redistributorLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.shutdown:
			return
		case <-time.After(d.cfg.RedistributeInterval):
		}
		for _, commitID := range d.commits.DrainPending() {
			d.wg.Add(1)
			go d.assignWithRetry(commitID)
		}
	}
}

// evict removes rd from the registry and requeues everything it was
// executing, per spec.md §4.2's eviction rule.
func (d *Dispatcher) evict(rd Descriptor) {
	d.registry.Remove(rd)
	requeued := d.commits.EvictRunner(rd)
	if len(requeued) == 0 {
		return
	}
	d.log.Printf("evicted runner %s, requeuing %v", rd.Addr(), requeued)
	d.notifyAsync("evicted", "", rd.Addr(), nil)
}

func (d *Dispatcher) notifyAsync(event, commitID, runnerAddr string, payload []byte) {
	if d.notify == nil {
		return
	}
	go d.notify.Notify(event, commitID, runnerAddr, payload)
}
