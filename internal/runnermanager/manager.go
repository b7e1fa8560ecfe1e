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

// Package runnermanager supervises a pool of runner processes, spawning
// fresh ones to keep a target count alive, per spec.md §4.5.
package runnermanager

import (
	"log"
	"os/exec"
	"sync"
	"time"
)

// Config holds the manager's tunables.
type Config struct {
	RunnerBin      string
	RepoPath       string
	DispatcherAddr string
	DesiredCount   int
	CheckInterval  time.Duration
}

// runnerProc tracks one spawned child and whether it has exited, set by
// the goroutine that reaps it.
type runnerProc struct {
	cmd    *exec.Cmd
	exited bool
}

// Manager spawns cfg.RunnerBin child processes to maintain DesiredCount
// live runners, pruning handles whose child has already exited.
type Manager struct {
	log *log.Logger
	cfg Config

	mu       sync.Mutex
	procs    []*runnerProc
	shutdown chan struct{}
}

// New constructs a Manager.
func New(l *log.Logger, cfg Config) *Manager {
	return &Manager{log: l, cfg: cfg, shutdown: make(chan struct{})}
}

// Run maintains the target pool size until Stop is called, blocking the
// caller. On return every spawned child has been signaled to terminate.
func (m *Manager) Run() {
	for {
		m.reconcile()
		select {
		case <-m.shutdown:
			m.terminateAll()
			return
		case <-time.After(m.cfg.CheckInterval):
		}
	}
}

// Stop signals Run, which is waiting between checks, to terminate every
// child and return.
func (m *Manager) Stop() {
	close(m.shutdown)
}

// Count reports the number of runner processes currently believed
// alive.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}

func (m *Manager) reconcile() {
	m.mu.Lock()
	alive := m.procs[:0]
	for _, p := range m.procs {
		if !p.exited {
			alive = append(alive, p)
		}
	}
	m.procs = alive
	need := m.cfg.DesiredCount - len(m.procs)
	m.mu.Unlock()

	for i := 0; i < need; i++ {
		proc, err := m.spawn()
		if err != nil {
			m.log.Printf("failed to spawn runner: %s", err)
			continue
		}
		m.mu.Lock()
		m.procs = append(m.procs, proc)
		count := len(m.procs)
		m.mu.Unlock()
		m.log.Printf("spawned new test runner, total active runners: %d", count)
	}
}

func (m *Manager) spawn() (*runnerProc, error) {
	cmd := exec.Command(m.cfg.RunnerBin,
		m.cfg.RepoPath,
		"--host", "localhost",
		"--port", "0",
		"--dispatcher-server", m.cfg.DispatcherAddr,
	)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	proc := &runnerProc{cmd: cmd}
	go m.reap(proc)
	return proc, nil
}

// reap waits for a child to exit and marks it so the next reconcile
// prunes it, without racing reconcile's read of exited.
func (m *Manager) reap(p *runnerProc) {
	p.cmd.Wait()
	m.mu.Lock()
	p.exited = true
	m.mu.Unlock()
}

func (m *Manager) terminateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.procs {
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
	}
}
