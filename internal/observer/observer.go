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

// Package observer polls a repository working copy for new commits and
// notifies the dispatcher, following the sentinel-file protocol in
// spec.md §4.4 and §6.
package observer

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/codepr/narwhal-ci/internal/gitutil"
	"github.com/codepr/narwhal-ci/internal/wire"
)

// SentinelName is the file the update hook leaves behind when it
// detects a new commit.
const SentinelName = ".commit_id"

// Config holds the observer's tunables.
type Config struct {
	RepoPath       string
	DispatcherAddr string
	PollScript     string
	PollInterval   time.Duration
	DialTimeout    time.Duration

	// GitRemoteURL switches the observer onto the in-process go-git
	// backend described in SPEC_FULL.md §2: instead of shelling out to
	// PollScript, it pulls RepoPath from this remote directly and
	// diffs HEAD to detect a new commit. Empty means use PollScript.
	GitRemoteURL string
}

// Observer runs the poll loop described in spec.md §4.4.
type Observer struct {
	log        *log.Logger
	cfg        Config
	shutdown   chan struct{}
	lastCommit string
}

// New constructs an Observer.
func New(l *log.Logger, cfg Config) *Observer {
	return &Observer{log: l, cfg: cfg, shutdown: make(chan struct{})}
}

// Run polls until Stop is called, blocking the caller. A cycle that
// fails (dispatcher unreachable, non-OK reply) is logged and retried on
// the next tick; the sentinel file is deleted only after a confirmed OK
// dispatch, which guarantees at-least-once delivery across dispatcher
// outages.
func (o *Observer) Run() {
	for {
		select {
		case <-o.shutdown:
			return
		case <-time.After(o.cfg.PollInterval):
		}
		cycle := o.cycle
		if o.cfg.GitRemoteURL != "" {
			cycle = o.cycleGit
		}
		if err := cycle(); err != nil {
			o.log.Printf("poll cycle failed: %s", err)
		}
	}
}

// Stop signals Run to exit at its next wake-up.
func (o *Observer) Stop() {
	close(o.shutdown)
}

func (o *Observer) cycle() error {
	if err := exec.Command(o.cfg.PollScript, o.cfg.RepoPath).Run(); err != nil {
		return fmt.Errorf("poll-for-new-commit failed: %w", err)
	}

	sentinelPath := filepath.Join(".", SentinelName)
	raw, err := ioutil.ReadFile(sentinelPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	commitID := strings.TrimSpace(string(raw))
	if err := o.dispatch(commitID); err != nil {
		return err
	}
	return os.Remove(sentinelPath)
}

// cycleGit is the in-process equivalent of cycle, using gitutil instead
// of PollScript to detect and report new commits. The first call only
// seeds lastCommit: an existing HEAD at observer startup is not itself
// a "new" commit, mirroring PollScript's sentinel-file contract where
// no sentinel is written until a commit actually changes.
func (o *Observer) cycleGit() error {
	repo, err := gitutil.CloneOrOpen(o.cfg.RepoPath, o.cfg.GitRemoteURL)
	if err != nil {
		return fmt.Errorf("opening git backend repo: %w", err)
	}
	commitID, err := gitutil.PullLatest(repo)
	if err != nil {
		return fmt.Errorf("pulling latest commit: %w", err)
	}

	if o.lastCommit == "" {
		o.lastCommit = commitID
		return nil
	}
	if commitID == o.lastCommit {
		return nil
	}

	if err := o.dispatch(commitID); err != nil {
		return err
	}
	o.lastCommit = commitID
	return nil
}

// dispatch notifies the dispatcher of commitID, shared by both the
// script-based and git-based poll cycles.
func (o *Observer) dispatch(commitID string) error {
	reply, err := wire.Exchange(o.cfg.DispatcherAddr, "status", o.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("could not contact dispatcher: %w", err)
	}
	if reply != "OK" {
		return fmt.Errorf("dispatcher returned error: %s", reply)
	}

	reply, err = wire.Exchange(o.cfg.DispatcherAddr, "dispatch:"+commitID, o.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("could not dispatch: %w", err)
	}
	if reply != "OK" {
		return fmt.Errorf("dispatcher rejected dispatch: %s", reply)
	}

	o.log.Printf("dispatched commit %s", commitID)
	return nil
}
