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

package runnerproc

import (
	"github.com/codepr/narwhal-ci/internal/gitutil"
)

// GitBackend replaces the external update-to-commit hook with an
// in-process go-git clone/fetch/checkout, as SPEC_FULL.md §2 describes,
// then runs TestScript exactly as ProcessBackend does. It has no
// dependency on any particular update-hook script, only on RemoteURL
// being reachable.
type GitBackend struct {
	RemoteURL  string
	TestScript string
}

// NewGitBackend returns a GitBackend cloning/opening repoPath against
// remoteURL before every commit's test run.
func NewGitBackend(remoteURL, testScript string) *GitBackend {
	return &GitBackend{RemoteURL: remoteURL, TestScript: testScript}
}

// Execute opens (or clones) repoPath, checks out commitID via gitutil,
// and runs TestScript, mirroring ProcessBackend's update-then-test
// contract without shelling out for the update step.
func (b *GitBackend) Execute(repoPath, commitID string) (string, error) {
	repo, err := gitutil.CloneOrOpen(repoPath, b.RemoteURL)
	if err != nil {
		return "", err
	}
	if err := gitutil.CheckoutCommit(repo, commitID); err != nil {
		return "", err
	}
	return runScript(b.TestScript, repoPath)
}
