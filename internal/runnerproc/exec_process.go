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
	"bytes"
	"os/exec"
)

// ProcessBackend is the default execution backend: it shells out to the
// update-to-commit hook and then to a test-runner script, capturing
// combined stdout+stderr verbatim as the result payload. Keeping both
// hooks as external processes means this package has no dependency on
// any particular VCS or test framework.
type ProcessBackend struct {
	UpdateScript string
	TestScript   string
}

// NewProcessBackend returns a ProcessBackend using the script paths
// conventionally found alongside a repository checkout.
func NewProcessBackend(updateScript, testScript string) *ProcessBackend {
	return &ProcessBackend{UpdateScript: updateScript, TestScript: testScript}
}

// Execute runs UpdateScript(repoPath, commitID) followed by
// TestScript(repoPath), returning the combined output of whichever step
// fails first, or the test script's output on success.
func (b *ProcessBackend) Execute(repoPath, commitID string) (string, error) {
	if out, err := runScript(b.UpdateScript, repoPath, commitID); err != nil {
		return out, err
	}
	return runScript(b.TestScript, repoPath)
}

// runScript runs script with args, capturing combined stdout+stderr.
// Shared with GitBackend, which replaces only the update step.
func runScript(script string, args ...string) (string, error) {
	cmd := exec.Command(script, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
