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

// Package ghstatus posts a commit status to GitHub once a result has
// been durably persisted. It is best-effort: a failure here never
// affects the dispatcher's results reply.
package ghstatus

import (
	"context"
	"strings"

	"github.com/google/go-github/v32/github"
	"golang.org/x/oauth2"
)

// Notifier posts commit statuses for one owner/repo pair.
type Notifier struct {
	client *github.Client
	owner  string
	repo   string
}

// New builds a Notifier authenticated with token, targeting
// owner/repo.
func New(token, owner, repo string) *Notifier {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &Notifier{client: github.NewClient(httpClient), owner: owner, repo: repo}
}

// Post sets commitID's status, inferring success/failure from the
// payload heuristically (absence of "FAIL" and of the update-hook error
// marker counts as success).
func (n *Notifier) Post(ctx context.Context, commitID string, payload []byte) error {
	state := "success"
	if strings.Contains(string(payload), "FAIL") || strings.Contains(string(payload), "Error updating repository") {
		state = "failure"
	}
	context_ := "continuous-integration/narwhal"
	_, _, err := n.client.Repositories.CreateStatus(ctx, n.owner, n.repo, commitID, &github.RepoStatus{
		State:   &state,
		Context: &context_,
	})
	return err
}
