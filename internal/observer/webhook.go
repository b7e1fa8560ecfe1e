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

package observer

import (
	"log"
	"net/http"
	"time"

	"github.com/google/go-github/v32/github"

	"github.com/codepr/narwhal-ci/internal/wire"
)

// dispatchTimeout bounds the dispatch:<commit> exchange triggered by an
// incoming webhook.
const dispatchTimeout = 5 * time.Second

// WebhookObserver is an alternative to the poll loop: a GitHub push
// webhook triggers dispatch directly instead of waiting for the next
// poll tick. It is additive — the script-based Observer above remains
// the default per spec.md's external-scripts contract.
type WebhookObserver struct {
	log            *log.Logger
	secret         []byte
	dispatcherAddr string
}

// NewWebhookObserver builds a handler that validates a GitHub webhook
// signature with secret, extracts the pushed commit's id and forwards a
// dispatch:<commit> request to dispatcherAddr.
func NewWebhookObserver(l *log.Logger, secret []byte, dispatcherAddr string) *WebhookObserver {
	return &WebhookObserver{log: l, secret: secret, dispatcherAddr: dispatcherAddr}
}

// Handler returns an http.HandlerFunc suitable for mounting at the
// repository's configured webhook path.
func (w *WebhookObserver) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		payload, err := github.ValidatePayload(r, w.secret)
		if err != nil {
			w.log.Printf("error validating webhook payload: %s", err)
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		defer r.Body.Close()

		event, err := github.ParseWebHook(github.WebHookType(r), payload)
		if err != nil {
			w.log.Printf("could not parse webhook: %s", err)
			rw.WriteHeader(http.StatusBadRequest)
			return
		}

		push, ok := event.(*github.PushEvent)
		if !ok {
			w.log.Printf("ignored event type %s", github.WebHookType(r))
			rw.WriteHeader(http.StatusOK)
			return
		}

		commitID := push.GetHeadCommit().GetID()
		reply, err := wire.Exchange(w.dispatcherAddr, "dispatch:"+commitID, dispatchTimeout)
		if err != nil || reply != "OK" {
			w.log.Printf("dispatch for %s failed: reply=%q err=%v", commitID, reply, err)
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}
}
