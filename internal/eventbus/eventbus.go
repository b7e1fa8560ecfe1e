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

// Package eventbus publishes the dispatcher's lifecycle events
// (registered, evicted, assigned, pending, completed) to an AMQP
// exchange for anyone who wants a durable audit trail. Publishing is
// fire-and-forget: a broker outage never blocks dispatch, since the
// core's authoritative state (spec.md §3) does not depend on it.
package eventbus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/streadway/amqp"
)

// Event is one lifecycle occurrence.
type Event struct {
	Kind     string    `json:"kind"`
	CommitID string    `json:"commit_id,omitempty"`
	Runner   string    `json:"runner,omitempty"`
	At       time.Time `json:"at"`
}

// Bus publishes Events to a single durable AMQP queue.
type Bus struct {
	log   *log.Logger
	url   string
	queue string
}

// New constructs a Bus targeting url's broker and queue. The connection
// is opened lazily on each publish, matching the teacher's AmqpQueue.
func New(l *log.Logger, url, queue string) *Bus {
	return &Bus{log: l, url: url, queue: queue}
}

// Notify implements internal/dispatcher.Notifier: it marshals the event
// and publishes it, logging (never returning) any failure.
func (b *Bus) Notify(kind, commitID, runnerAddr string, _ []byte) {
	event := Event{Kind: kind, CommitID: commitID, Runner: runnerAddr, At: time.Now()}
	body, err := json.Marshal(event)
	if err != nil {
		b.log.Printf("eventbus: failed to marshal event: %s", err)
		return
	}
	if err := b.publish(body); err != nil {
		b.log.Printf("eventbus: failed to publish event: %s", err)
	}
}

func (b *Bus) publish(body []byte) error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(b.queue, true, false, false, false, nil)
	if err != nil {
		return err
	}

	return ch.Publish("", q.Name, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
