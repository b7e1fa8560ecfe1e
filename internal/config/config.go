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

// Package config overlays an optional YAML file on top of a binary's
// built-in defaults; each binary loads it after parsing its flags, since
// the file's path is itself a flag. Precedence, highest first:
// command-line flags, the YAML file, the built-in defaults below.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// File is the shape of the optional -config YAML file. Every field is
// optional; a zero value means "use the built-in default or whatever
// the flag supplied".
type File struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	HealthCheckInterval  time.Duration `yaml:"health_check_interval"`
	RedistributeInterval time.Duration `yaml:"redistribute_interval"`
	DispatchBackoff      time.Duration `yaml:"dispatch_backoff"`
	RunnerCheckInterval  time.Duration `yaml:"runner_check_interval"`

	Backend      string `yaml:"backend"`        // "process" (default), "docker", or "git"
	GitRemoteURL string `yaml:"git_remote_url"` // required when Backend is "git"

	GitHubToken string `yaml:"github_token"`
	GitHubOwner string `yaml:"github_owner"`
	GitHubRepo  string `yaml:"github_repo"`

	AMQPURL   string `yaml:"amqp_url"`
	AMQPQueue string `yaml:"amqp_queue"`
}

// Defaults returns the built-in values from spec.md §6.
func Defaults() File {
	return File{
		PollInterval:         5 * time.Second,
		HeartbeatTimeout:     10 * time.Second,
		HealthCheckInterval:  time.Second,
		RedistributeInterval: time.Second,
		DispatchBackoff:      2 * time.Second,
		RunnerCheckInterval:  7 * time.Second,
		Backend:              "process",
	}
}

// Load reads path and overlays its non-zero fields onto Defaults(). An
// empty path is not an error: it simply returns the defaults, so every
// binary can pass its -config flag value straight through whether or
// not the user set it.
func Load(path string) (File, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	body, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %s", path)
	}
	var overlay File
	if err := yaml.Unmarshal(body, &overlay); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}
	cfg.overlay(overlay)
	return cfg, nil
}

// overlay merges non-zero fields of o onto f.
func (f *File) overlay(o File) {
	if o.PollInterval != 0 {
		f.PollInterval = o.PollInterval
	}
	if o.HeartbeatTimeout != 0 {
		f.HeartbeatTimeout = o.HeartbeatTimeout
	}
	if o.HealthCheckInterval != 0 {
		f.HealthCheckInterval = o.HealthCheckInterval
	}
	if o.RedistributeInterval != 0 {
		f.RedistributeInterval = o.RedistributeInterval
	}
	if o.DispatchBackoff != 0 {
		f.DispatchBackoff = o.DispatchBackoff
	}
	if o.RunnerCheckInterval != 0 {
		f.RunnerCheckInterval = o.RunnerCheckInterval
	}
	if o.Backend != "" {
		f.Backend = o.Backend
	}
	if o.GitRemoteURL != "" {
		f.GitRemoteURL = o.GitRemoteURL
	}
	if o.GitHubToken != "" {
		f.GitHubToken = o.GitHubToken
	}
	if o.GitHubOwner != "" {
		f.GitHubOwner = o.GitHubOwner
	}
	if o.GitHubRepo != "" {
		f.GitHubRepo = o.GitHubRepo
	}
	if o.AMQPURL != "" {
		f.AMQPURL = o.AMQPURL
	}
	if o.AMQPQueue != "" {
		f.AMQPQueue = o.AMQPQueue
	}
}
