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

// Package ciconfig reads the narwhal.yml job descriptor a repository
// carries at its root, used by the docker execution backend to know
// which image and steps to run for a commit.
package ciconfig

import (
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// FileName is the descriptor's expected name at a repository's root.
const FileName = "narwhal.yml"

// Step is a single command to run inside the image, with the
// dependencies it needs installed first.
type Step struct {
	Name         string   `yaml:"name"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	Cmd          string   `yaml:"command"`
}

// Config describes the image and steps a commit's test suite runs
// under when the runner is configured for the docker execution
// backend.
type Config struct {
	Name  string            `yaml:"name"`
	Image string            `yaml:"image"`
	Env   map[string]string `yaml:"env,omitempty"`
	Steps []Step            `yaml:"steps"`
}

// defaultImage is used when a descriptor omits one.
const defaultImage = "ubuntu"

// LoadFromRepo reads narwhal.yml from repoPath, defaulting Image when
// the descriptor doesn't set one.
func LoadFromRepo(repoPath string) (*Config, error) {
	return LoadFile(filepath.Join(repoPath, FileName))
}

// LoadFile reads and parses a descriptor at an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{Image: defaultImage}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
