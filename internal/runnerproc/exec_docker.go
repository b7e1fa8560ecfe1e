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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/codepr/narwhal-ci/internal/ciconfig"
)

// DockerBackend runs a commit's test suite inside a one-shot container
// built from the repository's narwhal.yml descriptor, then tears the
// container down. It adapts the teacher's container-pool machinery to a
// single-container-per-commit shape, since the runner already enforces
// one execution at a time via its busy flag.
type DockerBackend struct {
	Client  *docker.Client
	Timeout time.Duration
}

// NewDockerBackend dials the local docker daemon using the environment
// the teacher's backend.runContainer relies on (DOCKER_HOST and friends).
func NewDockerBackend(timeout time.Duration) (*DockerBackend, error) {
	cli, err := docker.NewEnvClient()
	if err != nil {
		return nil, err
	}
	return &DockerBackend{Client: cli, Timeout: timeout}, nil
}

// Execute builds the command described by repoPath's narwhal.yml (every
// step's command, in order, stopping at the first that fails), starts a
// container for it, waits for it to exit, and returns its combined
// stdout+stderr as the payload. A step's Dependencies are not installed.
func (b *DockerBackend) Execute(repoPath, commitID string) (string, error) {
	cfg, err := ciconfig.LoadFromRepo(repoPath)
	if err != nil {
		return "", err
	}
	if len(cfg.Steps) == 0 {
		return "", fmt.Errorf("narwhal.yml declares no steps")
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.Timeout)
	defer cancel()

	reader, err := b.Client.ImagePull(ctx, cfg.Image, types.ImagePullOptions{})
	if err != nil {
		return "", err
	}
	reader.Close()

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	cmds := make([]string, 0, len(cfg.Steps))
	for _, step := range cfg.Steps {
		cmds = append(cmds, step.Cmd)
	}

	resp, err := b.Client.ContainerCreate(ctx, &container.Config{
		Image: cfg.Image,
		Cmd:   []string{"sh", "-c", strings.Join(cmds, " && ")},
		Env:   env,
		Tty:   false,
	}, nil, nil, "")
	if err != nil {
		return "", err
	}
	defer b.Client.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := b.Client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", err
	}

	if _, err := b.Client.ContainerWait(ctx, resp.ID); err != nil {
		return "", err
	}

	out, err := b.Client.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", err
	}
	defer out.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, out); err != nil {
		return "", err
	}
	return buf.String(), nil
}
