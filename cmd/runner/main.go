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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/codepr/narwhal-ci/internal/config"
	"github.com/codepr/narwhal-ci/internal/runnerproc"
)

func main() {
	var (
		host           string
		port           int
		dispatcherAddr string
		updateScript   string
		testScript     string
		configPath     string
	)
	flag.StringVar(&host, "host", "localhost", "Listening host")
	flag.IntVar(&port, "port", 0, "Listening port, 0 for kernel-assigned")
	flag.StringVar(&dispatcherAddr, "dispatcher-server", "localhost:28919", "Dispatcher host:port")
	flag.StringVar(&updateScript, "update-script", "./update-to-commit", "Path to the update-to-commit hook")
	flag.StringVar(&testScript, "test-script", "./run-tests", "Path to the test-runner script")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: runner <repo_path> [flags]")
		os.Exit(1)
	}
	repoPath := flag.Arg(0)
	// flag.Parse stops at the first positional argument; parse the flags
	// that follow the repository path as well.
	flag.CommandLine.Parse(flag.Args()[1:])

	logger := log.New(os.Stdout, "[runner] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal(err)
	}

	var backend runnerproc.ExecBackend
	switch cfg.Backend {
	case "docker":
		backend, err = runnerproc.NewDockerBackend(cfg.HeartbeatTimeout)
		if err != nil {
			logger.Fatal(err)
		}
	case "git":
		if cfg.GitRemoteURL == "" {
			logger.Fatal("backend \"git\" requires git_remote_url to be set")
		}
		backend = runnerproc.NewGitBackend(cfg.GitRemoteURL, testScript)
	default:
		backend = runnerproc.NewProcessBackend(updateScript, testScript)
	}

	r := runnerproc.New(logger, runnerproc.Config{
		RepoPath:           repoPath,
		DispatcherAddr:     dispatcherAddr,
		HeartbeatTimeout:   cfg.HeartbeatTimeout,
		ResultPostTimeout:  cfg.HeartbeatTimeout,
		WatchCheckInterval: cfg.HealthCheckInterval,
	}, backend)

	addr := fmt.Sprintf("%s:%d", host, port)
	srv, err := runnerproc.Listen(addr, r)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("listening on %s, dispatcher at %s", srv.Addr(), dispatcherAddr)

	if err := r.Register(srv.Addr().String()); err != nil {
		logger.Fatal(err)
	}

	watchDone := make(chan struct{})
	go func() {
		r.WatchDispatcher()
		close(watchDone)
	}()
	go srv.Serve()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case <-sig:
	case <-watchDone:
	}

	logger.Print("shutting down")
	srv.Stop()
}
