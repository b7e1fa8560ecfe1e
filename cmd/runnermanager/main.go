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
	"github.com/codepr/narwhal-ci/internal/runnermanager"
)

func main() {
	var (
		dispatcherAddr string
		runnerBin      string
		desiredCount   int
		configPath     string
	)
	flag.StringVar(&dispatcherAddr, "dispatcher-server", "localhost:28919", "Dispatcher host:port")
	flag.StringVar(&runnerBin, "runner-bin", "runner", "Path to the runner binary to supervise")
	flag.IntVar(&desiredCount, "desired-count", 1, "Number of live runners to maintain")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: runnermanager [flags] <repo_path>")
		os.Exit(1)
	}
	repoPath := flag.Arg(0)

	logger := log.New(os.Stdout, "[runnermanager] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal(err)
	}

	m := runnermanager.New(logger, runnermanager.Config{
		RunnerBin:      runnerBin,
		RepoPath:       repoPath,
		DispatcherAddr: dispatcherAddr,
		DesiredCount:   desiredCount,
		CheckInterval:  cfg.RunnerCheckInterval,
	})

	go m.Run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	logger.Print("shutting down")
	m.Stop()
}
