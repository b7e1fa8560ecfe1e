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
	"time"

	"github.com/codepr/narwhal-ci/internal/config"
	"github.com/codepr/narwhal-ci/internal/dispatcher"
	"github.com/codepr/narwhal-ci/internal/eventbus"
	"github.com/codepr/narwhal-ci/internal/ghstatus"
	"github.com/codepr/narwhal-ci/internal/notify"
	"github.com/codepr/narwhal-ci/internal/resultstore"
)

func main() {
	var (
		host       string
		port       int
		resultsDir string
		configPath string
	)
	flag.StringVar(&host, "host", "localhost", "Listening host")
	flag.IntVar(&port, "port", 28919, "Listening port")
	flag.StringVar(&resultsDir, "results-dir", "./results", "Directory for persisted commit results")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.Parse()

	logger := log.New(os.Stdout, "[dispatcher] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal(err)
	}

	store, err := resultstore.Open(resultsDir)
	if err != nil {
		logger.Fatal(err)
	}

	var sinks []notify.Sink
	if cfg.AMQPURL != "" {
		sinks = append(sinks, eventbus.New(logger, cfg.AMQPURL, cfg.AMQPQueue))
	}
	if cfg.GitHubToken != "" && cfg.GitHubOwner != "" && cfg.GitHubRepo != "" {
		gh := ghstatus.New(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo)
		sinks = append(sinks, notify.NewGitHubStatus(logger, gh, 10*time.Second))
	}

	d := dispatcher.New(logger, dispatcher.Config{
		HealthCheckInterval:  cfg.HealthCheckInterval,
		RedistributeInterval: cfg.RedistributeInterval,
		DispatchBackoff:      cfg.DispatchBackoff,
		PingTimeout:          2 * time.Second,
		RuntestTimeout:       5 * time.Second,
	}, store, notify.NewMulti(sinks...))

	addr := fmt.Sprintf("%s:%d", host, port)
	srv, err := dispatcher.Listen(addr, d)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("listening on %s", srv.Addr())

	go srv.Serve()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	logger.Print("shutting down")
	srv.Stop()
}
