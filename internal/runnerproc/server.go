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
	"net"

	"github.com/codepr/narwhal-ci/internal/wire"
)

// Server binds the runner's TCP listener, discovering the kernel-assigned
// port when the configured one is 0 (port-zero binding, per spec.md §9:
// the runner must register the bound port, not the requested one).
type Server struct {
	r  *Runner
	ws *wire.Server
}

// Listen binds addr and wraps r's command handling around it.
func Listen(addr string, r *Runner) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{r: r}
	s.ws = wire.NewServer(ln, s.handleConn)
	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ws.Addr()
}

// Serve runs the accept loop until Stop is called, blocking the caller.
func (s *Server) Serve() {
	s.ws.Serve()
}

// Stop halts the accept loop.
func (s *Server) Stop() {
	s.ws.Stop()
	s.r.Stop()
}

func (s *Server) handleConn(conn net.Conn) {
	raw, err := wire.ReadAll(conn, wire.MaxCommandSize)
	if err != nil {
		wire.WriteReply(conn, "Unknown command")
		return
	}
	reply := s.r.Handle(raw)
	wire.WriteReply(conn, reply)
}
