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

package dispatcher

import (
	"net"

	"github.com/codepr/narwhal-ci/internal/wire"
)

// Server binds the dispatcher's TCP listener and runs the accept loop on
// top of internal/wire.Server, translating each connection's request into
// a Dispatcher.Handle call and writing the single reply.
type Server struct {
	d  *Dispatcher
	ws *wire.Server
}

// Listen binds addr (host:port, port 0 for a kernel-assigned one) and
// returns a Server wrapping it. The bound address is available via Addr
// before Serve is called.
func Listen(addr string, d *Dispatcher) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{d: d}
	s.ws = wire.NewServer(ln, s.handleConn)
	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ws.Addr()
}

// Serve starts the dispatcher's background workers and runs the accept
// loop until Stop is called. It blocks the calling goroutine.
func (s *Server) Serve() {
	s.d.Start()
	s.ws.Serve()
}

// Stop halts the accept loop and the background workers.
func (s *Server) Stop() {
	s.ws.Stop()
	s.d.Stop()
}

func (s *Server) handleConn(conn net.Conn) {
	raw, err := wire.ReadAll(conn, wire.MaxResultPayload+wire.MaxCommandSize)
	if err != nil {
		wire.WriteReply(conn, "Request too large")
		return
	}
	reply := s.d.Handle(raw)
	wire.WriteReply(conn, reply)
}
