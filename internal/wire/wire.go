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

// Package wire implements the synchronous request/response exchange that
// every narwhal component uses to talk to every other one: dial, write one
// message, read one reply, close. Everything above TCP is a single text
// command of the form "verb" or "verb:tail", with one exception (results
// upload) carrying a length-prefixed payload inside the tail.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// ReadChunkSize is the buffer size used to drain a connection; the
	// protocol must not depend on any particular value here.
	ReadChunkSize = 4096

	// MaxCommandSize bounds every command except a results upload.
	MaxCommandSize = 64 * 1024

	// MaxResultPayload bounds the payload carried by a results upload.
	MaxResultPayload = 16 * 1024 * 1024

	maxRequestSize = MaxResultPayload + MaxCommandSize
)

// Exchange opens a connection to addr, sends message, half-closes the
// write side so the peer can detect end-of-request by EOF, reads the
// reply to completion and closes the connection.
func Exchange(addr, message string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := io.WriteString(conn, message); err != nil {
		return "", err
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}

	reply, err := ReadAll(conn, int64(maxRequestSize))
	if err != nil && err != io.EOF {
		return "", err
	}
	return string(reply), nil
}

// ReadAll drains r in ReadChunkSize-sized reads until EOF, failing if more
// than limit bytes arrive. It never assumes a single Read returns a whole
// message, so it is independent of any particular buffer size.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	buf := make([]byte, 0, ReadChunkSize)
	chunk := make([]byte, ReadChunkSize)
	for {
		n, err := lr.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if int64(len(buf)) > limit {
				return buf, fmt.Errorf("request exceeds %d bytes", limit)
			}
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}

// Request is a parsed command: the verb and its optional tail, split on
// the first colon only, since the tail itself may contain colons.
type Request struct {
	Command string
	Tail    string
	HasTail bool
}

// ParseRequest splits a raw request buffer into a command token and an
// optional argument tail.
func ParseRequest(raw []byte) Request {
	s := strings.TrimRight(string(raw), "\r\n")
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 2 {
		return Request{Command: parts[0], Tail: parts[1], HasTail: true}
	}
	return Request{Command: parts[0]}
}

// ResultUpload is the parsed tail of a "results:<commit>:<length>:<payload>"
// request.
type ResultUpload struct {
	Commit  string
	Length  int
	Payload string
}

// ErrInvalidFormat is returned when a results tail doesn't carry the three
// colon-separated fields the protocol requires.
var ErrInvalidFormat = fmt.Errorf("invalid results format")

// ErrInvalidLength is returned when the declared length isn't a decimal
// integer.
var ErrInvalidLength = fmt.Errorf("invalid length in results")

// ParseResultUpload parses the tail of a results command. The payload may
// contain colons and newlines, so only the first two colons are
// significant.
func ParseResultUpload(tail string) (ResultUpload, error) {
	parts := strings.SplitN(tail, ":", 3)
	if len(parts) < 3 {
		return ResultUpload{}, ErrInvalidFormat
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return ResultUpload{}, ErrInvalidLength
	}
	return ResultUpload{Commit: parts[0], Length: length, Payload: parts[2]}, nil
}

// Handler processes one accepted connection and is responsible for
// writing exactly one reply before returning.
type Handler func(conn net.Conn)

// Server runs an accept loop over a listener, spawning one goroutine per
// connection, until Stop is called.
type Server struct {
	ln      net.Listener
	handler Handler
	quit    chan struct{}
	done    chan struct{}
}

// NewServer wraps an already-bound listener; callers obtain the listener
// via net.Listen themselves so that port-zero binding can be resolved
// before the server starts accepting (see Addr).
func NewServer(ln net.Listener, handler Handler) *Server {
	return &Server{
		ln:      ln,
		handler: handler,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Addr returns the listener's bound address, resolving a requested port
// of 0 to the kernel-assigned one.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until Stop is called, handling each on its
// own goroutine so a slow or stuck peer never blocks the next accept.
func (s *Server) Serve() {
	defer close(s.done)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				return
			}
		}
		go func() {
			defer conn.Close()
			s.handler(conn)
		}()
	}
}

// Stop closes the listener, unblocking Serve, and waits for the accept
// loop goroutine to return. In-flight connection handlers are allowed to
// run to completion; Stop does not wait for them.
func (s *Server) Stop() {
	close(s.quit)
	s.ln.Close()
	<-s.done
}

// WriteReply writes a single reply string to conn. It never returns an
// error the caller needs to act on beyond logging: the connection is
// closed by the accept loop regardless.
func WriteReply(conn net.Conn, reply string) error {
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(reply); err != nil {
		return err
	}
	return w.Flush()
}
