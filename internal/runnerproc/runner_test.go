package runnerproc

import (
	"io/ioutil"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/codepr/narwhal-ci/internal/wire"
)

type fakeExec struct {
	payload string
	err     error
	calls   chan string
}

func (f *fakeExec) Execute(repoPath, commitID string) (string, error) {
	if f.calls != nil {
		f.calls <- commitID
	}
	return f.payload, f.err
}

func testLogger() *log.Logger {
	return log.New(ioutil.Discard, "test ", 0)
}

func TestHandlePing(t *testing.T) {
	r := New(testLogger(), Config{}, &fakeExec{payload: "OK"})
	if got := r.Handle([]byte("ping")); got != "pong" {
		t.Errorf("ping reply = %q, want pong", got)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	r := New(testLogger(), Config{}, &fakeExec{})
	if got := r.Handle([]byte("bogus")); got != "Unknown command" {
		t.Errorf("unknown command reply = %q", got)
	}
}

func TestRuntestRejectsWhenBusy(t *testing.T) {
	calls := make(chan string, 1)
	exec := &fakeExec{payload: "OK", calls: calls}
	r := New(testLogger(), Config{
		DispatcherAddr:    startDiscardDispatcher(t),
		ResultPostTimeout: time.Second,
	}, exec)

	if got := r.Handle([]byte("runtest:c1")); got != "OK" {
		t.Fatalf("first runtest reply = %q, want OK", got)
	}
	if got := r.Handle([]byte("runtest:c2")); got != "BUSY" {
		t.Errorf("second runtest reply = %q, want BUSY", got)
	}

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("exec backend was never invoked for c1")
	}

	deadline := time.After(time.Second)
	for r.isBusy() {
		select {
		case <-deadline:
			t.Fatal("runner never cleared busy after posting results")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRuntestPostsResults(t *testing.T) {
	received := make(chan string, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind fake dispatcher: %s", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		raw, _ := wire.ReadAll(conn, 64*1024)
		received <- string(raw)
		wire.WriteReply(conn, "OK")
	}()

	r := New(testLogger(), Config{
		DispatcherAddr:    ln.Addr().String(),
		ResultPostTimeout: time.Second,
	}, &fakeExec{payload: "all green"})

	if got := r.Handle([]byte("runtest:abc123")); got != "OK" {
		t.Fatalf("runtest reply = %q, want OK", got)
	}

	select {
	case msg := <-received:
		if !strings.HasPrefix(msg, "results:abc123:9:all green") {
			t.Errorf("posted message = %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("runner never posted results")
	}
}

func TestRegisterSendsCorrectMessage(t *testing.T) {
	received := make(chan string, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind fake dispatcher: %s", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		raw, _ := wire.ReadAll(conn, 64*1024)
		received <- string(raw)
		wire.WriteReply(conn, "OK")
	}()

	r := New(testLogger(), Config{
		DispatcherAddr:   ln.Addr().String(),
		HeartbeatTimeout: time.Second,
	}, &fakeExec{})

	if err := r.Register("127.0.0.1:9999"); err != nil {
		t.Fatalf("Register failed: %s", err)
	}

	select {
	case msg := <-received:
		if msg != "register:127.0.0.1:9999" {
			t.Errorf("registration message = %q, want register:127.0.0.1:9999", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher never received a registration request")
	}
}

func TestRegisterReturnsErrorOnRejection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind fake dispatcher: %s", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wire.ReadAll(conn, 64*1024)
		wire.WriteReply(conn, "Runner already registered")
	}()

	r := New(testLogger(), Config{
		DispatcherAddr:   ln.Addr().String(),
		HeartbeatTimeout: time.Second,
	}, &fakeExec{})

	if err := r.Register("127.0.0.1:9999"); err == nil {
		t.Fatalf("expected Register to fail when the dispatcher rejects it")
	}
}

// startDiscardDispatcher starts a fake dispatcher that always replies OK
// and returns its address.
func startDiscardDispatcher(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind fake dispatcher: %s", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				wire.ReadAll(conn, 64*1024)
				wire.WriteReply(conn, "OK")
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}
