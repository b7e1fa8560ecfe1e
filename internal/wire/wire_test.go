package wire

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestParseRequestSplitsOnFirstColon(t *testing.T) {
	req := ParseRequest([]byte("dispatch:abc:123"))
	if req.Command != "dispatch" || req.Tail != "abc:123" || !req.HasTail {
		t.Errorf("got %+v", req)
	}
}

func TestParseRequestWithoutTail(t *testing.T) {
	req := ParseRequest([]byte("status"))
	if req.Command != "status" || req.HasTail {
		t.Errorf("got %+v", req)
	}
}

func TestParseRequestTrimsTrailingNewline(t *testing.T) {
	req := ParseRequest([]byte("status\n"))
	if req.Command != "status" {
		t.Errorf("got %+v", req)
	}
}

func TestParseResultUploadHappyPath(t *testing.T) {
	upload, err := ParseResultUpload("abc123:9:all green")
	if err != nil {
		t.Fatalf("ParseResultUpload failed: %s", err)
	}
	if upload.Commit != "abc123" || upload.Length != 9 || upload.Payload != "all green" {
		t.Errorf("got %+v", upload)
	}
}

func TestParseResultUploadPayloadWithColonsAndNewlines(t *testing.T) {
	upload, err := ParseResultUpload("abc123:13:FAIL: 3\nOK: 7")
	if err != nil {
		t.Fatalf("ParseResultUpload failed: %s", err)
	}
	if upload.Payload != "FAIL: 3\nOK: 7" {
		t.Errorf("payload mangled: %q", upload.Payload)
	}
}

func TestParseResultUploadMissingFields(t *testing.T) {
	if _, err := ParseResultUpload("abc123:9"); err != ErrInvalidFormat {
		t.Errorf("got err=%v, want ErrInvalidFormat", err)
	}
}

func TestParseResultUploadBadLength(t *testing.T) {
	if _, err := ParseResultUpload("abc123:notanumber:payload"); err != ErrInvalidLength {
		t.Errorf("got err=%v, want ErrInvalidLength", err)
	}
}

func TestReadAllDrainsToEOF(t *testing.T) {
	r := bytes.NewBufferString("hello world")
	got, err := ReadAll(r, 1024)
	if err != nil {
		t.Fatalf("ReadAll failed: %s", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestReadAllEnforcesLimit(t *testing.T) {
	r := bytes.NewBufferString("0123456789")
	if _, err := ReadAll(r, 5); err == nil {
		t.Fatalf("expected error for input exceeding limit")
	}
}

func TestServeAndExchangeRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %s", err)
	}
	srv := NewServer(ln, func(conn net.Conn) {
		raw, _ := ReadAll(conn, MaxCommandSize)
		req := ParseRequest(raw)
		WriteReply(conn, "echo:"+req.Command)
	})
	go srv.Serve()
	defer srv.Stop()

	reply, err := Exchange(ln.Addr().String(), "status", time.Second)
	if err != nil {
		t.Fatalf("Exchange failed: %s", err)
	}
	if reply != "echo:status" {
		t.Errorf("got %q", reply)
	}
}

func TestExchangeDialFailure(t *testing.T) {
	if _, err := Exchange("127.0.0.1:1", "status", 100*time.Millisecond); err == nil {
		t.Fatalf("expected error dialing a closed port")
	}
}

func TestStopUnblocksServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %s", err)
	}
	srv := NewServer(ln, func(conn net.Conn) {})

	done := make(chan struct{})
	go func() {
		srv.Serve()
		close(done)
	}()

	srv.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return after Stop")
	}
}
