package resultstore

import (
	"io/ioutil"
	"os"
	"testing"
)

func newTestStore(t *testing.T) (*Store, func()) {
	dir, err := ioutil.TempDir("", "resultstore")
	if err != nil {
		t.Fatalf("TempDir failed: %s", err)
	}
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	return s, func() { os.RemoveAll(dir) }
}

func TestPutGetRoundTrip(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	payload := "FAIL: 3\nOK: 7"
	if err := s.Put("abc123", []byte(payload)); err != nil {
		t.Fatalf("Put failed: %s", err)
	}
	got, err := s.Get("abc123")
	if err != nil {
		t.Fatalf("Get failed: %s", err)
	}
	if string(got) != payload {
		t.Errorf("Get = %q, want %q", got, payload)
	}
}

func TestPutOverwrites(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	s.Put("abc123", []byte("first"))
	s.Put("abc123", []byte("second"))
	got, err := s.Get("abc123")
	if err != nil {
		t.Fatalf("Get failed: %s", err)
	}
	if string(got) != "second" {
		t.Errorf("Get = %q, want second", got)
	}
}

func TestList(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	s.Put("abc123", []byte("x"))
	s.Put("def456", []byte("y"))
	ids, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %s", err)
	}
	if len(ids) != 2 {
		t.Errorf("List returned %d ids, want 2: %v", len(ids), ids)
	}
}

func TestPutRejectsInvalidCommitID(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	if err := s.Put("", []byte("x")); err == nil {
		t.Errorf("Put accepted an empty commit id")
	}
	if err := s.Put("../escape", []byte("x")); err == nil {
		t.Errorf("Put accepted a commit id that escapes the store directory")
	}
}

func TestGetMissingCommit(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	if _, err := s.Get("nope"); err == nil {
		t.Errorf("Get should fail for a commit with no stored result")
	}
}
