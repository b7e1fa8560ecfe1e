package runnermanager

import (
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(ioutil.Discard, "test ", 0)
}

// shortLivedScript returns a binary path that exits immediately, standing
// in for a runner binary in tests that don't want a real TCP server.
func shortLivedScript(t *testing.T) string {
	if runtime.GOOS == "windows" {
		t.Skip("spawn test assumes a POSIX shell")
	}
	return "/bin/true"
}

func TestReconcileSpawnsUpToDesiredCount(t *testing.T) {
	m := New(testLogger(), Config{
		RunnerBin:     shortLivedScript(t),
		DesiredCount:  3,
		CheckInterval: time.Hour,
	})
	m.reconcile()
	if m.Count() != 3 {
		t.Errorf("Count = %d, want 3 after first reconcile", m.Count())
	}
}

func TestReconcilePrunesExited(t *testing.T) {
	m := New(testLogger(), Config{
		RunnerBin:     shortLivedScript(t),
		DesiredCount:  1,
		CheckInterval: time.Hour,
	})
	m.reconcile()
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}

	deadline := time.After(2 * time.Second)
	for {
		m.mu.Lock()
		exited := len(m.procs) > 0 && m.procs[0].exited
		m.mu.Unlock()
		if exited {
			break
		}
		select {
		case <-deadline:
			t.Fatal("/bin/true never registered as exited")
		case <-time.After(10 * time.Millisecond):
		}
	}

	m.reconcile()
	if m.Count() != 1 {
		t.Errorf("Count = %d after re-reconcile, want 1 replacement spawned", m.Count())
	}
}

func TestStopTerminatesChildren(t *testing.T) {
	// spawn() passes the repo path followed by --host/--port/--dispatcher-server
	// flags, which /bin/sleep would reject; a script that ignores its
	// arguments stands in for a long-lived runner instead.
	dir, err := ioutil.TempDir("", "runnermanager")
	if err != nil {
		t.Fatalf("TempDir failed: %s", err)
	}
	defer os.RemoveAll(dir)
	bin := filepath.Join(dir, "runner.sh")
	if err := ioutil.WriteFile(bin, []byte("#!/bin/sh\nexec sleep 5\n"), 0755); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}

	m := New(testLogger(), Config{
		RunnerBin:     bin,
		DesiredCount:  1,
		CheckInterval: 10 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for m.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("manager never spawned the sleep child")
		case <-time.After(10 * time.Millisecond):
		}
	}

	m.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after Stop")
	}

	deadline = time.After(2 * time.Second)
	for {
		m.mu.Lock()
		exited := len(m.procs) > 0 && m.procs[0].exited
		m.mu.Unlock()
		if exited {
			break
		}
		select {
		case <-deadline:
			t.Fatal("child was still running after Stop")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
