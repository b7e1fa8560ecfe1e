package runnerproc

import (
	"testing"
	"time"

	"github.com/codepr/narwhal-ci/internal/dispatcher"
)

type discardStore struct{}

func (discardStore) Put(commitID string, payload []byte) error { return nil }

// TestRegisterRoundTripsWithRealDispatcher spins up an actual
// dispatcher.Dispatcher (not a fake) and a real runner Server, then
// asserts that Register's TCP round trip lands the runner in the
// dispatcher's registry: a subsequent dispatch no longer fails with
// "No runners available".
func TestRegisterRoundTripsWithRealDispatcher(t *testing.T) {
	d := dispatcher.New(testLogger(), dispatcher.Config{
		HealthCheckInterval:  time.Hour,
		RedistributeInterval: time.Hour,
		DispatchBackoff:      10 * time.Millisecond,
		PingTimeout:          time.Second,
		RuntestTimeout:       time.Second,
	}, discardStore{}, nil)

	dsrv, err := dispatcher.Listen("127.0.0.1:0", d)
	if err != nil {
		t.Fatalf("failed to bind dispatcher: %s", err)
	}
	defer dsrv.Stop()
	go dsrv.Serve()

	r := New(testLogger(), Config{
		DispatcherAddr:   dsrv.Addr().String(),
		HeartbeatTimeout: time.Second,
	}, &fakeExec{payload: "OK"})

	rsrv, err := Listen("127.0.0.1:0", r)
	if err != nil {
		t.Fatalf("failed to bind runner server: %s", err)
	}
	defer rsrv.Stop()
	go rsrv.Serve()

	if err := r.Register(rsrv.Addr().String()); err != nil {
		t.Fatalf("Register failed against a real dispatcher: %s", err)
	}

	if got := d.Handle([]byte("dispatch:abc123")); got != "OK" {
		t.Fatalf("dispatch after registration = %q, want OK (registry should no longer be empty)", got)
	}
}
