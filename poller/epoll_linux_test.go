//go:build linux

package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newPoller(t *testing.T) Poller {
	t.Helper()
	p, err := New(16)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestEpoll_TimeoutBoundsWait(t *testing.T) {
	p := newPoller(t)
	start := time.Now()
	evs, err := p.Wait(30*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("expected no events, got %v", evs)
	}
	if time.Since(start) > time.Second {
		t.Errorf("wait exceeded its timeout: %v", time.Since(start))
	}
}

func TestEpoll_WakeInterruptsWait(t *testing.T) {
	p := newPoller(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Wait(-1, nil)
	}()
	time.Sleep(20 * time.Millisecond)
	if err := p.Wake(); err != nil {
		t.Fatalf("wake: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not interrupt wait")
	}
}

func TestEpoll_ReadWriteReadiness(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	if err := p.Register(a, true, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	evs, err := p.Wait(20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 0 {
		t.Fatalf("expected idle socket, got %v", evs)
	}

	if _, err := unix.Write(b, []byte("x")); err != nil {
		t.Fatal(err)
	}
	evs, err = p.Wait(time.Second, evs)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].FD != a || evs[0].Kind&Readable == 0 {
		t.Fatalf("expected readable event on %d, got %v", a, evs)
	}

	if err := p.Mod(a, true, true); err != nil {
		t.Fatalf("mod: %v", err)
	}
	evs, err = p.Wait(time.Second, evs)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Kind&Writable == 0 {
		t.Fatalf("expected writable event, got %v", evs)
	}

	if err := p.Unregister(a); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	evs, err = p.Wait(20*time.Millisecond, evs)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 0 {
		t.Fatalf("expected no events after unregister, got %v", evs)
	}
}

func TestEpoll_HangupReported(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)
	if err := p.Register(a, true, false); err != nil {
		t.Fatal(err)
	}
	unix.Shutdown(b, unix.SHUT_WR)
	evs, err := p.Wait(time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Kind&Hangup == 0 {
		t.Fatalf("expected hangup, got %v", evs)
	}
}

func TestEpoll_CloseIdempotent(t *testing.T) {
	p, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := p.Wake(); err != nil {
		t.Fatalf("wake after close: %v", err)
	}
}
