//go:build linux || darwin

package gline

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestFanOut_OnePerLiveConn(t *testing.T) {
	s, _ := newUnitServer(t, nil, nil)
	a := addConn(s, fakeFD+11)
	b := addConn(s, fakeFD+12)
	gone := addConn(s, fakeFD+13)
	_ = gone.Close() // 断开但尚未回收

	if err := s.TryBroadcast([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if n := s.fanOutOne([]byte("direct")); n != 2 {
		t.Fatalf("expected 2 enqueues, got %d", n)
	}
	s.fanOut()

	for _, c := range []*Conn{a, b} {
		got := queued(c)
		if len(got) != 2 || got[0] != "direct" || got[1] != "ping" {
			t.Fatalf("%s: unexpected queue %q", c, got)
		}
	}
	if len(queued(gone)) != 0 {
		t.Fatalf("closed conn received broadcast: %q", queued(gone))
	}
	if s.PendingBroadcasts() != 0 {
		t.Fatalf("broadcast queue not drained: %d", s.PendingBroadcasts())
	}
}

func TestFanOut_AfterQueuedDataInSubmissionOrder(t *testing.T) {
	s, _ := newUnitServer(t, nil, nil)
	a := addConn(s, fakeFD+21)
	b := addConn(s, fakeFD+22)
	_ = a.Write([]byte("app-data"))

	for _, m := range []string{"ping", "pong"} {
		if err := s.Broadcast(context.Background(), []byte(m)); err != nil {
			t.Fatal(err)
		}
	}
	s.fanOut()

	if got := queued(a); len(got) != 3 || got[0] != "app-data" || got[1] != "ping" || got[2] != "pong" {
		t.Fatalf("unexpected queue on a: %q", got)
	}
	if got := queued(b); len(got) != 2 || got[0] != "ping" || got[1] != "pong" {
		t.Fatalf("unexpected queue on b: %q", got)
	}
}

func TestBroadcast_Backpressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BroadcastQueueSize = 1
	cfg.Logger = quiet
	s, err := NewServer(cfg, HandlerFuncs{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.TryBroadcast([]byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := s.TryBroadcast([]byte("2")); !errors.Is(err, ErrBroadcastFull) {
		t.Fatalf("expected ErrBroadcastFull, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Broadcast(ctx, []byte("3")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected blocked Broadcast to honour ctx, got %v", err)
	}

	// 阻塞中的提交方在服务停止时被释放
	errCh := make(chan error, 1)
	go func() { errCh <- s.Broadcast(context.Background(), []byte("4")) }()
	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrServerClosed) {
			t.Fatalf("expected ErrServerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Broadcast not released by Stop")
	}
	if err := s.TryBroadcast([]byte("5")); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed after stop, got %v", err)
	}
}

func TestBroadcast_WakesLoop(t *testing.T) {
	s, rp := newUnitServer(t, nil, nil)
	if err := s.Broadcast(context.Background(), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if rp.wakes != 1 {
		t.Fatalf("expected one wake, got %d", rp.wakes)
	}
}

func TestBroadcast_EndToEnd(t *testing.T) {
	s := startServer(t, HandlerFuncs{}, nil)
	c1, r1 := dial(t, s)
	c2, r2 := dial(t, s)
	waitFor(t, "two live connections", func() bool { return s.Conns() == 2 })

	if err := s.Broadcast(context.Background(), []byte("ping\n")); err != nil {
		t.Fatal(err)
	}
	got := []string{readLine(t, c1, r1), readLine(t, c2, r2)}
	sort.Strings(got)
	if got[0] != "ping\n" || got[1] != "ping\n" {
		t.Fatalf("unexpected broadcast delivery %q", got)
	}
}
