//go:build linux || darwin

package gline

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/legamerdc/gline/poller"
)

type modCall struct {
	fd                 int
	readable, writable bool
}

// recordingPoller 记录注册操作，不做真正的就绪等待
type recordingPoller struct {
	mu     sync.Mutex
	mods   []modCall
	unregs []int
	wakes  int
}

func (p *recordingPoller) Register(fd poller.FD, readable, writable bool) error { return nil }

func (p *recordingPoller) Mod(fd poller.FD, readable, writable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mods = append(p.mods, modCall{fd, readable, writable})
	return nil
}

func (p *recordingPoller) Unregister(fd poller.FD) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unregs = append(p.unregs, fd)
	return nil
}

func (p *recordingPoller) Wait(timeout time.Duration, dst []poller.Event) ([]poller.Event, error) {
	return dst[:0], nil
}

func (p *recordingPoller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakes++
	return nil
}

func (p *recordingPoller) Close() error { return nil }

func (p *recordingPoller) lastMod() (modCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.mods) == 0 {
		return modCall{}, false
	}
	return p.mods[len(p.mods)-1], true
}

// countingLogger 统计日志条数
type countingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *countingLogger) Log(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, message)
}

func (l *countingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// matching 统计包含 sub 的日志条数
func (l *countingLogger) matching(sub string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.msgs {
		if strings.Contains(m, sub) {
			n++
		}
	}
	return n
}

var quiet = LoggerFunc(func(string) {})

// newUnitServer 构造带 recordingPoller 的 Server，不监听、不运行事件循环
func newUnitServer(t *testing.T, h Handler, log Logger) (*Server, *recordingPoller) {
	t.Helper()
	if h == nil {
		h = HandlerFuncs{}
	}
	if log == nil {
		log = quiet
	}
	cfg := DefaultConfig()
	cfg.Logger = log
	s, err := NewServer(cfg, h)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	rp := &recordingPoller{}
	s.pl = rp
	return s, rp
}

// fakeFD 远大于进程可能打开的 fd，被误关闭时只会得到 EBADF
const fakeFD = 1 << 20

// addConn 将 fd 作为在线连接挂到 Server 上
func addConn(s *Server, fd int) *Conn {
	c := newConn(fd, s, nil)
	s.conns[fd] = c
	s.live.Add(1)
	return c
}

func queued(c *Conn) []string {
	var out []string
	for i := 0; i < c.wq.Length(); i++ {
		out = append(out, string(c.wq.Get(i).([]byte)))
	}
	return out
}

// startServer 在 127.0.0.1 的随机端口上启动事件循环
func startServer(t *testing.T, h Handler, mutate func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.PollTimeout = 20 * time.Millisecond
	cfg.Logger = quiet
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, h)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("serve returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("serve did not return")
		}
	})
	return s
}

func dial(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, bufio.NewReader(c)
}

func readLine(t *testing.T, c net.Conn, r *bufio.Reader) string {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v (partial %q)", err, line)
	}
	return line
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
