//go:build linux || darwin

package gline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/gline/internal/netutil"
	"github.com/legamerdc/gline/poller"
	"github.com/legamerdc/gline/protocol"
)

// Listen 创建 poller、绑定监听 socket 并注册 accept 兴趣。
// 失败是致命的：资源被释放，状态进入 Stopped，事件循环不会启动。
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.State(); st != StateInitializing || s.stopping.Load() {
		if st == StateStopped || s.stopping.Load() {
			return ErrServerClosed
		}
		return fmt.Errorf("gline: listen in state %s: %w", st, ErrInvalidArgument)
	}
	pl, err := poller.New(s.cfg.MaxEvents)
	if err != nil {
		s.shutdown()
		return fmt.Errorf("gline: open poller: %w", err)
	}
	lfd, err := netutil.Listen(s.cfg.Host, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		pl.Close()
		s.shutdown()
		return fmt.Errorf("gline: listen %s: %w", s.cfg.Address(), err)
	}
	if err := pl.Register(lfd, true, false); err != nil {
		unix.Close(lfd)
		pl.Close()
		s.shutdown()
		return fmt.Errorf("gline: register listener: %w", err)
	}
	addr, err := netutil.LocalAddr(lfd)
	if err != nil {
		unix.Close(lfd)
		pl.Close()
		s.shutdown()
		return fmt.Errorf("gline: listener address: %w", err)
	}
	s.pl, s.lfd, s.addr = pl, lfd, addr
	s.state.Store(int32(StateListening))
	s.logf("server listening on %s", addr)
	return nil
}

// Serve 在调用方 goroutine 上运行事件循环，直到 Stop、ctx 结束或 poller 出错。
// Stop 触发的退出返回 nil，ctx 结束返回 ctx.Err()。
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.State() == StateStopped {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.State() != StateListening || s.serving {
		s.mu.Unlock()
		return ErrNotListening
	}
	s.serving = true
	pl := s.pl
	s.mu.Unlock()

	// 单线程：所有连接状态与注册都在这一个 OS 线程上修改
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stopWake := context.AfterFunc(ctx, func() { _ = pl.Wake() })
	defer stopWake()
	defer s.shutdown()

	for {
		if s.stopping.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.tick(); err != nil {
			s.logf("server: poll failed: %v", err)
			return err
		}
	}
}

// ready 为一次就绪事件在 reactor 层面的分类。
type ready uint8

const (
	acceptable ready = 1 << iota
	readable
	writable
)

func (s *Server) classify(ev poller.Event) ready {
	if ev.FD == s.lfd {
		return acceptable
	}
	var r ready
	// 挂断/出错交给读路径，由 read 观察到 EOF 或错误
	if ev.Kind&(poller.Readable|poller.Hangup) != 0 {
		r |= readable
	}
	if ev.Kind&poller.Writable != 0 {
		r |= writable
	}
	return r
}

// tick 执行一轮：必要时恢复 accept -> 有界等待 -> accept -> 读写 -> 扇出广播。
// 事件切片是本轮开始时的快照，处理过程中对注册集合的修改不影响遍历。
func (s *Server) tick() error {
	s.resumeAccept()
	evs, err := s.pl.Wait(s.cfg.PollTimeout, s.events)
	if err != nil {
		return err
	}
	s.events = evs

	for _, ev := range evs {
		if s.classify(ev) == acceptable {
			s.accept()
		}
	}
	for _, ev := range evs {
		r := s.classify(ev)
		if r == acceptable {
			continue
		}
		c, ok := s.conns[ev.FD]
		if !ok {
			continue
		}
		if r&readable != 0 {
			s.read(c)
		}
		if r&writable != 0 && !c.closed && !c.closing {
			s.drain(c)
		}
		s.flushReap()
	}
	s.fanOut()
	return nil
}

// accept 循环接受直到 EAGAIN
func (s *Server) accept() {
	for {
		fd, sa, err := acceptConn(s.lfd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			if err == unix.EMFILE || err == unix.ENFILE || err == unix.ENOBUFS || err == unix.ENOMEM {
				s.pauseAccept(err)
				return
			}
			s.logf("server: accept: %v", err)
			return
		}
		if s.acceptStarved {
			s.acceptStarved = false
			s.logf("server: accept resumed")
		}
		_ = netutil.SetNoDelay(fd, true)
		if err := s.pl.Register(fd, true, false); err != nil {
			unix.Close(fd)
			s.logf("server: register fd=%d: %v", fd, err)
			continue
		}
		c := newConn(fd, s, netutil.SockaddrToTCPAddr(sa))
		s.conns[fd] = c
		s.live.Add(1)
		s.logf("server: new client connected: %s", c)
		s.h.OnOpen(c)
		s.flushReap()
	}
}

// pauseAccept 在 fd 或内存耗尽时关闭监听 socket 的读兴趣。
// 监听 fd 是水平触发的，未接受的连接留在 backlog 中会让每次 Wait 立即返回。
// 每次耗尽只记录一条日志。
func (s *Server) pauseAccept(cause error) {
	if !s.acceptStarved {
		s.acceptStarved = true
		s.logf("server: accept paused: %v", cause)
	}
	if err := s.pl.Mod(s.lfd, false, false); err != nil {
		s.logf("server: pause accept: %v", err)
		return
	}
	s.acceptPaused = true
	s.acceptResume = time.Now().Add(s.cfg.PollTimeout)
}

// resumeAccept 在暂停满一个 PollTimeout 或有连接释放 fd 后恢复 accept 兴趣。
func (s *Server) resumeAccept() {
	if !s.acceptPaused || time.Now().Before(s.acceptResume) {
		return
	}
	if err := s.pl.Mod(s.lfd, true, false); err != nil {
		s.logf("server: resume accept: %v", err)
		return
	}
	s.acceptPaused = false
}

// read 读取至多 Framer 剩余容量的字节并逐帧回调。
func (s *Server) read(c *Conn) {
	free := c.fr.Free()
	n, err := unix.Read(c.fd, s.scratch[:free])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return
		}
		s.closeConn(c, err)
		return
	}
	if n == 0 {
		// 对端关闭
		s.closeConn(c, nil)
		return
	}
	ferr := c.fr.Feed(s.scratch[:n], func(frame []byte) error {
		s.h.OnFrame(c, frame)
		if c.closing || c.closed {
			return errStopFeed
		}
		return nil
	})
	if ferr != nil && !errors.Is(ferr, errStopFeed) {
		s.markClosing(c, ferr)
	}
}

// closeConn 回收连接：先从 poller 注销，再关闭 fd、移出在线集合、丢弃出站队列，最后回调 OnClose。
// 对已关闭的连接是空操作。
func (s *Server) closeConn(c *Conn, err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.closing = true
	_ = s.pl.Unregister(c.fd)
	unix.Close(c.fd)
	if s.conns[c.fd] == c {
		delete(s.conns, c.fd)
		s.live.Add(-1)
	}
	if s.acceptPaused {
		// 释放了一个 fd，下一轮即可重试 accept
		s.acceptResume = time.Time{}
	}
	c.discardQueue()
	c.fr.Reset()
	s.h.OnClose(c, err)

	switch {
	case err == nil:
		s.logf("server: %s disconnected", c)
	case errors.Is(err, protocol.ErrFrameTooLarge):
		s.logf("server: %s protocol violation: %v", c, err)
	case errors.Is(err, ErrServerClosed):
		s.logf("server: %s closed on shutdown", c)
	default:
		s.logf("server: %s closed: %v", c, err)
	}
}

// shutdown 进入 Draining：关闭全部连接、监听 socket 与 poller，最后进入 Stopped。
func (s *Server) shutdown() {
	if s.State() == StateStopped {
		return
	}
	s.stopping.Store(true)
	s.state.Store(int32(StateDraining))
	for _, c := range s.conns {
		s.closeConn(c, ErrServerClosed)
	}
	s.reap = s.reap[:0]
	if s.lfd >= 0 {
		if s.pl != nil {
			_ = s.pl.Unregister(s.lfd)
		}
		unix.Close(s.lfd)
		s.lfd = -1
	}
	if s.pl != nil {
		_ = s.pl.Close()
	}
	s.state.Store(int32(StateStopped))
	s.closeDone()
	s.logf("server stopped")
}
