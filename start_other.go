//go:build !linux && !darwin

package gline

import "context"

// Listen 在非 Linux/Darwin 平台返回占位错误，保证编译通过
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown()
	return ErrPlatformNotSupported
}

func (s *Server) Serve(ctx context.Context) error {
	_ = ctx
	return ErrPlatformNotSupported
}

func (s *Server) closeConn(c *Conn, err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.discardQueue()
	s.h.OnClose(c, err)
}

func (s *Server) shutdown() {
	s.stopping.Store(true)
	s.state.Store(int32(StateStopped))
	s.closeDone()
}
