//go:build linux || darwin

package gline

import "golang.org/x/sys/unix"

// drain 在写就绪时依次写出队首块。
// 部分写入只推进 wpos，剩余部分留在队首等待下一次写就绪；整块写完才出队。
// 除 EAGAIN/EINTR 外的写错误立即关闭连接，不重试。
func (s *Server) drain(c *Conn) {
	for c.wq.Length() > 0 {
		head := c.wq.Peek().([]byte)
		n, err := unix.Write(c.fd, head[c.wpos:])
		if n > 0 {
			c.wpos += n
			c.pending -= n
			if c.overCap && c.pending <= s.cfg.OutboundSoftCap {
				// 回落到软上限以下，下次越过时重新告警
				c.overCap = false
			}
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.closeConn(c, err)
			return
		}
		if c.wpos < len(head) {
			return
		}
		c.wq.Remove()
		c.wpos = 0
	}
	if err := s.writeDone(c); err != nil {
		s.closeConn(c, err)
	}
}
