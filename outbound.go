package gline

// enqueue 追加 b 到连接出站队列尾部；队列由空变非空时打开写兴趣。
// b 的所有权转移给队列，调用方不得再修改。
func (s *Server) enqueue(c *Conn, b []byte) error {
	if c.closed || c.closing {
		return ErrConnClosed
	}
	if len(b) == 0 {
		return nil
	}
	wasEmpty := c.wq.Length() == 0
	c.wq.Add(b)
	c.pending += len(b)
	if !c.overCap && s.cfg.OutboundSoftCap > 0 && c.pending > s.cfg.OutboundSoftCap {
		c.overCap = true
		s.logf("server: %s outbound queue above soft cap (%d > %d bytes)", c, c.pending, s.cfg.OutboundSoftCap)
	}
	if wasEmpty && !c.writing {
		if err := s.pl.Mod(c.fd, true, true); err != nil {
			s.markClosing(c, err)
			return err
		}
		c.writing = true
	}
	return nil
}

// writeDone 在出站队列清空后关闭写兴趣。
func (s *Server) writeDone(c *Conn) error {
	c.overCap = false
	if !c.writing {
		return nil
	}
	if err := s.pl.Mod(c.fd, true, false); err != nil {
		return err
	}
	c.writing = false
	return nil
}

func (c *Conn) discardQueue() {
	for c.wq.Length() > 0 {
		c.wq.Remove()
	}
	c.wpos = 0
	c.pending = 0
}
