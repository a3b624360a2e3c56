package gline

import "context"

// Broadcast 提交一条广播消息（原样发送，不追加分隔符），可从任意 goroutine 调用。
// 队列满时阻塞调用方（背压），直到有空位、ctx 结束或服务停止。
// 成功入队后唤醒事件循环，消息在下一轮扇出给届时在线的每条连接。
//
// 不可在 Handler 回调中调用，回调中请使用 Conn.Broadcast。
func (s *Server) Broadcast(ctx context.Context, msg []byte) error {
	if s.stopping.Load() {
		return ErrServerClosed
	}
	b := make([]byte, len(msg))
	copy(b, msg)
	select {
	case s.bcast <- b:
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	s.wake()
	return nil
}

// TryBroadcast 为非阻塞版本，队列满时返回 ErrBroadcastFull。
func (s *Server) TryBroadcast(msg []byte) error {
	if s.stopping.Load() {
		return ErrServerClosed
	}
	b := make([]byte, len(msg))
	copy(b, msg)
	select {
	case s.bcast <- b:
	default:
		return ErrBroadcastFull
	}
	s.wake()
	return nil
}

// PendingBroadcasts 返回尚未扇出的广播条数。
func (s *Server) PendingBroadcasts() int { return len(s.bcast) }

func (s *Server) wake() {
	s.mu.Lock()
	pl := s.pl
	s.mu.Unlock()
	if pl != nil {
		_ = pl.Wake()
	}
}

// fanOut 在事件循环中取出全部待发广播，按提交顺序逐条扇出。
func (s *Server) fanOut() {
	for {
		select {
		case msg := <-s.bcast:
			s.fanOutOne(msg)
		default:
			s.flushReap()
			return
		}
	}
}

// fanOutOne 将 msg 追加到每条在线连接的出站队列，返回入队次数。
// 各连接共享同一只读切片。
func (s *Server) fanOutOne(msg []byte) int {
	if len(msg) == 0 {
		return 0
	}
	n := 0
	for _, c := range s.conns {
		if s.enqueue(c, msg) == nil {
			n++
		}
	}
	return n
}
