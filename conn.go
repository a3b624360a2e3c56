package gline

import (
	"net"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/legamerdc/gline/protocol"
)

// Conn 表示一条已接受的连接。
// 字段只由事件循环 goroutine 读写，因此无需加锁；
// 除 ID、RemoteAddr、String 外的方法只能在 Handler 回调中调用。
type Conn struct {
	ID   uuid.UUID
	Data any // 业务自定义上下文

	fd     int
	srv    *Server
	remote net.Addr

	fr *protocol.Framer
	// 出站队列：元素为 []byte，wpos 为队首块已写出的偏移
	wq      *queue.Queue
	wpos    int
	pending int
	writing bool // 是否已打开写就绪兴趣
	overCap bool // 是否处于软上限之上

	closing  bool // 已请求关闭，等待回收
	closeErr error
	closed   bool
}

func newConn(fd int, s *Server, remote net.Addr) *Conn {
	return &Conn{
		ID:     uuid.New(),
		fd:     fd,
		srv:    s,
		remote: remote,
		fr:     protocol.NewFramer(s.cfg.ReadBufferSize),
		wq:     queue.New(),
	}
}

// RemoteAddr 返回对端地址，未知时为 nil。
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// Server 返回连接所属的 Server。
func (c *Conn) Server() *Server { return c.srv }

func (c *Conn) String() string {
	if c.remote == nil {
		return "conn " + c.ID.String()
	}
	return "conn " + c.ID.String() + " (" + c.remote.String() + ")"
}

// Write 将 p 的副本追加到出站队列尾部，不附加分隔符。
func (c *Conn) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	b := make([]byte, len(p))
	copy(b, p)
	return c.srv.enqueue(c, b)
}

// WriteFrame 追加 frame 与分隔符 '\n'。
func (c *Conn) WriteFrame(frame []byte) error {
	b := make([]byte, 0, len(frame)+1)
	b = append(b, frame...)
	b = append(b, protocol.Delimiter)
	return c.srv.enqueue(c, b)
}

// Broadcast 在事件循环内把 msg 扇出给所有在线连接（包括 c 自身），返回入队次数。
// 回调中不可使用 Server.Broadcast：队列满时会阻塞事件循环。
func (c *Conn) Broadcast(msg []byte) int {
	if len(msg) == 0 {
		return 0
	}
	b := make([]byte, len(msg))
	copy(b, msg)
	return c.srv.fanOutOne(b)
}

// Pending 返回尚未写出的字节数。
func (c *Conn) Pending() int { return c.pending }

// Close 请求关闭连接：当前回调返回后回收，未写出的数据被丢弃。重复调用无副作用。
func (c *Conn) Close() error {
	c.srv.markClosing(c, nil)
	return nil
}
