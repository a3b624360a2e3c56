package gline

// Handler 为用户回调接口。
// 所有回调都在事件循环 goroutine 中串行执行，要求无阻塞返回。
// OnFrame 的 frame 仅在回调期间有效。
type Handler interface {
	OnOpen(c *Conn)
	OnFrame(c *Conn, frame []byte)
	OnClose(c *Conn, err error)
}

// HandlerFuncs 将若干函数适配为 Handler，nil 字段忽略。
type HandlerFuncs struct {
	Open  func(c *Conn)
	Frame func(c *Conn, frame []byte)
	Close func(c *Conn, err error)
}

func (h HandlerFuncs) OnOpen(c *Conn) {
	if h.Open != nil {
		h.Open(c)
	}
}

func (h HandlerFuncs) OnFrame(c *Conn, frame []byte) {
	if h.Frame != nil {
		h.Frame(c, frame)
	}
}

func (h HandlerFuncs) OnClose(c *Conn, err error) {
	if h.Close != nil {
		h.Close(c, err)
	}
}

// DefaultEchoPrefix 为回显前缀
const DefaultEchoPrefix = "#"

// EchoHandler 把每个帧加上 Prefix 后回写给发送方。
// Logger 非 nil 时记录收到的完整帧。
type EchoHandler struct {
	Prefix string
	Logger Logger
}

func (h EchoHandler) OnOpen(c *Conn) {}

func (h EchoHandler) OnFrame(c *Conn, frame []byte) {
	if h.Logger != nil {
		h.Logger.Log("complete message from " + c.String() + ", [" + string(frame) + "]")
	}
	reply := make([]byte, 0, len(h.Prefix)+len(frame))
	reply = append(reply, h.Prefix...)
	reply = append(reply, frame...)
	// 只可能是 ErrConnClosed：连接已在关闭中，回显无处可写
	_ = c.WriteFrame(reply)
}

func (h EchoHandler) OnClose(c *Conn, err error) {}

// RelayHandler 把每个帧扇出给所有在线连接（包括发送方）。
type RelayHandler struct{}

func (RelayHandler) OnOpen(c *Conn) {}

func (RelayHandler) OnFrame(c *Conn, frame []byte) {
	msg := make([]byte, 0, len(frame)+1)
	msg = append(msg, frame...)
	msg = append(msg, '\n')
	c.Broadcast(msg)
}

func (RelayHandler) OnClose(c *Conn, err error) {}
