package client

import (
	"context"
	"errors"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/legamerdc/gline/protocol"
)

type Handler interface {
	OnOpen(c *Client)
	OnFrame(c *Client, frame []byte)
	OnClose(c *Client, err error)
}

// Client 为行协议客户端，读循环复用服务端的 protocol.Framer。
type Client struct {
	conn   net.Conn
	fr     *protocol.Framer
	mu     sync.Mutex
	closed bool
}

// Dial 建立连接并启动读循环。
func Dial(ctx context.Context, network, address string, h Handler) (*Client, error) {
	cn := NewConnector(network, address)
	cn.Connect(ctx)
	nc, err := cn.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return New(nc, h, protocol.DefaultCapacity), nil
}

// New 包装已建立的连接；capacity 为入站缓冲容量（单帧上限）。
func New(nc net.Conn, h Handler, capacity int) *Client {
	c := &Client{conn: nc, fr: protocol.NewFramer(capacity)}
	h.OnOpen(c)
	go c.readLoop(h)
	return c
}

func (c *Client) readLoop(h Handler) {
	buf := make([]byte, c.fr.Cap())
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			perr := c.fr.Feed(buf[:n], func(frame []byte) error {
				h.OnFrame(c, frame)
				return nil
			})
			if perr != nil {
				log.WithField("remote", c.conn.RemoteAddr()).Warnf("client: parse error: %v", perr)
				c.shutdown()
				h.OnClose(c, perr)
				return
			}
		}
		if err != nil {
			if c.shutdown() {
				// 本端主动关闭
				err = nil
			}
			h.OnClose(c, err)
			return
		}
	}
}

// shutdown 关闭底层连接，返回此前是否已由 Close 关闭。
func (c *Client) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.closed
	c.closed = true
	_ = c.conn.Close()
	return was
}

// Write 原样发送 p。
func (c *Client) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	_, err := c.conn.Write(p)
	return err
}

// WriteFrame 发送 frame 并追加分隔符。
func (c *Client) WriteFrame(frame []byte) error {
	b := make([]byte, 0, len(frame)+1)
	b = append(b, frame...)
	b = append(b, protocol.Delimiter)
	return c.Write(b)
}

func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close 关闭连接；读循环随后以 nil 错误回调 OnClose。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
