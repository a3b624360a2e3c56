package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

// Status 为连接建立状态。
type Status int32

const (
	StatusIdle Status = iota
	StatusPending
	StatusConnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

var errNotStarted = errors.New("client: connect not started")

// Connector 异步建立 TCP 连接，调用方通过 Status 轮询或 Wait 等待结果。
// 不做自动重连：失败后需要新建 Connector。
type Connector struct {
	Network string
	Address string
	Dialer  net.Dialer

	status atomic.Int32
	once   sync.Once
	done   chan struct{}
	conn   net.Conn
	err    error
}

func NewConnector(network, address string) *Connector {
	return &Connector{Network: network, Address: address, done: make(chan struct{})}
}

// Connect 发起非阻塞连接并立即返回；重复调用无副作用。
func (c *Connector) Connect(ctx context.Context) {
	c.once.Do(func() {
		c.status.Store(int32(StatusPending))
		go func() {
			conn, err := c.Dialer.DialContext(ctx, c.Network, c.Address)
			c.conn, c.err = conn, err
			if err != nil {
				c.status.Store(int32(StatusFailed))
			} else {
				c.status.Store(int32(StatusConnected))
			}
			close(c.done)
		}()
	})
}

// Status 返回当前状态快照。
func (c *Connector) Status() Status { return Status(c.status.Load()) }

// Err 返回失败原因，未失败时为 nil。
func (c *Connector) Err() error {
	if c.Status() != StatusFailed {
		return nil
	}
	<-c.done
	return c.err
}

// Wait 阻塞到连接建立完成或 ctx 结束。
func (c *Connector) Wait(ctx context.Context) (net.Conn, error) {
	if c.Status() == StatusIdle {
		return nil, errNotStarted
	}
	select {
	case <-c.done:
		return c.conn, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
