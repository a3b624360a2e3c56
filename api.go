package gline

import (
	"net"
	"strconv"
	"time"

	"github.com/legamerdc/gline/protocol"
)

// Config 为服务端配置。
// 零值字段由 NewServer 用默认值补齐；Port 为 0 表示由内核分配端口。
type Config struct {
	Host               string        // 监听主机，如 "localhost"；空串表示所有地址
	Port               int           // 监听端口
	Backlog            int           // listen backlog，<=0 时使用 SOMAXCONN
	ReadBufferSize     int           // 每连接入站缓冲容量（字节），同时是单帧上限
	OutboundSoftCap    int           // 每连接出站队列软上限（字节），越过时告警但不丢数据
	BroadcastQueueSize int           // 广播队列容量（条）
	PollTimeout        time.Duration // 就绪等待超时，保证广播/停止检查及时
	MaxEvents          int           // 单次就绪等待的事件上限
	Logger             Logger        // 日志出口，nil 时使用 logrus 标准 logger
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		Host:               "localhost",
		Port:               2023,
		ReadBufferSize:     protocol.DefaultCapacity,
		OutboundSoftCap:    64 << 10, // 64 KiB
		BroadcastQueueSize: 128,
		PollTimeout:        100 * time.Millisecond,
		MaxEvents:          1024,
	}
}

// Address 返回 host:port 形式的监听地址。
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.OutboundSoftCap == 0 {
		c.OutboundSoftCap = d.OutboundSoftCap
	}
	if c.BroadcastQueueSize == 0 {
		c.BroadcastQueueSize = d.BroadcastQueueSize
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return ErrInvalidArgument
	case c.ReadBufferSize < 2:
		return ErrInvalidArgument
	case c.OutboundSoftCap < 0:
		return ErrInvalidArgument
	case c.BroadcastQueueSize < 0:
		return ErrInvalidArgument
	case c.PollTimeout < 0:
		// 必须有界，否则广播与停止检查可能无限延迟
		return ErrInvalidArgument
	case c.MaxEvents < 0:
		return ErrInvalidArgument
	}
	return nil
}
