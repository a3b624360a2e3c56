package poller

import "time"

// FD 表示文件描述符。
type FD = int

// Kind 为就绪类型位图。
type Kind uint8

const (
	Readable Kind = 1 << iota
	Writable
	// Hangup 表示对端挂断或 socket 出错（EPOLLHUP/EPOLLERR/EV_EOF）。
	Hangup
)

// Event 是一次 Wait 返回的就绪项。
type Event struct {
	FD   FD
	Kind Kind
}

// Poller 提供注册与有界等待。
// 除 Wake 外，所有方法只能在事件循环所在 goroutine 中调用。
type Poller interface {
	Register(fd FD, readable, writable bool) error
	Mod(fd FD, readable, writable bool) error
	Unregister(fd FD) error
	// Wait 最多阻塞 timeout（<0 表示无限），把就绪事件追加到 dst[:0] 并返回。
	// 返回的切片是本轮快照，调用方在遍历期间修改注册不影响它。
	// 被 Wake 唤醒或 EINTR 时可能返回空切片。
	Wait(timeout time.Duration, dst []Event) ([]Event, error)
	// Wake 使正在进行或下一次 Wait 立即返回，可从任意 goroutine 调用。
	Wake() error
	Close() error
}

func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := int(timeout / time.Millisecond)
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	return ms
}
