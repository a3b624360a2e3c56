package gline

import "errors"

var (
	// ErrPlatformNotSupported 非 Linux/Darwin 平台（需要 epoll 或 kqueue）
	ErrPlatformNotSupported = errors.New("gline: platform not supported (requires epoll or kqueue)")

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("gline: invalid argument")

	// ErrServerClosed 服务已停止或正在停止
	ErrServerClosed = errors.New("gline: server closed")

	// ErrNotListening Serve 前未成功 Listen，或已有事件循环在运行
	ErrNotListening = errors.New("gline: server not listening")

	// ErrConnClosed 连接已关闭或已请求关闭
	ErrConnClosed = errors.New("gline: connection closed")

	// ErrBroadcastFull 广播队列已满，稍后重试
	ErrBroadcastFull = errors.New("gline: broadcast queue full")
)

// errStopFeed 用于在 Handler 请求关闭连接后中止本次帧解析
var errStopFeed = errors.New("gline: stop feed")
