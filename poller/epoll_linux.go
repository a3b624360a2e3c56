//go:build linux

package poller

import (
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	efd    int
	wfd    int // eventfd for wakeup
	events []unix.EpollEvent
	mu     sync.RWMutex // Wake 与 Close 互斥，避免写入已关闭（可能被复用）的 fd
	closed bool
}

// New 创建 epoll poller，maxEvents 为单次 Wait 的事件上限。
func New(maxEvents int) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	p := &epollPoller{efd: efd, wfd: wfd, events: make([]unix.EpollEvent, maxEvents)}
	// 注册 wakeup fd
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return p, nil
}

// 连接 fd 使用水平触发：写兴趣只在出站队列非空时打开，不会空转。
func interest(readable, writable bool) uint32 {
	var flag uint32
	if readable {
		flag |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if writable {
		flag |= unix.EPOLLOUT
	}
	return flag
}

func (p *epollPoller) Register(fd FD, readable, writable bool) error {
	ev := &unix.EpollEvent{Events: interest(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Mod(fd FD, readable, writable bool) error {
	ev := &unix.EpollEvent{Events: interest(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) Unregister(fd FD) error {
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wake() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}

func (p *epollPoller) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	dst = dst[:0]
	n, err := unix.EpollWait(p.efd, p.events, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	var efdBuf [8]byte
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		if fd == p.wfd {
			// 清空 eventfd
			for {
				if _, rerr := unix.Read(p.wfd, efdBuf[:]); rerr != nil {
					break
				}
			}
			continue
		}
		var k Kind
		if ev.Events&unix.EPOLLIN != 0 {
			k |= Readable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			k |= Writable
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			k |= Hangup
		}
		dst = append(dst, Event{FD: fd, Kind: k})
	}
	return dst, nil
}
