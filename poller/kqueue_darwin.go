//go:build darwin

package poller

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq     int
	wfd    int // 写端，用于唤醒
	rfd    int // 读端，注册到 kqueue
	events []unix.Kevent_t
	// 记录每个 fd 当前的读写兴趣，Mod 时只提交差异
	interest map[FD][2]bool
	mu       sync.RWMutex // Wake 与 Close 互斥，避免写入已关闭（可能被复用）的 fd
	closed   bool

	// Wait 复用的合并索引与唤醒管道读缓冲
	index   map[FD]int
	wakeBuf [16]byte
}

// New 创建 kqueue poller，maxEvents 为单次 Wait 的事件上限。
func New(maxEvents int) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	// 使用管道作为唤醒
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := p[0], p[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	kev := unix.Kevent_t{
		Ident:  uint64(rfd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err = unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{
		kq:       kq,
		wfd:      wfd,
		rfd:      rfd,
		events:   make([]unix.Kevent_t, maxEvents),
		interest: make(map[FD][2]bool),
		index:    make(map[FD]int),
	}, nil
}

func change(fd FD, filter int16, on bool) unix.Kevent_t {
	flags := uint16(unix.EV_DELETE)
	if on {
		flags = unix.EV_ADD
	}
	return unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
}

func (p *kqueuePoller) Register(fd FD, readable, writable bool) error {
	var changes []unix.Kevent_t
	if readable {
		changes = append(changes, change(fd, unix.EVFILT_READ, true))
	}
	if writable {
		changes = append(changes, change(fd, unix.EVFILT_WRITE, true))
	}
	p.interest[fd] = [2]bool{readable, writable}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Mod(fd FD, readable, writable bool) error {
	cur := p.interest[fd]
	var changes []unix.Kevent_t
	if cur[0] != readable {
		changes = append(changes, change(fd, unix.EVFILT_READ, readable))
	}
	if cur[1] != writable {
		changes = append(changes, change(fd, unix.EVFILT_WRITE, writable))
	}
	p.interest[fd] = [2]bool{readable, writable}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Unregister(fd FD) error {
	cur, ok := p.interest[fd]
	delete(p.interest, fd)
	if !ok {
		return unix.ENOENT
	}
	var changes []unix.Kevent_t
	if cur[0] {
		changes = append(changes, change(fd, unix.EVFILT_READ, false))
	}
	if cur[1] {
		changes = append(changes, change(fd, unix.EVFILT_WRITE, false))
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Wake() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	b := [1]byte{1}
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	dst = dst[:0]
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	// kqueue 对同一 fd 的读写分别上报，这里合并为一个事件
	index := p.index
	clear(index)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)
		if fd == p.rfd {
			for {
				if _, rerr := unix.Read(p.rfd, p.wakeBuf[:]); rerr != nil {
					break
				}
			}
			continue
		}
		var k Kind
		switch ev.Filter {
		case unix.EVFILT_READ:
			k |= Readable
		case unix.EVFILT_WRITE:
			k |= Writable
		}
		if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			k |= Hangup
		}
		if j, ok := index[fd]; ok {
			dst[j].Kind |= k
			continue
		}
		index[fd] = len(dst)
		dst = append(dst, Event{FD: fd, Kind: k})
	}
	return dst, nil
}
