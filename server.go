package gline

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/legamerdc/gline/poller"
)

// State 为事件循环状态机。
type State int32

const (
	StateInitializing State = iota
	StateListening
	StateDraining
	StateStopped
)

func (st State) String() string {
	switch st {
	case StateInitializing:
		return "initializing"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Server 为单 goroutine 的行协议 reactor。
// 连接与 poller 注册只在事件循环 goroutine 中修改；
// 跨 goroutine 的入口只有 Broadcast/TryBroadcast、Stop 与只读快照。
type Server struct {
	cfg Config
	h   Handler
	log Logger

	state    atomic.Int32
	stopping atomic.Bool
	live     atomic.Int64

	mu      sync.Mutex // 保护 pl/lfd/addr/serving 的初始化与停止
	pl      poller.Poller
	lfd     int
	addr    net.Addr
	serving bool

	// 以下仅事件循环使用
	conns   map[int]*Conn // fd -> conn
	reap    []*Conn
	events  []poller.Event
	scratch []byte

	// fd 耗尽时暂停 accept 兴趣，acceptResume 之后重新打开
	acceptPaused  bool
	acceptStarved bool // 本轮耗尽是否已记录日志
	acceptResume  time.Time

	bcast    chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer 构造未启动的 Server 实例
func NewServer(cfg Config, h Handler) (*Server, error) {
	if h == nil {
		return nil, ErrInvalidArgument
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		h:       h,
		log:     cfg.Logger,
		lfd:     -1,
		conns:   make(map[int]*Conn),
		scratch: make([]byte, cfg.ReadBufferSize),
		bcast:   make(chan []byte, cfg.BroadcastQueueSize),
		done:    make(chan struct{}),
	}
	s.state.Store(int32(StateInitializing))
	return s, nil
}

// State 返回状态快照。
func (s *Server) State() State { return State(s.state.Load()) }

// Addr 返回实际监听地址，Listen 成功前为 nil。
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Conns 返回在线连接数快照。
func (s *Server) Conns() int { return int(s.live.Load()) }

// Done 在服务进入 Stopped 后关闭。
func (s *Server) Done() <-chan struct{} { return s.done }

// ListenAndServe 等价于 Listen 后 Serve。
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Stop 请求停止并等待事件循环退出，或直到 ctx 结束。
// 停止是协作式的：事件循环在下一轮开始时观察到停止标志。重复调用无副作用。
//
// Handler 回调运行在事件循环上，等待会死锁；回调中应传入已取消的 ctx，
// 此时 Stop 只设置停止标志并返回 ctx.Err()，当前回调返回后事件循环退出。
func (s *Server) Stop(ctx context.Context) error {
	s.stopping.Store(true)
	s.mu.Lock()
	if !s.serving {
		// 事件循环从未运行，直接释放资源
		if s.State() != StateStopped {
			s.shutdown()
		}
		s.mu.Unlock()
		return nil
	}
	pl := s.pl
	s.mu.Unlock()
	_ = pl.Wake()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// markClosing 标记连接待回收；真正的关闭在当前回调返回后由 flushReap 执行。
func (s *Server) markClosing(c *Conn, err error) {
	if c.closed || c.closing {
		return
	}
	c.closing = true
	c.closeErr = err
	s.reap = append(s.reap, c)
}

func (s *Server) flushReap() {
	for len(s.reap) > 0 {
		c := s.reap[0]
		s.reap = s.reap[1:]
		s.closeConn(c, c.closeErr)
	}
	s.reap = s.reap[:0]
}
