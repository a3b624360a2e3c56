package protocol

import (
	"bytes"
	"errors"
)

// Delimiter 为帧分隔符（'\n'）。
const Delimiter byte = '\n'

// DefaultCapacity 为入站缓冲默认容量，同时决定单帧上限（不含分隔符需小于该值）。
const DefaultCapacity = 1024

// ErrFrameTooLarge 表示累计字节达到缓冲容量仍未见分隔符，属于协议违例。
var ErrFrameTooLarge = errors.New("protocol: frame exceeds buffer capacity")

// Framer 从字节流中切分以 '\n' 结尾的完整帧。
// 跨多次 Feed 保留最后一个分隔符之后的残余字节（partial tail）。
// 非并发安全：由单一 goroutine（reactor 或 client 读循环）独占使用。
type Framer struct {
	partial []byte // 容量固定为 capacity，从不增长
}

// NewFramer 返回容量为 capacity 的 Framer；capacity <= 1 时使用 DefaultCapacity。
func NewFramer(capacity int) *Framer {
	if capacity <= 1 {
		capacity = DefaultCapacity
	}
	return &Framer{partial: make([]byte, 0, capacity)}
}

// Cap 返回入站缓冲容量。
func (f *Framer) Cap() int { return cap(f.partial) }

// Buffered 返回当前残余字节数。
func (f *Framer) Buffered() int { return len(f.partial) }

// Free 返回缓冲剩余空间，reactor 据此限制单次读取量。
func (f *Framer) Free() int { return cap(f.partial) - len(f.partial) }

// Reset 丢弃残余字节。
func (f *Framer) Reset() { f.partial = f.partial[:0] }

// Feed 扫描新到达的字节 p，按到达顺序对每个完整帧回调 onFrame（已去掉分隔符）。
// 帧切片仅在回调期间有效，回调方若需保留必须自行拷贝。
//
// 帧长度 >= 容量，或残余达到容量仍无分隔符时返回 ErrFrameTooLarge；
// 该规则与 p 的切分方式无关。onFrame 返回错误时停止扫描并原样返回。
func (f *Framer) Feed(p []byte, onFrame func(frame []byte) error) error {
	limit := cap(f.partial)
	for len(p) > 0 {
		i := bytes.IndexByte(p, Delimiter)
		if i < 0 {
			break
		}
		var frame []byte
		if len(f.partial) == 0 {
			if i >= limit {
				return ErrFrameTooLarge
			}
			frame = p[:i]
		} else {
			if len(f.partial)+i >= limit {
				return ErrFrameTooLarge
			}
			f.partial = append(f.partial, p[:i]...)
			frame = f.partial
		}
		p = p[i+1:]
		err := onFrame(frame)
		f.partial = f.partial[:0]
		if err != nil {
			return err
		}
	}
	if len(p) == 0 {
		return nil
	}
	if len(f.partial)+len(p) >= limit {
		return ErrFrameTooLarge
	}
	f.partial = append(f.partial, p...)
	return nil
}
