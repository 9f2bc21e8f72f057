// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flowctx

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/connstream"
	"github.com/packetd/flowmon/internal/fasttime"
)

var (
	// ErrContextClosed 对已经关闭的 Context 执行变更操作
	ErrContextClosed = errors.New("flowctx: context closed")

	// ErrInvalidParent 父 Context 不存在或已关闭
	ErrInvalidParent = errors.New("flowctx: invalid parent")

	// ErrNegativeAdvance 游标只能前进
	ErrNegativeAdvance = errors.New("flowctx: negative advance")
)

// ID Context 唯一标识 单调递增且不会复用
type ID uint64

// Context 表示一个被识别的通信实体 (链接 数据报流或者隧道)
//
// 每个 Context 只属于一个分区 所有的变更操作都由该分区的 worker 串行执行
// 读操作 (ID/Parent/Addresses 等) 在创建后不可变 可安全地跨 goroutine 访问
type Context struct {
	id        ID
	parent    *Context
	parentID  ID
	proto     socket.Proto
	addrs     []Address
	connected bool
	key       FlowKey
	path      uint64
	createdAt time.Time

	stream connstream.Stream
	peer   *Context
	values map[any]any

	cursor   atomic.Int64
	activeAt atomic.Int64
	lastSeen atomic.Int64
	closed   atomic.Bool
	opaque   bool
}

// ID 返回 Context 标识
func (c *Context) ID() ID {
	return c.id
}

// Parent 返回父 Context 顶层 Context 返回 nil
//
// 父 Context 在子 Context 的整个生命周期内均可访问 即使父 Context 已经被释放
func (c *Context) Parent() *Context {
	return c.parent
}

// ParentID 返回父 Context 标识 顶层 Context 返回 0
func (c *Context) ParentID() ID {
	return c.parentID
}

// Proto 返回协议标签
func (c *Context) Proto() socket.Proto {
	return c.proto
}

// Addresses 返回地址列表的副本
func (c *Context) Addresses() []Address {
	dst := make([]Address, len(c.addrs))
	copy(dst, c.addrs)
	return dst
}

// Connected 是否为面向连接的 Context
func (c *Context) Connected() bool {
	return c.connected
}

// Key 返回 FlowKey 仅面向连接的 Context 有意义
func (c *Context) Key() FlowKey {
	return c.key
}

// CreatedAt 返回创建时间
func (c *Context) CreatedAt() time.Time {
	return c.createdAt
}

// Stream 返回字节流重组状态 非面向连接的 Context 返回 nil
func (c *Context) Stream() connstream.Stream {
	return c.stream
}

// Peer 返回同一链接反方向的 Context 尚未出现时返回 nil
//
// 反方向 Context 释放后仍会被返回 此时仅可读取其 Value
func (c *Context) Peer() *Context {
	return c.peer
}

// SetValue 在 Context 上保存解析状态 供同一链接另一方向的 decoder 读取
func (c *Context) SetValue(k, v any) {
	c.mustOpen()
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[k] = v
}

// Value 读取 SetValue 保存的状态 Context 关闭后仍可读取
func (c *Context) Value(k any) any {
	return c.values[k]
}

// Cursor 返回当前字节流位置
func (c *Context) Cursor() int64 {
	return c.cursor.Load()
}

// Advance 将游标前进 n 字节 并返回前进前的位置
//
// n 为负数或者 Context 已关闭时 panic
func (c *Context) Advance(n int) int64 {
	if n < 0 {
		panic(errors.Wrapf(ErrNegativeAdvance, "context %d advance %d", c.id, n))
	}
	c.mustOpen()
	return c.cursor.Add(int64(n)) - int64(n)
}

// Stamp 记录活跃时间并返回单调不减的时间戳
//
// 乱序到达的数据包不会使同一 Context 的事件时间回退
func (c *Context) Stamp(t time.Time) time.Time {
	c.mustOpen()
	c.activeAt.Store(fasttime.UnixTimestamp())

	ns := t.UnixNano()
	for {
		last := c.lastSeen.Load()
		if ns <= last {
			return time.Unix(0, last)
		}
		if c.lastSeen.CompareAndSwap(last, ns) {
			return t
		}
	}
}

// ActiveAt 返回最近一次活跃的墙钟时间 精度为秒
func (c *Context) ActiveAt() time.Time {
	return time.Unix(c.activeAt.Load(), 0)
}

// Opaque Context 是否已经放弃解析
//
// 一旦进入 opaque 状态 此后所有字节都将作为 unrecognised_stream 上报
func (c *Context) Opaque() bool {
	return c.opaque
}

// SetOpaque 将 Context 标记为 opaque
func (c *Context) SetOpaque() {
	c.mustOpen()
	c.opaque = true
}

// IsClosed Context 是否已经关闭
func (c *Context) IsClosed() bool {
	return c.closed.Load()
}

// Chain 返回从顶层到当前 Context 的链路 (包含自身)
func (c *Context) Chain() []*Context {
	var chain []*Context
	for cur := c; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Path 返回链路的协议标签路径 如 `gre/ipv4/tcp`
func (c *Context) Path() string {
	chain := c.Chain()
	protos := make([]string, 0, len(chain))
	for _, ctx := range chain {
		protos = append(protos, string(ctx.proto))
	}
	return strings.Join(protos, "/")
}

// Lookup 沿着父链查找第一个满足类别的地址
func (c *Context) Lookup(class Class, dir Direction) (Address, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		for _, addr := range cur.addrs {
			if addr.Class == class && addr.Direction == dir {
				return addr, true
			}
		}
	}
	return Address{}, false
}

func (c *Context) mustOpen() {
	if c.closed.Load() {
		panic(errors.Wrapf(ErrContextClosed, "context %d", c.id))
	}
}
