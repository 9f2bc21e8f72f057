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
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/connstream"
	"github.com/packetd/flowmon/internal/fasttime"
)

// Sequence Context ID 分配器
//
// 多个 Arena 可共享同一个 Sequence 以保证全局唯一
type Sequence struct {
	n atomic.Uint64
}

// Next 返回下一个 ID 从 1 开始
func (s *Sequence) Next() ID {
	return ID(s.n.Add(1))
}

// Options Arena 配置项
type Options struct {
	// FrozenTTL 链接销毁后同一 FlowKey 在此时间内不会被重新创建
	//
	// 用于吸收 FIN/RST 之后迟到的重传包 为 0 时不启用
	FrozenTTL time.Duration

	// OnCreate 新建 Context 时回调
	OnCreate func(ctx *Context)
}

// Arena 管理 Context 的创建 查找与释放
//
// 所有 Context 由 Arena 持有 调用方只持有指针引用
// 面向连接的 Context 通过 FlowKey 索引 非面向连接的 Context 为瞬时对象 由调用方在分发结束后释放
type Arena struct {
	seq  *Sequence
	opts Options

	mut    sync.RWMutex
	live   map[ID]*Context
	flows  map[FlowKey]*Context
	frozen *socket.TTLCache[FlowKey]
}

// NewArena 创建 Arena 实例 seq 为 nil 时使用独立的 Sequence
func NewArena(seq *Sequence, opts Options) *Arena {
	if seq == nil {
		seq = &Sequence{}
	}
	a := &Arena{
		seq:   seq,
		opts:  opts,
		live:  make(map[ID]*Context),
		flows: make(map[FlowKey]*Context),
	}
	if opts.FrozenTTL > 0 {
		a.frozen = socket.NewTTLCache[FlowKey](opts.FrozenTTL)
	}
	return a
}

// Close 释放 Arena 的后台资源 不会关闭 Context
func (a *Arena) Close() {
	if a.frozen != nil {
		a.frozen.Close()
	}
}

// Create 创建非面向连接的 Context
//
// parent 为 nil 表示顶层 Context parent 已关闭或者不属于该 Arena 时 panic
func (a *Arena) Create(parent *Context, proto socket.Proto, addrs []Address) *Context {
	a.mut.Lock()
	defer a.mut.Unlock()

	return a.create(parent, proto, addrs, FlowKey{}, false)
}

// Resolve 查找或创建面向连接的 Context
//
// 命中已有 Context 时 parent/proto/addrs 参数将被忽略
// FlowKey 处于冻结期内时返回 ok=false
func (a *Arena) Resolve(key FlowKey, parent *Context, proto socket.Proto, addrs []Address) (ctx *Context, created bool, ok bool) {
	a.mut.Lock()
	defer a.mut.Unlock()

	if ctx, hit := a.flows[key]; hit {
		return ctx, false, true
	}
	if a.frozen != nil && a.frozen.Has(key) {
		return nil, false, false
	}
	return a.create(parent, proto, addrs, key, true), true, true
}

// Lookup 查找面向连接的 Context
func (a *Arena) Lookup(key FlowKey) (*Context, bool) {
	a.mut.RLock()
	defer a.mut.RUnlock()

	ctx, ok := a.flows[key]
	return ctx, ok
}

// Get 根据 ID 查找存活的 Context
func (a *Arena) Get(id ID) (*Context, bool) {
	a.mut.RLock()
	defer a.mut.RUnlock()

	ctx, ok := a.live[id]
	return ctx, ok
}

// KeyOf 返回 parent 之下 Tuple 对应的 FlowKey
func (a *Arena) KeyOf(parent *Context, l4 socket.L4Proto, st socket.Tuple) FlowKey {
	var path uint64
	if parent != nil {
		path = pathHash(parent)
	}
	return FlowKey{Path: path, L4: l4, Tuple: st}
}

func (a *Arena) create(parent *Context, proto socket.Proto, addrs []Address, key FlowKey, connected bool) *Context {
	var parentID ID
	if parent != nil {
		if parent.IsClosed() {
			panic(errors.Wrapf(ErrInvalidParent, "parent %d closed", parent.id))
		}
		if _, ok := a.live[parent.id]; !ok {
			panic(errors.Wrapf(ErrInvalidParent, "parent %d not found", parent.id))
		}
		parentID = parent.id
	}

	dst := make([]Address, len(addrs))
	copy(dst, addrs)

	ctx := &Context{
		id:        a.seq.Next(),
		parent:    parent,
		parentID:  parentID,
		proto:     proto,
		addrs:     dst,
		connected: connected,
		key:       key,
		path:      key.Path,
		createdAt: time.Now(),
	}
	ctx.activeAt.Store(fasttime.UnixTimestamp())
	if parent != nil && !connected {
		ctx.path = pathHash(parent)
	}
	if connected && key.L4 == socket.L4ProtoTCP {
		ctx.stream = connstream.NewTCPStream(key.Tuple)
	}

	a.live[ctx.id] = ctx
	if connected {
		a.flows[key] = ctx
		if peer, ok := a.flows[key.Mirror()]; ok {
			ctx.peer = peer
			peer.peer = ctx
		}
	}
	if a.opts.OnCreate != nil {
		a.opts.OnCreate(ctx)
	}
	return ctx
}

// Release 关闭并释放 Context
//
// 面向连接的 Context 释放后其 FlowKey 进入冻结期
// 重复释放或者释放不属于该 Arena 的 Context 将 panic
func (a *Arena) Release(ctx *Context) {
	a.mut.Lock()
	defer a.mut.Unlock()

	if _, ok := a.live[ctx.id]; !ok || !ctx.closed.CompareAndSwap(false, true) {
		panic(errors.Wrapf(ErrContextClosed, "release context %d", ctx.id))
	}

	delete(a.live, ctx.id)
	if ctx.connected {
		delete(a.flows, ctx.key)
		if a.frozen != nil {
			a.frozen.Set(ctx.key)
		}
	}
}

// Expired 返回在 now 之前 d 时间内均未活跃的面向连接 Context
func (a *Arena) Expired(now time.Time, d time.Duration) []*Context {
	a.mut.RLock()
	defer a.mut.RUnlock()

	var expired []*Context
	for _, ctx := range a.flows {
		if now.Sub(ctx.ActiveAt()) > d {
			expired = append(expired, ctx)
		}
	}
	sortByID(expired)
	return expired
}

// Connected 返回所有存活的面向连接 Context
func (a *Arena) Connected() []*Context {
	a.mut.RLock()
	defer a.mut.RUnlock()

	ctxs := make([]*Context, 0, len(a.flows))
	for _, ctx := range a.flows {
		ctxs = append(ctxs, ctx)
	}
	sortByID(ctxs)
	return ctxs
}

// Len 返回存活的 Context 数量
func (a *Arena) Len() int {
	a.mut.RLock()
	defer a.mut.RUnlock()

	return len(a.live)
}

func sortByID(ctxs []*Context) {
	sort.Slice(ctxs, func(i, j int) bool {
		return ctxs[i].id < ctxs[j].id
	})
}
