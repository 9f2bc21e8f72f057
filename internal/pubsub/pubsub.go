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

package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/packetd/flowmon/observer"
)

// Filter 订阅方的过滤条件 返回 false 的 Record 不会进入队列
type Filter func(r *observer.Record) bool

// Queue PubSub 返回的订阅队列实例
type Queue interface {
	// ID 队列唯一标识
	ID() string

	// PopTimeout 从队列中弹出一个元素 操作会 block 直到有元素或者超时
	PopTimeout(timeout time.Duration) (*observer.Record, bool)

	// Push 推送一个元素至队列中 队列已满时丢弃
	Push(r *observer.Record)

	// Dropped 因队列已满而被丢弃的 Record 数量
	Dropped() int64

	// Close 关闭并清理队列
	Close()
}

type channel struct {
	id      string
	filter  Filter
	mut     sync.RWMutex
	ch      chan *observer.Record
	closed  bool
	dropped atomic.Int64
}

func newChannel(size int, filter Filter) *channel {
	if size <= 0 {
		size = 1
	}

	return &channel{
		id:     uuid.New().String(),
		filter: filter,
		ch:     make(chan *observer.Record, size),
	}
}

func (ch *channel) ID() string {
	return ch.id
}

func (ch *channel) PopTimeout(timeout time.Duration) (*observer.Record, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case r, ok := <-ch.ch:
		return r, ok

	case <-ctx.Done():
		return nil, false
	}
}

func (ch *channel) Push(r *observer.Record) {
	if ch.filter != nil && !ch.filter(r) {
		return
	}

	ch.mut.RLock()
	defer ch.mut.RUnlock()

	if ch.closed {
		return
	}

	select {
	case ch.ch <- r:
	default:
		ch.dropped.Add(1)
	}
}

func (ch *channel) Dropped() int64 {
	return ch.dropped.Load()
}

func (ch *channel) Close() {
	ch.mut.Lock()
	defer ch.mut.Unlock()

	if !ch.closed {
		ch.closed = true
		close(ch.ch)
	}
}

// PubSub 将 Record 广播给所有订阅方
//
// 订阅方消费过慢时只会丢弃自身队列中的数据 不会阻塞发布方
type PubSub struct {
	mut    sync.RWMutex
	queues map[string]Queue
}

func New() *PubSub {
	return &PubSub{
		queues: make(map[string]Queue),
	}
}

func (p *PubSub) Num() int {
	p.mut.RLock()
	defer p.mut.RUnlock()

	return len(p.queues)
}

// Subscribe 创建订阅队列 filter 为空时接收全部 Record
func (p *PubSub) Subscribe(size int, filter Filter) Queue {
	p.mut.Lock()
	defer p.mut.Unlock()

	ch := newChannel(size, filter)
	p.queues[ch.ID()] = ch
	return ch
}

func (p *PubSub) Publish(r *observer.Record) {
	p.mut.RLock()
	defer p.mut.RUnlock()

	for _, q := range p.queues {
		q.Push(r)
	}
}

// Unsubscribe 取消订阅并关闭队列
func (p *PubSub) Unsubscribe(q Queue) {
	p.mut.Lock()
	delete(p.queues, q.ID())
	p.mut.Unlock()

	q.Close()
}

// KindFilter 仅接收指定类型的 Record
func KindFilter(kinds ...observer.Kind) Filter {
	if len(kinds) == 0 {
		return nil
	}

	set := make(map[observer.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(r *observer.Record) bool {
		_, ok := set[r.Kind]
		return ok
	}
}
