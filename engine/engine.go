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

package engine

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/serialx/hashring"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/dispatch"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/rescue"
	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/observer"
)

var (
	// ErrClosed Engine 已经停止
	ErrClosed = errors.New("engine: closed")

	// ErrQueueFull 分区队列已满 数据包被丢弃
	ErrQueueFull = errors.New("engine: queue full")
)

// message 分区队列中的消息 pkt 为 nil 时表示过期清理指令
type message struct {
	pkt     socket.L4Packet
	expired time.Duration
}

type partition struct {
	id         int
	label      string
	queue      chan message
	dispatcher *dispatch.Dispatcher
}

// handle 处理单条消息 panic 只会中断当前消息 不影响后续数据包以及其他分区
func (p *partition) handle(msg message) {
	defer rescue.HandleCrash("engine")

	if msg.pkt == nil {
		if n := p.dispatcher.RemoveExpired(msg.expired); n > 0 {
			logger.Debugf("partition %d removed %d expired contexts", p.id, n)
		}
		return
	}

	handledPackets.WithLabelValues(p.label).Inc()
	p.dispatcher.OnPacket(msg.pkt)
}

func (p *partition) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for msg := range p.queue {
		p.handle(msg)
	}

	func() {
		defer rescue.HandleCrash("engine")
		p.dispatcher.Close()
	}()
	logger.Debugf("partition %d stopped", p.id)
}

// Engine 按照 flow 将数据包分区处理
//
// 同一个 flow 的所有数据包 (包括双向以及隧道内层) 总是落在同一个分区 分区内串行 分区间并行
// 所有分区共享同一个 flowctx.Sequence 因此 Context ID 在整个 Engine 内唯一
// observer 会被多个分区并发调用 需要自行保证并发安全
type Engine struct {
	partitions []*partition
	nodes      map[string]int
	ring       *hashring.HashRing

	mut     sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// New 创建 Engine 实例 调用 Start 后才会开始处理数据包
func New(cfg Config, dcfg dispatch.Config, obs observer.Observer) (*Engine, error) {
	n := cfg.GetPartitions()
	seq := &flowctx.Sequence{}

	nodes := make([]string, 0, n)
	e := &Engine{
		partitions: make([]*partition, 0, n),
		nodes:      make(map[string]int, n),
	}
	for i := 0; i < n; i++ {
		d, err := dispatch.New(dcfg, seq, obs)
		if err != nil {
			return nil, err
		}

		label := strconv.Itoa(i)
		node := "partition-" + label
		nodes = append(nodes, node)
		e.nodes[node] = i
		e.partitions = append(e.partitions, &partition{
			id:         i,
			label:      label,
			queue:      make(chan message, cfg.GetQueueSize()),
			dispatcher: d,
		})
	}
	e.ring = hashring.New(nodes)
	return e, nil
}

// Start 启动所有分区
func (e *Engine) Start() {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.started || e.closed {
		return
	}
	e.started = true
	for _, p := range e.partitions {
		e.wg.Add(1)
		go p.run(&e.wg)
	}
}

// Submit 提交数据包
//
// 数据包的负载会被复制 调用方可以在返回后复用其内存
// 分区队列已满时返回 ErrQueueFull
func (e *Engine) Submit(pkt socket.L4Packet) error {
	e.mut.RLock()
	defer e.mut.RUnlock()

	if e.closed {
		return ErrClosed
	}

	p := e.partitions[e.partitionOf(pkt)]
	select {
	case p.queue <- message{pkt: clonePacket(pkt)}:
		return nil
	default:
		droppedPackets.WithLabelValues(p.label).Inc()
		return ErrQueueFull
	}
}

// SubmitWait 提交数据包 分区队列已满时阻塞等待 直到入队成功或者 ctx 被取消
//
// 用于离线数据源 保证数据包不会因为队列满而丢失
func (e *Engine) SubmitWait(ctx context.Context, pkt socket.L4Packet) error {
	e.mut.RLock()
	defer e.mut.RUnlock()

	if e.closed {
		return ErrClosed
	}

	p := e.partitions[e.partitionOf(pkt)]
	select {
	case p.queue <- message{pkt: clonePacket(pkt)}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveExpired 通知所有分区清理超过 d 未活跃的链接
//
// 清理指令与数据包在同一队列中排队 因此与数据包串行执行
func (e *Engine) RemoveExpired(d time.Duration) {
	e.mut.RLock()
	defer e.mut.RUnlock()

	if e.closed || !e.started {
		return
	}
	for _, p := range e.partitions {
		p.queue <- message{expired: d}
	}
}

// Stop 停止接收数据包 等待所有分区处理完队列中的消息后关闭全部链接
func (e *Engine) Stop() {
	e.mut.Lock()
	if e.closed {
		e.mut.Unlock()
		return
	}
	e.closed = true
	for _, p := range e.partitions {
		close(p.queue)
	}
	started := e.started
	e.mut.Unlock()

	if !started {
		for _, p := range e.partitions {
			e.wg.Add(1)
			go p.run(&e.wg)
		}
	}
	e.wg.Wait()
}

// Pending 返回每个分区队列中等待处理的消息数量
func (e *Engine) Pending() []int {
	pending := make([]int, 0, len(e.partitions))
	for _, p := range e.partitions {
		pending = append(pending, len(p.queue))
	}
	return pending
}

// partitionOf 使用与方向无关的最外层 Tuple 计算分区
func (e *Engine) partitionOf(pkt socket.L4Packet) int {
	st := pkt.SocketTuple().Canonical()
	node, ok := e.ring.GetNode(string(pkt.Proto()) + " " + st.String())
	if !ok {
		return 0
	}
	return e.nodes[node]
}

func clonePacket(pkt socket.L4Packet) socket.L4Packet {
	switch p := pkt.(type) {
	case *socket.TCPSegment:
		cp := *p
		cp.Payload = bytes.Clone(p.Payload)
		return &cp
	case *socket.UDPDatagram:
		cp := *p
		cp.Payload = bytes.Clone(p.Payload)
		return &cp
	case *socket.IPDatagram:
		cp := *p
		cp.Payload = bytes.Clone(p.Payload)
		return &cp
	}
	return pkt
}
