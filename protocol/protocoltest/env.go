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

// Package protocoltest 为 decoder 单测提供最小化的运行环境
package protocoltest

import (
	"net"
	"sync"
	"time"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
)

// Dispatched 记录一次子层分发
type Dispatched struct {
	Parent  flowctx.ID
	Proto   socket.Proto
	Addrs   []flowctx.Address
	Payload []byte
	Packet  socket.L4Packet
}

// Env 记录所有事件以及子层分发 不做任何实际的子层解析
type Env struct {
	Arena    *flowctx.Arena
	recorder *observer.Recorder

	mut        sync.Mutex
	port       socket.Port
	records    []*observer.Record
	dispatched []Dispatched
}

// NewEnv 创建 Env 实例
func NewEnv() *Env {
	env := &Env{Arena: flowctx.NewArena(nil, flowctx.Options{})}
	env.recorder = observer.NewRecorder(env.sink, observer.RecorderOptions{})
	return env
}

func (e *Env) sink(r *observer.Record) {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.records = append(e.records, r)
}

func (e *Env) Observer() observer.Observer {
	return e.recorder
}

func (e *Env) Dispatch(parent *flowctx.Context, proto socket.Proto, addrs []flowctx.Address, v zerocopy.View, _ time.Time) {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.dispatched = append(e.dispatched, Dispatched{
		Parent:  parent.ID(),
		Proto:   proto,
		Addrs:   addrs,
		Payload: v.Clone(),
	})
}

func (e *Env) DispatchPacket(parent *flowctx.Context, pkt socket.L4Packet) {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.dispatched = append(e.dispatched, Dispatched{
		Parent: parent.ID(),
		Packet: pkt,
	})
}

// Context 创建一个顶层 Context
func (e *Env) Context(proto socket.Proto) *flowctx.Context {
	return e.Arena.Create(nil, proto, nil)
}

// Conn 创建一对互为 Peer 的面向连接 Context
//
// client 为 10.0.0.1 -> 10.0.0.2 方向 每次调用使用不同的源端口
func (e *Env) Conn(proto socket.Proto, dstPort socket.Port) (client, server *flowctx.Context) {
	e.mut.Lock()
	e.port++
	st := socket.Tuple{
		SrcIP:   socket.ToIPV4(net.IPv4(10, 0, 0, 1)),
		DstIP:   socket.ToIPV4(net.IPv4(10, 0, 0, 2)),
		SrcPort: 40000 + e.port,
		DstPort: dstPort,
	}
	e.mut.Unlock()

	key := flowctx.FlowKey{L4: socket.L4ProtoTCP, Tuple: st}
	client, _, _ = e.Arena.Resolve(key, nil, proto, nil)
	server, _, _ = e.Arena.Resolve(key.Mirror(), nil, proto, nil)
	return client, server
}

// Records 返回所有记录
func (e *Env) Records() []*observer.Record {
	e.mut.Lock()
	defer e.mut.Unlock()
	return append([]*observer.Record(nil), e.records...)
}

// Kinds 返回所有记录的事件类型
func (e *Env) Kinds() []observer.Kind {
	e.mut.Lock()
	defer e.mut.Unlock()

	kinds := make([]observer.Kind, 0, len(e.records))
	for _, r := range e.records {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

// Dispatched 返回所有子层分发
func (e *Env) Dispatched() []Dispatched {
	e.mut.Lock()
	defer e.mut.Unlock()
	return append([]Dispatched(nil), e.dispatched...)
}

// Reset 清空记录
func (e *Env) Reset() {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.records = nil
	e.dispatched = nil
}
