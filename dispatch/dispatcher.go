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

package dispatch

import (
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/connstream"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
	"github.com/packetd/flowmon/protocol/pip"
)

// protoIP 未知 IP 协议号的 Context 标签
const protoIP socket.Proto = "ip"

// conn 面向连接的 Context 及其独占的 decoder
type conn struct {
	ctx     *flowctx.Context
	decoder protocol.Decoder
}

// Dispatcher 负责将数据包组织为 Context 并分发给对应的 decoder
//
// Dispatcher 不是并发安全的 所有调用需要串行 engine 按 flow 分区后每个分区持有一个实例
// 多个 Dispatcher 可以共享同一个 flowctx.Sequence 以保证 Context ID 全局唯一
type Dispatcher struct {
	cfg             Config
	arena           *flowctx.Arena
	obs             observer.Observer
	ports           *portTable
	maxStreamBuffer int
	options         map[socket.Proto]common.Options
	conns           map[flowctx.ID]*conn
}

var _ protocol.Env = (*Dispatcher)(nil)

// New 创建 Dispatcher 实例
func New(cfg Config, seq *flowctx.Sequence, obs observer.Observer) (*Dispatcher, error) {
	pps, err := cfg.Protocols.ProtoPorts()
	if err != nil {
		return nil, err
	}
	ports, err := newPortTable(pps)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		cfg:             cfg,
		arena:           flowctx.NewArena(seq, flowctx.Options{FrozenTTL: cfg.GetFrozenTTL()}),
		obs:             obs,
		ports:           ports,
		maxStreamBuffer: cfg.GetMaxStreamBuffer(),
		options:         make(map[socket.Proto]common.Options),
		conns:           make(map[flowctx.ID]*conn),
	}, nil
}

// Observer 返回事件消费方
func (d *Dispatcher) Observer() observer.Observer {
	return d.obs
}

// Arena 返回 Dispatcher 持有的 Context 集合
func (d *Dispatcher) Arena() *flowctx.Arena {
	return d.arena
}

// OnPacket 处理由网卡或者抓包文件解析得到的顶层数据包
func (d *Dispatcher) OnPacket(pkt socket.L4Packet) {
	d.DispatchPacket(nil, pkt)
}

// DispatchPacket 处理数据包 parent 为 nil 时表示顶层数据包
func (d *Dispatcher) DispatchPacket(parent *flowctx.Context, pkt socket.L4Packet) {
	dispatchedPackets.WithLabelValues(string(pkt.Proto())).Inc()

	switch p := pkt.(type) {
	case *socket.TCPSegment:
		d.onSegment(parent, p)

	case *socket.UDPDatagram:
		proto, ok := d.ports.Decide(socket.L4ProtoUDP, p.Tuple)
		if !ok {
			proto = socket.ProtoUDP
		}
		d.onDatagram(parent, proto, flowctx.TupleAddresses(socket.L4ProtoUDP, p.Tuple), p.Payload, p.Time)

	case *socket.IPDatagram:
		proto, ok := pip.ProtoOf(p.Protocol)
		if !ok {
			proto = protoIP
		}
		d.onDatagram(parent, proto, flowctx.TupleAddresses(socket.L4ProtoIP, p.Tuple), p.Payload, p.Time)
	}
}

// Dispatch 创建 parent 的瞬时子 Context 并解析 v
func (d *Dispatcher) Dispatch(parent *flowctx.Context, proto socket.Proto, addrs []flowctx.Address, v zerocopy.View, t time.Time) {
	d.onDatagram(parent, proto, addrs, v.Bytes(), t)
}

func (d *Dispatcher) onDatagram(parent *flowctx.Context, proto socket.Proto, addrs []flowctx.Address, payload []byte, t time.Time) {
	ctx := d.arena.Create(parent, proto, addrs)
	defer d.arena.Release(ctx)

	t = ctx.Stamp(t)
	v := zerocopy.NewView(payload)
	dec := d.newDecoder(proto)
	if dec == nil {
		d.unrecognisedDatagram(ctx, v, t)
		return
	}

	n, err := dec.Decode(ctx, v, t)
	if err == nil {
		return
	}

	logger.Debugf("failed to decode %s datagram (context %d): %v", ctx.Path(), ctx.ID(), err)
	n = clamp(n, v.Len())
	rest, _ := v.Advance(n)
	d.unrecognisedDatagram(ctx, rest, t)
}

func (d *Dispatcher) onSegment(parent *flowctx.Context, seg *socket.TCPSegment) {
	proto, ok := d.ports.Decide(socket.L4ProtoTCP, seg.Tuple)
	if !ok {
		proto = socket.ProtoTCP
	}

	key := d.arena.KeyOf(parent, socket.L4ProtoTCP, seg.Tuple)
	ctx, created, ok := d.arena.Resolve(key, parent, proto, flowctx.TupleAddresses(socket.L4ProtoTCP, seg.Tuple))
	if !ok {
		frozenPackets.Inc()
		return
	}

	t := ctx.Stamp(seg.Time)
	if created {
		d.conns[ctx.ID()] = &conn{ctx: ctx, decoder: d.newDecoder(proto)}
		activeContexts.Inc()
		d.obs.ConnectionUp(ctx, t)
	}

	err := ctx.Stream().Write(seg, func(v zerocopy.View) int {
		return d.decodeStream(ctx, v, t)
	})
	if err != nil && !errors.Is(err, connstream.ErrClosed) {
		logger.Debugf("failed to write %s: %v", seg, err)
	}

	if !seg.FIN && !seg.RST {
		return
	}
	d.teardown(ctx, t)
	if seg.RST {
		if mirror, ok := d.arena.Lookup(key.Mirror()); ok {
			d.teardown(mirror, mirror.Stamp(seg.Time))
		}
	}
}

// decodeStream 解析字节流 返回消费的字节数
//
// decoder 报告无法识别 或者未消费的字节超过 maxStreamBuffer 时 Context 转为 opaque
// 此后所有字节均作为 unrecognised_stream 上报
func (d *Dispatcher) decodeStream(ctx *flowctx.Context, v zerocopy.View, t time.Time) int {
	c := d.conns[ctx.ID()]
	if ctx.Opaque() || c == nil || c.decoder == nil {
		d.unrecognisedStream(ctx, v, t)
		return v.Len()
	}

	n, err := c.decoder.Decode(ctx, v, t)
	n = clamp(n, v.Len())
	if n > 0 {
		ctx.Advance(n)
	}

	rest, _ := v.Advance(n)
	switch {
	case err != nil:
		logger.Debugf("failed to decode %s stream (context %d): %v", ctx.Path(), ctx.ID(), err)
	case rest.Len() >= d.maxStreamBuffer:
		logger.Debugf("%s stream (context %d) buffered %d bytes without progress", ctx.Path(), ctx.ID(), rest.Len())
	default:
		return n
	}

	ctx.SetOpaque()
	if !rest.Empty() {
		d.unrecognisedStream(ctx, rest, t)
	}
	return v.Len()
}

func (d *Dispatcher) unrecognisedStream(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	if v.Empty() {
		return
	}
	unrecognisedBytes.WithLabelValues(string(ctx.Proto())).Add(float64(v.Len()))
	pos := ctx.Advance(v.Len())
	d.obs.UnrecognisedStream(ctx, v, pos, t)
}

func (d *Dispatcher) unrecognisedDatagram(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	if v.Empty() {
		return
	}
	unrecognisedBytes.WithLabelValues(string(ctx.Proto())).Add(float64(v.Len()))
	d.obs.UnrecognisedDatagram(ctx, v, t)
}

// teardown 上报剩余的缓存字节以及 connection_down 并释放 Context
func (d *Dispatcher) teardown(ctx *flowctx.Context, t time.Time) {
	if ctx.IsClosed() {
		return
	}
	if s := ctx.Stream(); s != nil {
		d.unrecognisedStream(ctx, zerocopy.NewView(s.Drain()), t)
	}

	d.obs.ConnectionDown(ctx, t)
	delete(d.conns, ctx.ID())
	d.arena.Release(ctx)
	activeContexts.Dec()
}

// RemoveExpired 关闭超过 d 未活跃的面向连接 Context
func (d *Dispatcher) RemoveExpired(expired time.Duration) int {
	now := time.Now()
	ctxs := d.arena.Expired(now, expired)
	for _, ctx := range ctxs {
		d.teardown(ctx, ctx.Stamp(now))
	}
	return len(ctxs)
}

// Close 关闭所有存活的 Context
func (d *Dispatcher) Close() {
	now := time.Now()
	for _, ctx := range d.arena.Connected() {
		d.teardown(ctx, ctx.Stamp(now))
	}
	d.arena.Close()
}

func (d *Dispatcher) newDecoder(proto socket.Proto) protocol.Decoder {
	f, err := protocol.Get(proto)
	if err != nil {
		return nil
	}

	opts, ok := d.options[proto]
	if !ok {
		opts = d.cfg.DecoderOptions(proto)
		d.options[proto] = opts
	}
	return f(d, opts)
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
