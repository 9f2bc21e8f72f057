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

package protocol

import (
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
)

// ErrUnrecognised 数据无法被当前 decoder 识别
//
// dispatcher 收到此错误后会将数据作为 unrecognised_stream / unrecognised_datagram 上报
var ErrUnrecognised = errors.New("protocol: unrecognised")

// Unrecognised 返回带原因的 ErrUnrecognised
func Unrecognised(format string, args ...any) error {
	return errors.Wrapf(ErrUnrecognised, format, args...)
}

// Decoder 协议解码器定义
//
// 每个 Context 持有一个独立的 Decoder 实例 同一实例的调用是串行的
type Decoder interface {
	// Decode 解析数据 不允许修改 v 中的任何字节 也不允许在调用返回后持有 v
	//
	// 对于面向连接的 Context v 为当前所有未被消费的字节 返回值为本次消费的字节数
	// 返回 0 表示需要更多数据 对于非面向连接的 Context v 为整个数据报
	//
	// 所有事件都需在 Decode 返回前通过 Env.Observer 同步发出
	Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error)
}

// Env decoder 运行环境 由 dispatcher 提供
type Env interface {
	// Observer 返回事件消费方
	Observer() observer.Observer

	// Dispatch 创建 parent 的子 Context 并使用 proto 对应的 decoder 解析 v
	//
	// 子 Context 为瞬时对象 在 Dispatch 返回前即被释放
	Dispatch(parent *flowctx.Context, proto socket.Proto, addrs []flowctx.Address, v zerocopy.View, t time.Time)

	// DispatchPacket 分发隧道内层解析出的传输层数据包
	DispatchPacket(parent *flowctx.Context, pkt socket.L4Packet)
}

// CreateDecoderFunc 创建 Decoder 实例
type CreateDecoderFunc func(env Env, opts common.Options) Decoder

var decoderFactory = map[socket.Proto]CreateDecoderFunc{}

// Register 注册 Decoder 实现函数
func Register(proto socket.Proto, f CreateDecoderFunc) {
	decoderFactory[proto] = f
}

// Get 获取 Decoder 实现函数
func Get(proto socket.Proto) (CreateDecoderFunc, error) {
	f, ok := decoderFactory[proto]
	if !ok {
		return nil, errors.Errorf("decoder factory (%s) not found", proto)
	}
	return f, nil
}

// Protos 返回所有已注册的协议
func Protos() []socket.Proto {
	protos := make([]socket.Proto, 0, len(decoderFactory))
	for proto := range decoderFactory {
		protos = append(protos, proto)
	}
	return protos
}
