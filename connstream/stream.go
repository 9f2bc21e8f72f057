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

package connstream

import (
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/internal/zerocopy"
)

func newError(format string, args ...any) error {
	format = "connstream: " + format
	return errors.Errorf(format, args...)
}

var (
	// ErrSocketNotMatch socket 无法正确匹配
	ErrSocketNotMatch = newError("socket not match")

	// ErrClosed stream 已经处于 Close 状态
	ErrClosed = newError("closed")
)

// Stats Stream 的统计数据
type Stats struct {
	Packets    uint64 // 写入的数据包数量
	Bytes      uint64 // 提交给 DecodeFunc 的新字节数
	Duplicated uint64 // 重传导致被丢弃的字节数
	Gaps       uint64 // 检测到的序号空洞次数
}

// DecodeFunc 字节流的解析方法
//
// v 为当前所有未被消费的字节 返回本次消费的字节数
// 未被消费的尾部字节会被 Stream 缓存 并在下一次写入时与新数据拼接后再次提交
//
// v 仅在本次调用内有效 实现方不允许持有或修改其底层内存
type DecodeFunc func(v zerocopy.View) int

// Stream 代表了 Layer4 通信的 1 条带方向的数据流
//
// 程序并无真实持有 `链接` 以及 FD 仅是通过网卡数据分析
// 并构造出虚拟的字节流
//
// 因此对于单个 Connection 应该有 2 条 Stream
//
// 单个 Stream 的数据读写应该是串行的 `不允许也不应该成为并发操作`
type Stream interface {
	// SocketTuple 返回 Stream socket.Tuple 标识
	SocketTuple() socket.Tuple

	// IsClosed 返回 Stream 是否已经处于结束态
	//
	// 依赖 FIN Flags 或者 RST 数据包来判断
	IsClosed() bool

	// Reset 返回 Stream 是否由 RST 终止
	Reset() bool

	// Buffered 返回已缓存但尚未被消费的字节数
	Buffered() int

	// Drain 取出并清空所有缓存字节
	Drain() []byte

	// Stats 返回 Stream 打点数据
	Stats() Stats

	// Write 执行 segment 写入操作
	// 允许传入 DecodeFunc 对 Payload 进行流式解析
	//
	// Write 没有实现完整的 Layer4 协议栈 无法保证数据的完整性
	// 如果假定发送方的传包顺序 pkt1 > pkt2 > pkt3
	// 而接收方收到的顺序为 pkt1 > pkt3 > pkt2 则 pkt2 就会被丢弃
	Write(seg socket.L4Packet, decodeFunc DecodeFunc) error
}

// CreateStreamFunc 定义了创建 Stream 的方法
type CreateStreamFunc func(st socket.Tuple) Stream
