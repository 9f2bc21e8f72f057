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
	"sync/atomic"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/internal/zerocopy"
)

/*
* TCP Layout
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|          Source Ports          |       Destination Ports        |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                        Sequence Number                        |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                    Acknowledgment Number                      |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|  Data |           |U|A|P|R|S|F|                               |
| Offset| Reserved  |R|C|S|S|Y|I|            Window             |
|       |           |G|K|H|T|N|N|                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

type tcpStream struct {
	st      socket.Tuple // 使用 st 作为 Stream 的唯一标识
	started bool         // 是否已经确定了起始序号
	next    uint32       // 期望收到的下一个序号
	pending []byte       // 未被消费的尾部字节
	closed  atomic.Bool  // 链接是否结束态标识
	reset   bool
	stats   Stats
}

// NewTCPStream 根据 socket.Tuple 创建 TCPStream 实例
func NewTCPStream(st socket.Tuple) Stream {
	return &tcpStream{st: st}
}

func (s *tcpStream) SocketTuple() socket.Tuple {
	return s.st
}

func (s *tcpStream) IsClosed() bool {
	return s.closed.Load()
}

func (s *tcpStream) Reset() bool {
	return s.reset
}

func (s *tcpStream) Buffered() int {
	return len(s.pending)
}

func (s *tcpStream) Drain() []byte {
	b := s.pending
	s.pending = nil
	return b
}

func (s *tcpStream) Stats() Stats {
	stats := s.stats
	s.stats = Stats{}
	return stats
}

func (s *tcpStream) Write(pkt socket.L4Packet, decodeFunc DecodeFunc) error {
	seg, ok := pkt.(*socket.TCPSegment)
	if !ok || seg.Tuple != s.st {
		return ErrSocketNotMatch
	}

	// 已经关闭的数据流不允许再写入
	if s.closed.Load() {
		return ErrClosed
	}
	s.stats.Packets++

	// FIN/RST 标志链接已经终止 但本包携带的数据仍需处理
	if seg.FIN || seg.RST {
		defer s.closed.Store(true)
		s.reset = seg.RST
	}

	seq := seg.Seq
	if seg.SYN {
		// SYN 占用一个序号
		seq++
		if !s.started {
			s.started = true
			s.next = seq
		}
	}

	payload := s.trim(seq, seg.Payload)
	if len(payload) == 0 {
		return nil
	}
	s.stats.Bytes += uint64(len(payload))
	s.deliver(payload, decodeFunc)
	return nil
}

// trim 根据期望序号裁剪掉已经收到的字节
//
// 使用 32 位有符号差值比较序号 可以正确处理序号回绕
func (s *tcpStream) trim(seq uint32, payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	if !s.started {
		// stream 监听到的第一个 segment 可能已经是在一个数据流中间
		s.started = true
		s.next = seq
	}

	end := seq + uint32(len(payload))
	diff := int32(seq - s.next)
	switch {
	case diff < 0:
		// 收到了更早之前的数据 可能是因为重传 或者是数据包阻塞在了某个网络节点上
		overlap := int(-diff)
		if overlap >= len(payload) {
			s.stats.Duplicated += uint64(len(payload))
			return nil
		}
		s.stats.Duplicated += uint64(overlap)
		payload = payload[overlap:]

	case diff > 0:
		// 中间的数据已经丢失 不做处理 直接提交给应用层
		s.stats.Gaps++
	}

	s.next = end
	return payload
}

func (s *tcpStream) deliver(payload []byte, decodeFunc DecodeFunc) {
	if decodeFunc == nil {
		s.pending = append(s.pending, payload...)
		return
	}

	// 无缓存数据时直接使用 payload 仅复制未被消费的尾部
	if len(s.pending) == 0 {
		n := clamp(decodeFunc(zerocopy.NewView(payload)), len(payload))
		if n < len(payload) {
			s.pending = append(s.pending[:0], payload[n:]...)
		}
		return
	}

	s.pending = append(s.pending, payload...)
	n := clamp(decodeFunc(zerocopy.NewView(s.pending)), len(s.pending))
	rest := copy(s.pending, s.pending[n:])
	s.pending = s.pending[:rest]
}

func clamp(n, size int) int {
	if n < 0 {
		return 0
	}
	if n > size {
		return size
	}
	return n
}
