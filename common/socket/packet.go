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

package socket

import (
	"fmt"
	"time"
)

// L4Packet 表示经过 IP 层解析后的数据包
//
// 有 TCP/UDP/IP 三种实现 Payload 仅在单次 dispatch 调用期间有效
type L4Packet interface {
	// Proto 返回 4 层协议
	Proto() L4Proto

	// SocketTuple 返回 Socket 四元组
	SocketTuple() Tuple

	// ArrivedTime 数据包到达时间
	ArrivedTime() time.Time

	// Data 返回数据包负载
	Data() []byte
}

// TCPSegment TCP L4Packet 接口实现
type TCPSegment struct {
	Tuple   Tuple
	Time    time.Time
	SYN     bool
	FIN     bool
	RST     bool
	Seq     uint32
	Payload []byte
}

func (s *TCPSegment) Proto() L4Proto {
	return L4ProtoTCP
}

func (s *TCPSegment) SocketTuple() Tuple {
	return s.Tuple
}

func (s *TCPSegment) ArrivedTime() time.Time {
	return s.Time
}

func (s *TCPSegment) Data() []byte {
	return s.Payload
}

func (s *TCPSegment) String() string {
	return fmt.Sprintf("stream %s seq: %d recv %d bytes", s.Tuple, s.Seq, len(s.Payload))
}

// UDPDatagram UDP L4Packet 接口实现
type UDPDatagram struct {
	Tuple   Tuple
	Time    time.Time
	Payload []byte
}

func (s *UDPDatagram) Proto() L4Proto {
	return L4ProtoUDP
}

func (s *UDPDatagram) SocketTuple() Tuple {
	return s.Tuple
}

func (s *UDPDatagram) ArrivedTime() time.Time {
	return s.Time
}

func (s *UDPDatagram) Data() []byte {
	return s.Payload
}

func (s *UDPDatagram) String() string {
	return fmt.Sprintf("datagram %s recv %d bytes", s.Tuple, len(s.Payload))
}

// IPDatagram 未被识别为 TCP/UDP 的 IP 数据包
//
// Protocol 为 IP 头部的 Next Protocol 字段 如 GRE(47) ESP(50) ICMP(1)
type IPDatagram struct {
	Tuple    Tuple
	Time     time.Time
	Protocol uint8
	Payload  []byte
}

func (s *IPDatagram) Proto() L4Proto {
	return L4ProtoIP
}

func (s *IPDatagram) SocketTuple() Tuple {
	return s.Tuple
}

func (s *IPDatagram) ArrivedTime() time.Time {
	return s.Time
}

func (s *IPDatagram) Data() []byte {
	return s.Payload
}

func (s *IPDatagram) String() string {
	return fmt.Sprintf("ip %s > %s proto %d recv %d bytes", s.Tuple.SrcIP, s.Tuple.DstIP, s.Protocol, len(s.Payload))
}
