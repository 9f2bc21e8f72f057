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

package pip

import (
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common/socket"
)

var (
	// ErrNotIP 数据不是 IPv4/IPv6 报文
	ErrNotIP = errors.New("pip: not ip packet")

	// ErrIPv6Disabled 仅允许解析 IPv4
	ErrIPv6Disabled = errors.New("pip: ipv6 disabled")
)

// 常见的 IP Protocol Number
const (
	ProtoICMP   uint8 = 1
	ProtoTCP    uint8 = 6
	ProtoUDP    uint8 = 17
	ProtoGRE    uint8 = 47
	ProtoESP    uint8 = 50
	ProtoICMPv6 uint8 = 58
)

// Parse 将 IP 报文解析为 socket.L4Packet
//
// 返回的数据包 Payload 引用 b 的内存 不做任何拷贝
// 负载长度以 IP 头部声明的长度为准 多余的链路层填充会被丢弃
//
// * TCP/UDP 报文返回 *socket.TCPSegment / *socket.UDPDatagram
// * 分片报文以及其他协议返回 *socket.IPDatagram 由上层按照 Protocol 选择 decoder
func Parse(ts time.Time, b []byte, ipv4Only bool) (socket.L4Packet, error) {
	if len(b) == 0 {
		return nil, ErrNotIP
	}

	var st socket.Tuple
	var proto uint8
	var payload []byte
	var fragment bool

	switch b[0] >> 4 {
	case 4:
		var ipv4 layers.IPv4
		if err := ipv4.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, errors.Wrap(err, "decode ipv4")
		}
		st.SrcIP = socket.ToIPV4(ipv4.SrcIP)
		st.DstIP = socket.ToIPV4(ipv4.DstIP)
		proto = uint8(ipv4.Protocol)
		payload = ipv4.Payload
		fragment = ipv4.FragOffset != 0 || ipv4.Flags&layers.IPv4MoreFragments != 0

	case 6:
		if ipv4Only {
			return nil, ErrIPv6Disabled
		}
		var ipv6 layers.IPv6
		if err := ipv6.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, errors.Wrap(err, "decode ipv6")
		}
		st.SrcIP = socket.ToIPV6(ipv6.SrcIP)
		st.DstIP = socket.ToIPV6(ipv6.DstIP)
		proto = uint8(ipv6.NextHeader)
		payload = ipv6.Payload

	default:
		return nil, ErrNotIP
	}

	if !fragment {
		switch proto {
		case ProtoTCP:
			var tcp layers.TCP
			if err := tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err == nil {
				st.SrcPort = socket.Port(tcp.SrcPort)
				st.DstPort = socket.Port(tcp.DstPort)
				return &socket.TCPSegment{
					Tuple:   st,
					Time:    ts,
					SYN:     tcp.SYN,
					FIN:     tcp.FIN,
					RST:     tcp.RST,
					Seq:     tcp.Seq,
					Payload: tcp.Payload,
				}, nil
			}

		case ProtoUDP:
			var udp layers.UDP
			if err := udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err == nil {
				st.SrcPort = socket.Port(udp.SrcPort)
				st.DstPort = socket.Port(udp.DstPort)
				return &socket.UDPDatagram{
					Tuple:   st,
					Time:    ts,
					Payload: udp.Payload,
				}, nil
			}
		}
	}

	return &socket.IPDatagram{
		Tuple:    st,
		Time:     ts,
		Protocol: proto,
		Payload:  payload,
	}, nil
}

// ProtoOf 返回 IP Protocol Number 对应的协议标签
func ProtoOf(n uint8) (socket.Proto, bool) {
	switch n {
	case ProtoGRE:
		return socket.ProtoGRE, true
	case ProtoESP:
		return socket.ProtoESP, true
	case ProtoICMP, ProtoICMPv6:
		return socket.ProtoICMP, true
	case ProtoTCP:
		return socket.ProtoTCP, true
	case ProtoUDP:
		return socket.ProtoUDP, true
	}
	return "", false
}
