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
	"net"
	"time"
)

const (
	// MaxIPPacketSize IP 数据包最大大小
	MaxIPPacketSize = 65535

	// TCPMsl 最长报文周期（Maximum Segment Lifetime）
	//
	// https://datatracker.ietf.org/doc/html/rfc9293#section-3.4.2-2
	// RFC 9293 取 MSL 为 2 分钟
	//
	// 不同操作系统的默认 MSL
	// * Linux: 1min
	// * BSD: 30s
	// * Windows: 2min
	TCPMsl = time.Minute
)

// Version IP 版本 v4/v6
type Version uint8

const (
	V4 Version = iota
	V6
)

// IPV 基于 net.IP 做了一层封装
//
// 记录了 IP Bytes 以及协议版本信息 可直接作为 map key 使用
type IPV struct {
	IP      [net.IPv6len]byte
	Version Version
}

// ToIPV4 将 net.IP 转换为 IPV4 版本
func ToIPV4(ip net.IP) IPV {
	var dst [net.IPv6len]byte
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	copy(dst[:], ip)
	return IPV{
		IP:      dst,
		Version: V4,
	}
}

// ToIPV6 将 net.IP 转换为 IPV6 版本
func ToIPV6(ip net.IP) IPV {
	var dst [net.IPv6len]byte
	copy(dst[:], ip)
	return IPV{
		IP:      dst,
		Version: V6,
	}
}

// NetIP 将 IPV 转换为 net.IP
func (ipv IPV) NetIP() net.IP {
	if ipv.Version == V4 {
		return ipv.IP[:net.IPv4len]
	}
	return ipv.IP[:]
}

func (ipv IPV) String() string {
	return ipv.NetIP().String()
}

type Port uint16

// Tuple 四元组标识
//
// 对于全双工链接来说 并无准确的源 IP 目标 IP 的说法 但 Socket 本身是有方向的
// 纯 IP 层数据包的 Tuple 端口均为 0
type Tuple struct {
	SrcIP   IPV
	DstIP   IPV
	SrcPort Port
	DstPort Port
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s:%d > %s:%d", t.SrcIP, t.SrcPort, t.DstIP, t.DstPort)
}

// Mirror 反转链接 即通信的另一端
func (t Tuple) Mirror() Tuple {
	return Tuple{
		SrcIP:   t.DstIP,
		DstIP:   t.SrcIP,
		SrcPort: t.DstPort,
		DstPort: t.SrcPort,
	}
}

// Canonical 返回与方向无关的 Tuple
//
// 同一条链接的两个方向得到相同的结果 用于分区路由
func (t Tuple) Canonical() Tuple {
	m := t.Mirror()
	if t.less(m) {
		return t
	}
	return m
}

func (t Tuple) less(o Tuple) bool {
	for i := 0; i < net.IPv6len; i++ {
		if t.SrcIP.IP[i] != o.SrcIP.IP[i] {
			return t.SrcIP.IP[i] < o.SrcIP.IP[i]
		}
	}
	return t.SrcPort <= o.SrcPort
}

// L4Proto Layer4 传输层协议
//
// L4ProtoIP 表示未经传输层解析的 IP 数据包 (GRE/ESP/ICMP 等)
type L4Proto string

const (
	L4ProtoTCP L4Proto = "tcp"
	L4ProtoUDP L4Proto = "udp"
	L4ProtoIP  L4Proto = "ip"
)

// Proto 协议标签
//
// 每个 Context 创建时绑定一个协议标签 dispatcher 依据标签选择 decoder
// 标签既可以是应用层协议 也可以是隧道/封装层
type Proto string

const (
	ProtoIPv4    Proto = "ipv4"
	ProtoIPv6    Proto = "ipv6"
	ProtoTCP     Proto = "tcp"
	ProtoUDP     Proto = "udp"
	ProtoICMP    Proto = "icmp"
	ProtoGRE     Proto = "gre"
	ProtoPPP     Proto = "ppp"
	ProtoESP     Proto = "esp"
	ProtoHTTP    Proto = "http"
	ProtoDNS     Proto = "dns"
	ProtoNTP     Proto = "ntp"
	ProtoSIP     Proto = "sip"
	ProtoSIPSSL  Proto = "sip_ssl"
	ProtoSMTP    Proto = "smtp"
	ProtoFTP     Proto = "ftp"
	ProtoIMAP    Proto = "imap"
	ProtoIMAPSSL Proto = "imap_ssl"
	ProtoPOP3    Proto = "pop3"
	ProtoPOP3SSL Proto = "pop3_ssl"
	ProtoRTP     Proto = "rtp"
	ProtoRTPSSL  Proto = "rtp_ssl"
)

// ProtoBased 返回应用层协议所基于的传输层协议
func ProtoBased(p Proto) (L4Proto, bool) {
	protos := map[Proto]L4Proto{
		ProtoHTTP:    L4ProtoTCP,
		ProtoDNS:     L4ProtoUDP,
		ProtoNTP:     L4ProtoUDP,
		ProtoSIP:     L4ProtoUDP,
		ProtoSIPSSL:  L4ProtoTCP,
		ProtoSMTP:    L4ProtoTCP,
		ProtoFTP:     L4ProtoTCP,
		ProtoIMAP:    L4ProtoTCP,
		ProtoIMAPSSL: L4ProtoTCP,
		ProtoPOP3:    L4ProtoTCP,
		ProtoPOP3SSL: L4ProtoTCP,
		ProtoRTP:     L4ProtoUDP,
		ProtoRTPSSL:  L4ProtoUDP,
	}

	v, ok := protos[p]
	return v, ok
}

// ProtoPorts 应用层端口列表
type ProtoPorts struct {
	Ports []Port
	Proto Proto
}
