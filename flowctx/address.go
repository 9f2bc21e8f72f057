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

package flowctx

import (
	"fmt"
	"net"
	"strconv"

	"github.com/packetd/flowmon/common/socket"
)

// Direction 地址在 Context 中的方向
type Direction uint8

const (
	DirSrc Direction = iota
	DirDst
)

func (d Direction) String() string {
	if d == DirSrc {
		return "src"
	}
	return "dst"
}

// Class 地址类别
type Class uint8

const (
	ClassNetwork   Class = iota // 网络层地址 ipv4/ipv6
	ClassHardware               // 硬件地址 mac
	ClassTransport              // 传输层端口 tcp/udp
	ClassTunnel                 // 隧道标识 gre key / pptp call id / esp spi
	ClassTarget                 // 监控目标标识
)

func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassHardware:
		return "hardware"
	case ClassTransport:
		return "transport"
	case ClassTunnel:
		return "tunnel"
	case ClassTarget:
		return "target"
	}
	return "unknown"
}

// Address 带类型的端点标识
//
// Value 存放原始字节 (以 string 形式保存使 Address 可比较 可作为 map key)
type Address struct {
	Class     Class
	Proto     string
	Value     string
	Direction Direction
}

// NetworkAddress 创建 IP 地址
func NetworkAddress(ip socket.IPV, dir Direction) Address {
	proto := "ipv4"
	if ip.Version == socket.V6 {
		proto = "ipv6"
	}
	return Address{
		Class:     ClassNetwork,
		Proto:     proto,
		Value:     string(ip.NetIP()),
		Direction: dir,
	}
}

// HardwareAddress 创建 MAC 地址
func HardwareAddress(mac net.HardwareAddr, dir Direction) Address {
	return Address{
		Class:     ClassHardware,
		Proto:     "mac",
		Value:     string(mac),
		Direction: dir,
	}
}

// TransportAddress 创建传输层端口
func TransportAddress(l4 socket.L4Proto, port socket.Port, dir Direction) Address {
	return Address{
		Class:     ClassTransport,
		Proto:     string(l4),
		Value:     string([]byte{byte(port >> 8), byte(port)}),
		Direction: dir,
	}
}

// TunnelAddress 创建隧道标识
func TunnelAddress(proto string, id uint32, dir Direction) Address {
	return Address{
		Class:     ClassTunnel,
		Proto:     proto,
		Value:     strconv.FormatUint(uint64(id), 10),
		Direction: dir,
	}
}

// TargetAddress 创建监控目标标识
func TargetAddress(id string) Address {
	return Address{
		Class: ClassTarget,
		Proto: "liid",
		Value: id,
	}
}

// TupleAddresses 将 Tuple 转换为地址列表 顺序为 srcIP dstIP srcPort dstPort
//
// l4 为 socket.L4ProtoIP 时不包含端口
func TupleAddresses(l4 socket.L4Proto, st socket.Tuple) []Address {
	addrs := []Address{
		NetworkAddress(st.SrcIP, DirSrc),
		NetworkAddress(st.DstIP, DirDst),
	}
	if l4 == socket.L4ProtoIP {
		return addrs
	}
	return append(addrs,
		TransportAddress(l4, st.SrcPort, DirSrc),
		TransportAddress(l4, st.DstPort, DirDst),
	)
}

// String 返回可读格式
func (a Address) String() string {
	switch a.Class {
	case ClassNetwork:
		return net.IP(a.Value).String()
	case ClassHardware:
		return net.HardwareAddr(a.Value).String()
	case ClassTransport:
		if len(a.Value) != 2 {
			return ""
		}
		return strconv.Itoa(int(a.Value[0])<<8 | int(a.Value[1]))
	}
	return a.Value
}

// Describe 返回带类别与方向的描述 如 `src ipv4:10.0.0.1`
func (a Address) Describe() string {
	if a.Class == ClassTarget {
		return fmt.Sprintf("%s:%s", a.Proto, a.Value)
	}
	return fmt.Sprintf("%s %s:%s", a.Direction, a.Proto, a.String())
}
