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

package sniffer

import (
	"context"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/confengine"
	"github.com/packetd/flowmon/protocol/pip"
)

// ErrUnsupportedLinkType 不支持的链路层类型
var ErrUnsupportedLinkType = errors.New("sniffer: unsupported link type")

// OnL4Packet 触发 L4Packet 的解析回调
type OnL4Packet func(pkt socket.L4Packet)

// Stats 嗅探统计
type Stats struct {
	Packets  uint64 // 读取的帧数量
	Decoded  uint64 // 成功解析并投递的数据包数量
	Skipped  uint64 // 链路层或 IP 层无法解析的帧数量
	Captured time.Time
}

// Sniffer 负责实现网络数据包的嗅探并调用 On* 函数进行处理
type Sniffer interface {
	// Name 返回 Sniffer 名称
	Name() string

	// SetOnL4Packet 设置 OnL4Packet 回调函数
	SetOnL4Packet(f OnL4Packet)

	// Offline 数据源是否为离线文件
	//
	// 离线数据源的读取速度不受网络限制 上游需要对其施加反压而不是丢弃数据包
	Offline() bool

	// Run 阻塞直到数据读取完毕或者 ctx 被取消
	Run(ctx context.Context) error

	// Stats 返回当前统计
	Stats() Stats

	// Close 关闭 Sniffer 并释放关联资源
	Close()
}

// CreateFunc 创建 Sniffer 的函数类型
type CreateFunc func(conf *Config) (Sniffer, error)

var snifferFactory = map[string]CreateFunc{}

// Register 注册 Sniffer 工厂函数
func Register(f CreateFunc, names ...string) {
	for _, name := range names {
		snifferFactory[name] = f
	}
}

// Get 获取 Sniffer 工厂函数
func Get(name string) (CreateFunc, error) {
	f, ok := snifferFactory[name]
	if !ok {
		return nil, errors.Errorf("sniffer factory (%s) not found", name)
	}
	return f, nil
}

// DefaultEngine 未指定时使用的嗅探引擎
const DefaultEngine = "pcapfile"

func New(conf *confengine.Config) (Sniffer, error) {
	var cfg Config
	if err := conf.UnpackOptional("sniffer", &cfg); err != nil {
		return nil, err
	}
	return NewWithConfig(&cfg)
}

func NewWithConfig(cfg *Config) (Sniffer, error) {
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}

	f, err := Get(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// DecodeFrame 剥离链路层 返回 IP 报文
//
// 支持 Ethernet (含 802.1Q/QinQ) / Null / Loopback / Linux SLL / Raw
func DecodeFrame(lt layers.LinkType, b []byte) ([]byte, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		var ether layers.Ethernet
		if err := ether.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		return stripVLAN(ether.EthernetType, ether.Payload)

	case layers.LinkTypeNull, layers.LinkTypeLoop:
		var lb layers.Loopback
		if err := lb.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		return lb.Payload, nil

	case layers.LinkTypeLinuxSLL:
		var sll layers.LinuxSLL
		if err := sll.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		return stripVLAN(sll.EthernetType, sll.Payload)

	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return b, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedLinkType, "%s", lt)
}

func stripVLAN(typ layers.EthernetType, payload []byte) ([]byte, error) {
	for typ == layers.EthernetTypeDot1Q || typ == layers.EthernetTypeQinQ {
		var vlan layers.Dot1Q
		if err := vlan.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		typ = vlan.Type
		payload = vlan.Payload
	}

	switch typ {
	case layers.EthernetTypeIPv4, layers.EthernetTypeIPv6:
		return payload, nil
	}
	return nil, errors.Errorf("sniffer: unsupported ethernet type %s", typ)
}

// ParsePacket 将链路层帧解析为 socket.L4Packet
func ParsePacket(lt layers.LinkType, ts time.Time, b []byte, ipv4Only bool) (socket.L4Packet, error) {
	content, err := DecodeFrame(lt, b)
	if err != nil {
		return nil, err
	}
	return pip.Parse(ts, content, ipv4Only)
}
