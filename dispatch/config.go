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

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
)

type Config struct {
	Protocols Protocols `config:"protocols"`

	// MaxStreamBuffer 面向连接的 Context 最多缓存的未消费字节数
	MaxStreamBuffer int `config:"maxStreamBuffer"`

	// ConnExpired 未活跃链接过期时间
	ConnExpired time.Duration `config:"connExpired"`

	// FrozenTTL 链接关闭后 FlowKey 的冻结时长
	FrozenTTL time.Duration `config:"frozenTTL"`

	// Decoder 指定每种 decoder 解析特性 以协议标签为 key
	Decoder map[string]map[string]any `config:"decoder"`
}

func (c Config) GetMaxStreamBuffer() int {
	if c.MaxStreamBuffer <= 0 {
		return common.MaxStreamBuffer
	}
	return c.MaxStreamBuffer
}

func (c Config) GetConnExpired() time.Duration {
	if c.ConnExpired < time.Minute {
		return 5 * time.Minute
	}
	return c.ConnExpired
}

func (c Config) GetFrozenTTL() time.Duration {
	if c.FrozenTTL <= 0 {
		return 2 * socket.TCPMsl
	}
	return c.FrozenTTL
}

// DecoderOptions 返回 proto 对应的 decoder 配置
func (c Config) DecoderOptions(proto socket.Proto) common.Options {
	opts := common.NewOptions()
	for k, v := range c.Decoder[string(proto)] {
		opts.Merge(k, v)
	}
	return opts
}

type ProtoRule struct {
	Name     string   `config:"name"`
	Protocol string   `config:"protocol"`
	Ports    []uint16 `config:"ports"`
}

type Protocols struct {
	Rules []ProtoRule `config:"rules"`
}

// DefaultRules 未配置任何规则时使用的默认端口映射
var DefaultRules = []ProtoRule{
	{Protocol: string(socket.ProtoHTTP), Ports: []uint16{80, 8080}},
	{Protocol: string(socket.ProtoDNS), Ports: []uint16{53}},
	{Protocol: string(socket.ProtoNTP), Ports: []uint16{123}},
	{Protocol: string(socket.ProtoSIP), Ports: []uint16{5060}},
	{Protocol: string(socket.ProtoSIPSSL), Ports: []uint16{5061}},
	{Protocol: string(socket.ProtoSMTP), Ports: []uint16{25, 587}},
	{Protocol: string(socket.ProtoFTP), Ports: []uint16{21}},
	{Protocol: string(socket.ProtoIMAP), Ports: []uint16{143}},
	{Protocol: string(socket.ProtoIMAPSSL), Ports: []uint16{993}},
	{Protocol: string(socket.ProtoPOP3), Ports: []uint16{110}},
	{Protocol: string(socket.ProtoPOP3SSL), Ports: []uint16{995}},
}

// ProtoPorts 将协议规则转换为端口列表
//
// 协议标签需要声明其所基于的传输层协议
func (ps Protocols) ProtoPorts() ([]socket.ProtoPorts, error) {
	rules := ps.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}

	var errs error
	var ports []socket.ProtoPorts
	for _, rule := range rules {
		proto := socket.Proto(rule.Protocol)
		if _, ok := socket.ProtoBased(proto); !ok {
			errs = multierror.Append(errs, errors.Errorf("unsupported protocol (%s)", rule.Protocol))
			continue
		}

		dst := make([]socket.Port, 0, len(rule.Ports))
		for _, port := range rule.Ports {
			dst = append(dst, socket.Port(port))
		}
		ports = append(ports, socket.ProtoPorts{Ports: dst, Proto: proto})
	}
	return ports, errs
}
