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

package pgre

import (
	"fmt"
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoGRE, NewDecoder)
}

const (
	flagChecksum = 0x8000
	flagRouting  = 0x4000
	flagKey      = 0x2000
	flagSequence = 0x1000
	flagAck      = 0x0080
	versionMask  = 0x0007

	versionGRE  = 0
	versionPPTP = 1

	headerMinLen = 4
)

// 常见的 GRE Protocol Type
const (
	EtherTypeIPv4   = 0x0800
	EtherTypeIPv6   = 0x86DD
	EtherTypePPP    = 0x880B
	EtherTypeERSPAN = 0x88BE
)

// NextProto 返回 Protocol Type 对应的名称 未知类型使用十六进制表示
func NextProto(etherType uint16) string {
	switch etherType {
	case EtherTypeIPv4:
		return string(socket.ProtoIPv4)
	case EtherTypeIPv6:
		return string(socket.ProtoIPv6)
	case EtherTypePPP:
		return string(socket.ProtoPPP)
	case EtherTypeERSPAN:
		return "erspan"
	}
	return fmt.Sprintf("0x%04x", etherType)
}

type decoder struct {
	env protocol.Env
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

// Decode 解析 GRE 报文 按照 version 分为标准 GRE 与 PPTP 使用的增强型 GRE
//
// 标准 GRE (rfc2784/rfc2890) 报文布局
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|C|R|K|S| Reserved0       | Ver |         Protocol Type         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      Checksum (optional)      |       Reserved1 (Optional)    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Key (optional)                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                 Sequence Number (Optional)                    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// 头部长度由 flags 决定 负载交给 Protocol Type 对应的 decoder 继续解析
func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	if v.Len() < headerMinLen {
		return 0, protocol.Unrecognised("gre header %d bytes", v.Len())
	}

	flags, _ := v.Uint16(0)
	switch flags & versionMask {
	case versionGRE:
		return d.decodeGRE(ctx, v, t)
	case versionPPTP:
		return decodePPTP(d.env, ctx, v, t)
	}
	return 0, protocol.Unrecognised("gre version %d", flags&versionMask)
}

func (d *decoder) decodeGRE(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	c := v.Cursor()
	flags, _ := c.Uint16()
	etherType, _ := c.Uint16()

	// rfc1701 routing 之后为变长的 SRE 列表 rfc2784 已废弃
	if flags&flagRouting != 0 {
		return 0, protocol.Unrecognised("gre routing present")
	}
	if flags&flagChecksum != 0 {
		if err := c.Skip(4); err != nil {
			return 0, protocol.Unrecognised("gre checksum: %v", err)
		}
	}

	var key, seq uint32
	var err error
	if flags&flagKey != 0 {
		if key, err = c.Uint32(); err != nil {
			return 0, protocol.Unrecognised("gre key: %v", err)
		}
	}
	if flags&flagSequence != 0 {
		if seq, err = c.Uint32(); err != nil {
			return 0, protocol.Unrecognised("gre sequence: %v", err)
		}
	}

	payload := c.Remaining()
	next := NextProto(etherType)
	d.env.Observer().GRE(ctx, next, key, seq, payload, t)

	var addrs []flowctx.Address
	if flags&flagKey != 0 {
		addrs = []flowctx.Address{flowctx.TunnelAddress(string(socket.ProtoGRE), key, flowctx.DirSrc)}
	}
	d.env.Dispatch(ctx, socket.Proto(next), addrs, payload, t)
	return v.Len(), nil
}
