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
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoPPP, NewPPPDecoder)
}

const (
	pppAddress = 0xFF
	pppControl = 0x03

	pppProtoIPv4 = 0x0021
	pppProtoIPv6 = 0x0057
)

type pppDecoder struct {
	env protocol.Env
}

func NewPPPDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &pppDecoder{env: env}
}

// Decode 解析 PPP 帧 (rfc1661) 仅处理承载 IP 的帧
//
// Address/Control 字段可能被压缩 (ACFC) Protocol 字段可能被压缩为 1 字节 (PFC)
func (d *pppDecoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	c := v.Cursor()
	if b0, _ := v.Uint8(0); b0 == pppAddress {
		if b1, _ := v.Uint8(1); b1 != pppControl {
			return 0, protocol.Unrecognised("ppp control 0x%02x", b1)
		}
		_ = c.Skip(2)
	}

	b, err := c.Uint8()
	if err != nil {
		return 0, protocol.Unrecognised("ppp protocol: %v", err)
	}
	proto := uint16(b)
	if b&0x01 == 0 {
		lo, err := c.Uint8()
		if err != nil {
			return 0, protocol.Unrecognised("ppp protocol: %v", err)
		}
		proto = proto<<8 | uint16(lo)
	}

	switch proto {
	case pppProtoIPv4:
		d.env.Dispatch(ctx, socket.ProtoIPv4, nil, c.Remaining(), t)
	case pppProtoIPv6:
		d.env.Dispatch(ctx, socket.ProtoIPv6, nil, c.Remaining(), t)
	default:
		return 0, protocol.Unrecognised("ppp protocol 0x%04x", proto)
	}
	return v.Len(), nil
}
