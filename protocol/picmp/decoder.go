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

package picmp

import (
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoICMP, NewDecoder)
}

type decoder struct {
	env protocol.Env
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

// Decode 解析 ICMP/ICMPv6 报文
//
// 版本由上层网络地址决定 上报的 payload 不包含 ICMP 首部
func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	addr, _ := ctx.Lookup(flowctx.ClassNetwork, flowctx.DirSrc)

	var typ, code uint8
	var payload []byte
	if addr.Proto == "ipv6" {
		var icmp layers.ICMPv6
		if err := icmp.DecodeFromBytes(v.Bytes(), gopacket.NilDecodeFeedback); err != nil {
			return 0, protocol.Unrecognised("icmpv6: %v", err)
		}
		typ, code, payload = icmp.TypeCode.Type(), icmp.TypeCode.Code(), icmp.Payload
	} else {
		var icmp layers.ICMPv4
		if err := icmp.DecodeFromBytes(v.Bytes(), gopacket.NilDecodeFeedback); err != nil {
			return 0, protocol.Unrecognised("icmp: %v", err)
		}
		typ, code, payload = icmp.TypeCode.Type(), icmp.TypeCode.Code(), icmp.Payload
	}

	d.env.Observer().ICMP(ctx, typ, code, zerocopy.NewView(payload), t)
	return v.Len(), nil
}
