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

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoIPv4, NewDecoder)
	protocol.Register(socket.ProtoIPv6, NewDecoder)
}

type decoder struct {
	env      protocol.Env
	ipv4Only bool
}

// NewDecoder 创建隧道内层 IP 报文的 decoder
//
// 支持 `ipv4Only` 选项
func NewDecoder(env protocol.Env, opts common.Options) protocol.Decoder {
	ipv4Only, _ := opts.GetBool("ipv4Only")
	return &decoder{
		env:      env,
		ipv4Only: ipv4Only,
	}
}

// Decode 解析 IP 报文并将内层数据包以当前 Context 为父节点重新分发
func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	pkt, err := Parse(t, v.Bytes(), d.ipv4Only)
	if err != nil {
		return 0, protocol.Unrecognised("ip: %v", err)
	}

	d.env.DispatchPacket(ctx, pkt)
	return v.Len(), nil
}
