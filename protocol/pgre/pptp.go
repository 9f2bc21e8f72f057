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

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

// decodePPTP 解析 PPTP 使用的增强型 GRE (rfc2637 4.1)
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|C|R|K|S|s|Recur|A| Flags | Ver |         Protocol Type         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|    Key (HW) Payload Length    |       Key (LW) Call ID        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                  Sequence Number (Optional)                   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|               Acknowledgment Number (Optional)                |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// 负载长度以 Payload Length 为准 声明长度超过实际可用字节时视为无法识别
// 未携带 Acknowledgment Number 时 ack 为 0
func decodePPTP(env protocol.Env, ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	c := v.Cursor()
	flags, _ := c.Uint16()
	etherType, _ := c.Uint16()

	if flags&flagKey == 0 {
		return 0, protocol.Unrecognised("pptp without key")
	}

	payloadLen, err := c.Uint16()
	if err != nil {
		return 0, protocol.Unrecognised("pptp payload length: %v", err)
	}
	callID, err := c.Uint16()
	if err != nil {
		return 0, protocol.Unrecognised("pptp call id: %v", err)
	}

	var seq, ack uint32
	if flags&flagSequence != 0 {
		if seq, err = c.Uint32(); err != nil {
			return 0, protocol.Unrecognised("pptp sequence: %v", err)
		}
	}
	if flags&flagAck != 0 {
		if ack, err = c.Uint32(); err != nil {
			return 0, protocol.Unrecognised("pptp ack: %v", err)
		}
	}

	payload, ok := c.Remaining().Clip(int(payloadLen))
	if !ok {
		return 0, protocol.Unrecognised("pptp payload length %d exceeds %d", payloadLen, c.Remaining().Len())
	}

	next := NextProto(etherType)
	env.Observer().GREPPTP(ctx, next, payloadLen, callID, seq, ack, payload, t)

	// 仅携带 ack 的报文没有负载
	if payload.Empty() {
		return v.Len(), nil
	}
	addrs := []flowctx.Address{flowctx.TunnelAddress("pptp", uint32(callID), flowctx.DirSrc)}
	env.Dispatch(ctx, socket.ProtoPPP, addrs, payload, t)
	return v.Len(), nil
}
