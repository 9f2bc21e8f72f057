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

package pesp

import (
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoESP, NewDecoder)
}

type decoder struct {
	env protocol.Env
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

// Decode 解析 ESP 报文 (rfc4303)
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|               Security Parameters Index (SPI)                 |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                      Sequence Number                          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Payload Data* (variable)                   |
//	~                                                               ~
//
// 负载是加密的 不会创建任何子 Context
func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	c := v.Cursor()
	spi, err := c.Uint32()
	if err != nil {
		return 0, protocol.Unrecognised("esp spi: %v", err)
	}
	seq, err := c.Uint32()
	if err != nil {
		return 0, protocol.Unrecognised("esp sequence: %v", err)
	}

	payload := c.Remaining()
	d.env.Observer().ESP(ctx, spi, seq, uint32(payload.Len()), payload, t)
	return v.Len(), nil
}
