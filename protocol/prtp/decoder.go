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

// Package prtp RTP 以及 SRTP 媒体流
package prtp

import (
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoRTP, NewDecoder)
	protocol.Register(socket.ProtoRTPSSL, NewSSLDecoder)
}

const (
	headerLen = 12
	version   = 2
)

// checkHeader 校验 RTP 固定首部 (rfc3550 5.1)
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|X|  CC   |M|     PT      |       sequence number         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           timestamp                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|           synchronization source (SSRC) identifier            |
//	+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
//
// SRTP 仅加密负载部分 首部与 RTP 一致
func checkHeader(v zerocopy.View) error {
	if v.Len() < headerLen {
		return protocol.Unrecognised("rtp packet too short (%d)", v.Len())
	}
	b, _ := v.Uint8(0)
	if b>>6 != version {
		return protocol.Unrecognised("rtp version %d", b>>6)
	}
	if cc := int(b & 0x0F); v.Len() < headerLen+cc*4 {
		return protocol.Unrecognised("rtp csrc count %d exceeds packet", cc)
	}
	return nil
}

type decoder struct {
	env protocol.Env
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	if err := checkHeader(v); err != nil {
		return 0, err
	}
	d.env.Observer().RTP(ctx, v, t)
	return v.Len(), nil
}

type sslDecoder struct {
	env protocol.Env
}

func NewSSLDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &sslDecoder{env: env}
}

func (d *sslDecoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	if err := checkHeader(v); err != nil {
		return 0, err
	}
	d.env.Observer().RTPSSL(ctx, v, t)
	return v.Len(), nil
}
