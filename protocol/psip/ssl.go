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

package psip

import (
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

// sslDecoder SIP over TLS 不解密 所有数据直接上报为 sip_ssl
type sslDecoder struct {
	env protocol.Env
}

func NewSSLDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &sslDecoder{env: env}
}

func (d *sslDecoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	if v.Empty() {
		return 0, nil
	}
	d.env.Observer().SIPSSL(ctx, v, t)
	return v.Len(), nil
}
