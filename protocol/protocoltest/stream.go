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

package protocoltest

import (
	"time"

	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

// Feed 以字节流的方式将 chunks 依次交给 decoder
//
// 未被消费的字节会与下一个 chunk 拼接后再次提交 遇到错误时立即返回
// 返回值为所有被消费的字节数以及尚未被消费的字节
func Feed(d protocol.Decoder, ctx *flowctx.Context, chunks ...[]byte) (int, []byte, error) {
	var pending []byte
	var consumed int
	for _, chunk := range chunks {
		pending = append(pending, chunk...)
		n, err := d.Decode(ctx, zerocopy.NewView(pending), time.Now())
		consumed += n
		pending = pending[n:]
		if err != nil {
			return consumed, pending, err
		}
	}
	return consumed, pending, nil
}
