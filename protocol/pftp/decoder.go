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

package pftp

import (
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/splitio"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoFTP, NewDecoder)
}

type role uint8

const (
	roleUnknown role = iota
	roleClient
	roleServer
)

// decoder FTP 控制链接解析器 (rfc959)
//
// 数据链接使用动态端口 不在解析范围内
type decoder struct {
	env  protocol.Env
	role role

	code  int
	lines []string
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	r := splitio.NewReader(v.Bytes(), common.ReadWriteBlockSize)
	for {
		start := r.Offset()
		line, ok := r.ReadLine()
		if !ok {
			if r.TooLong() {
				return r.Offset(), protocol.Unrecognised("ftp line too long")
			}
			return r.Offset(), nil
		}

		text := string(splitio.TrimCRLF(line))
		if d.role == roleUnknown {
			if _, ok := protocol.ParseReply(text); ok {
				d.role = roleServer
			} else if protocol.IsCommand(text) {
				d.role = roleClient
			} else {
				return start, protocol.Unrecognised("ftp line %q", text)
			}
		}

		if d.role == roleClient {
			if !protocol.IsCommand(text) {
				return start, protocol.Unrecognised("ftp command %q", text)
			}
			d.env.Observer().FTPCommand(ctx, text, t)
			continue
		}

		if err := d.decodeReply(ctx, text, t); err != nil {
			return start, err
		}
	}
}

// decodeReply 合并多行应答
//
// 与 SMTP 不同 FTP 多行应答的中间行不要求以应答码开头 仅以 `code ` 开头的行作为结束
//
//	123-First line
//	Second line
//	  234 A line beginning with numbers
//	123 The last line
func (d *decoder) decodeReply(ctx *flowctx.Context, text string, t time.Time) error {
	reply, ok := protocol.ParseReply(text)
	if len(d.lines) == 0 {
		if !ok {
			return protocol.Unrecognised("ftp reply %q", text)
		}
		d.code = reply.Code
		d.lines = append(d.lines, reply.Text)
		if !reply.More {
			d.flush(ctx, t)
		}
		return nil
	}

	if ok && !reply.More && reply.Code == d.code {
		d.lines = append(d.lines, reply.Text)
		d.flush(ctx, t)
		return nil
	}
	d.lines = append(d.lines, text)
	return nil
}

func (d *decoder) flush(ctx *flowctx.Context, t time.Time) {
	d.env.Observer().FTPResponse(ctx, d.code, d.lines, t)
	d.code = 0
	d.lines = nil
}
