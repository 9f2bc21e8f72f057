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

package psmtp

import (
	"bytes"
	"strings"
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/bufbytes"
	"github.com/packetd/flowmon/internal/splitio"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoSMTP, NewDecoder)
}

const defaultMaxDataSize = 1024 * 1024 // 1MB

// role 数据流方向 在首个完整行时确定 此后不再变化
type role uint8

const (
	roleUnknown role = iota
	roleClient
	roleServer
)

var verbs = map[string]bool{
	"HELO":     true,
	"EHLO":     true,
	"MAIL":     true,
	"RCPT":     true,
	"DATA":     true,
	"BDAT":     true,
	"RSET":     true,
	"VRFY":     true,
	"EXPN":     true,
	"HELP":     true,
	"NOOP":     true,
	"QUIT":     true,
	"AUTH":     true,
	"STARTTLS": true,
	"TURN":     true,
	"ETRN":     true,
}

// decoder SMTP 协议解析器 (rfc5321)
//
// 客户端方向逐行上报 smtp_command 并记录 MAIL FROM / RCPT TO
// DATA 之后的邮件内容以 `\r\n.\r\n` 结束 结束时上报 smtp_data
// 服务端方向将多行应答合并后上报 smtp_response
type decoder struct {
	env  protocol.Env
	role role

	// client
	authPending bool
	inData      bool
	midLine     bool
	from        string
	to          []string
	data        *bufbytes.Bytes

	// server
	code  int
	lines []string
}

// NewDecoder 创建 SMTP decoder
//
// 支持 `maxDataSize` 选项 限制单封邮件保留的最大字节数
func NewDecoder(env protocol.Env, opts common.Options) protocol.Decoder {
	return &decoder{
		env:  env,
		data: bufbytes.New(opts.PositiveInt("maxDataSize", defaultMaxDataSize)),
	}
}

func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	r := splitio.NewReader(v.Bytes(), common.ReadWriteBlockSize)
	for {
		if d.inData {
			if done := d.drainData(ctx, r, t); !done {
				return r.Offset(), nil
			}
			continue
		}

		start := r.Offset()
		line, ok := r.ReadLine()
		if !ok {
			if r.TooLong() {
				return r.Offset(), protocol.Unrecognised("smtp line too long")
			}
			return r.Offset(), nil
		}

		text := string(splitio.TrimCRLF(line))
		if d.role == roleUnknown {
			switch {
			case isReply(text):
				d.role = roleServer
			case protocol.IsCommand(text):
				d.role = roleClient
			default:
				return start, protocol.Unrecognised("smtp line %q", text)
			}
		}

		var err error
		if d.role == roleServer {
			err = d.decodeReply(ctx, text, t)
		} else {
			lv, _ := v.Slice(start, r.Offset())
			err = d.decodeCommand(ctx, lv, text, t)
		}
		if err != nil {
			return start, err
		}
	}
}

func isReply(text string) bool {
	_, ok := protocol.ParseReply(text)
	return ok
}

// decodeReply 合并多行应答
//
//	S: 250-mail.example.com Hello
//	S: 250-SIZE 14680064
//	S: 250 AUTH LOGIN PLAIN
func (d *decoder) decodeReply(ctx *flowctx.Context, text string, t time.Time) error {
	reply, ok := protocol.ParseReply(text)
	if !ok {
		return protocol.Unrecognised("smtp reply %q", text)
	}
	if len(d.lines) > 0 && reply.Code != d.code {
		return protocol.Unrecognised("smtp reply code %d within %d", reply.Code, d.code)
	}

	d.code = reply.Code
	d.lines = append(d.lines, reply.Text)
	if reply.More {
		return nil
	}

	d.env.Observer().SMTPResponse(ctx, d.code, d.lines, t)
	d.code = 0
	d.lines = nil
	return nil
}

func (d *decoder) decodeCommand(ctx *flowctx.Context, line zerocopy.View, text string, t time.Time) error {
	verb := protocol.Verb(text)
	obs := d.env.Observer()

	if !verbs[verb] {
		// AUTH 之后客户端发送的认证数据不是命令
		if d.authPending {
			obs.SMTPAuth(ctx, line, t)
			return nil
		}
		return protocol.Unrecognised("smtp command %q", text)
	}

	d.authPending = false
	obs.SMTPCommand(ctx, text, t)

	switch verb {
	case "AUTH":
		d.authPending = true
		obs.SMTPAuth(ctx, line, t)

	case "MAIL":
		d.from = extractPath(text, "FROM:")
		d.to = nil

	case "RCPT":
		if to := extractPath(text, "TO:"); to != "" {
			d.to = append(d.to, to)
		}

	case "DATA":
		d.inData = true
		d.data.Reset()

	case "RSET":
		d.from = ""
		d.to = nil
	}
	return nil
}

// drainData 读取邮件内容直至结束行 `.`
//
// 返回 false 表示需要更多数据
func (d *decoder) drainData(ctx *flowctx.Context, r *splitio.Reader, t time.Time) bool {
	for {
		line, ok := r.ReadLine()
		if !ok {
			// 超长的行不需要等待 LF 直接追加
			if r.TooLong() {
				rest := r.Remaining()
				d.data.Write(rest)
				d.midLine = true
				r.Skip(len(rest))
			}
			return false
		}

		if !d.midLine && isEndOfData(line) {
			d.env.Observer().SMTPData(ctx, d.from, d.to, zerocopy.NewView(d.data.Bytes()), t)
			d.inData = false
			d.data.Reset()
			d.from = ""
			d.to = nil
			return true
		}
		d.midLine = false
		d.data.Write(line)
	}
}

func isEndOfData(line []byte) bool {
	return bytes.Equal(line, []byte(".\r\n")) || bytes.Equal(line, []byte(".\n"))
}

// extractPath 提取 `MAIL FROM:<user@example.com> SIZE=100` 中的地址
func extractPath(text, prefix string) string {
	idx := strings.Index(strings.ToUpper(text), prefix)
	if idx < 0 {
		return ""
	}
	s := strings.TrimSpace(text[idx+len(prefix):])
	if strings.HasPrefix(s, "<") {
		if end := strings.IndexByte(s, '>'); end > 0 {
			return s[1:end]
		}
		return strings.TrimPrefix(s, "<")
	}
	if sp := strings.IndexByte(s, ' '); sp >= 0 {
		s = s[:sp]
	}
	return s
}
