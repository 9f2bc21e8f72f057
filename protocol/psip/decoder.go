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
	"strconv"
	"strings"
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoSIP, NewDecoder)
	protocol.Register(socket.ProtoSIPSSL, NewSSLDecoder)
}

const (
	version = "SIP/2.0"

	// maxHeaderSize 单个 SIP 报文首部的最大长度
	maxHeaderSize = 16 * 1024
)

// Message 解析后的 SIP 报文
type Message struct {
	Request bool
	Method  string
	URI     string
	Code    int
	Status  string
	From    string
	To      string
	Header  observer.Header

	// ContentLength 未声明时为 -1
	ContentLength int
	HeaderSize    int
}

// decoder SIP 协议解析器 (rfc3261)
//
// 基于 UDP 时单个数据报即一个报文 基于 TCP 时依据 Content-Length 切分报文
// 上报的负载为完整的 SIP 报文
type decoder struct {
	env protocol.Env
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	if !ctx.Connected() {
		msg, err := Parse(v.Bytes())
		if err != nil {
			return 0, err
		}
		if msg.ContentLength >= 0 {
			if v.Len() < msg.HeaderSize+msg.ContentLength {
				return 0, protocol.Unrecognised("sip content length %d exceeds datagram", msg.ContentLength)
			}
			v, _ = v.Clip(msg.HeaderSize + msg.ContentLength)
		}
		d.emit(ctx, msg, v, t)
		return v.Len(), nil
	}

	var consumed int
	for consumed < v.Len() {
		rest, _ := v.Advance(consumed)
		msg, ok, err := readMessage(rest.Bytes())
		if err != nil || !ok {
			return consumed, err
		}

		// 面向连接时 Content-Length 为必填字段 缺省视为无报文体
		size := msg.HeaderSize
		if msg.ContentLength > 0 {
			size += msg.ContentLength
		}
		if rest.Len() < size {
			return consumed, nil
		}

		one, _ := rest.Clip(size)
		d.emit(ctx, msg, one, t)
		consumed += size
	}
	return consumed, nil
}

func (d *decoder) emit(ctx *flowctx.Context, msg *Message, v zerocopy.View, t time.Time) {
	if msg.Request {
		d.env.Observer().SIPRequest(ctx, msg.Method, msg.From, msg.To, v, t)
		return
	}
	d.env.Observer().SIPResponse(ctx, msg.Code, msg.Status, msg.From, msg.To, v, t)
}

// Parse 解析一个完整的 SIP 报文首部
//
// 数据报中首部块可以不以空行结尾 此时整个数据报均为首部
func Parse(b []byte) (*Message, error) {
	msg, ok, err := readMessage(b)
	if err != nil {
		return nil, err
	}
	if ok {
		return msg, nil
	}

	// 补齐空行后再次解析
	full := make([]byte, 0, len(b)+4)
	full = append(full, b...)
	full = append(full, "\r\n\r\n"...)
	msg, ok, err = readMessage(full)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, protocol.Unrecognised("sip incomplete header")
	}
	msg.HeaderSize = len(b)
	return msg, nil
}

func readMessage(b []byte) (*Message, bool, error) {
	h, ok, err := protocol.ReadMessageHeader(b, maxHeaderSize)
	if err != nil || !ok {
		return nil, false, err
	}

	msg := &Message{
		Header:        h.Header,
		HeaderSize:    h.Size,
		ContentLength: -1,
	}
	if err := parseStartLine(msg, h.StartLine); err != nil {
		return nil, false, err
	}

	msg.From = headerValue(h.Header, "from", "f")
	msg.To = headerValue(h.Header, "to", "t")
	if s := headerValue(h.Header, "content-length", "l"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, false, protocol.Unrecognised("sip content length %q", s)
		}
		msg.ContentLength = n
	}
	return msg, true, nil
}

// parseStartLine 解析起始行
//
//	Request-Line  = Method SP Request-URI SP SIP-Version CRLF
//	Status-Line   = SIP-Version SP Status-Code SP Reason-Phrase CRLF
func parseStartLine(msg *Message, line string) error {
	if strings.HasPrefix(line, version+" ") {
		code, status, _ := strings.Cut(line[len(version)+1:], " ")
		n, err := strconv.Atoi(code)
		if err != nil || len(code) != 3 || n < 100 || n > 699 {
			return protocol.Unrecognised("sip status line %q", line)
		}
		msg.Code = n
		msg.Status = status
		return nil
	}

	fields := strings.Split(line, " ")
	if len(fields) != 3 || fields[2] != version || !isToken(fields[0]) {
		return protocol.Unrecognised("sip request line %q", line)
	}
	msg.Request = true
	msg.Method = fields[0]
	msg.URI = fields[1]
	return nil
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

// headerValue 依次查找完整名称以及紧凑名称 (rfc3261 7.3.3)
func headerValue(h observer.Header, names ...string) string {
	for _, name := range names {
		if v, ok := h.Get(name); ok {
			return v
		}
	}
	return ""
}
