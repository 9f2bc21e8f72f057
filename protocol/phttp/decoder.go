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

package phttp

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/bufbytes"
	"github.com/packetd/flowmon/internal/splitio"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoHTTP, NewDecoder)
}

const (
	defaultMaxBodySize = 102400 // 100KB

	// maxHeaderSize 首部块的最大长度
	maxHeaderSize = 64 * 1024

	// maxChunkLine chunk-size 行的最大长度
	maxChunkLine = 1024
)

// state 记录着 decoder 的处理状态
type state uint8

const (
	// stateHeader 初始值
	// 处于此状态时正在等待完整的起始行以及首部
	stateHeader state = iota

	// stateBody 按 Content-Length 读取 body
	stateBody

	// stateChunkSize 等待 chunk-size 行
	stateChunkSize

	// stateChunkData 读取 chunk-data
	stateChunkData

	// stateChunkEnd 读取 chunk-data 之后的 CRLF
	stateChunkEnd

	// stateTrailer 读取 last-chunk 之后的 trailer-section
	stateTrailer

	// stateDrain 剩余数据均不再解析
	// body 以链接关闭为结束或者 CONNECT 建立隧道之后进入此状态
	stateDrain
)

type role uint8

const (
	roleUnknown role = iota
	roleRequest
	roleResponse
)

// pending 已发出但尚未收到响应的请求 由请求方向的 Context 保存
type pending struct {
	method string
	url    string
}

type pendingKey struct{}

// decoder HTTP/1.x 协议解析器
//
// 对于一个 Stream 而言 其 role 只能为 Request / Response 二者其一
// 因为在同一个 HTTP 连接中 通信的双方一定是有严格区分 Server/Client 端的
//
// 请求方向按序记录已发出请求的 URL 响应方向通过 Peer Context 按序取出
// 即 pipelining 场景下第 N 个响应对应第 N 个请求
type decoder struct {
	env   protocol.Env
	role  role
	state state

	// 当前报文
	header    observer.Header
	method    string
	url       string
	code      int
	status    string
	remaining int
	body      *bufbytes.Bytes
}

func NewDecoder(env protocol.Env, opts common.Options) protocol.Decoder {
	return &decoder{
		env:  env,
		body: bufbytes.New(opts.PositiveInt("maxBodySize", defaultMaxBodySize)),
	}
}

// reset 重置单次报文状态
func (d *decoder) reset() {
	d.state = stateHeader
	d.header = nil
	d.method = ""
	d.url = ""
	d.code = 0
	d.status = ""
	d.remaining = 0
	d.body.Reset()
}

// Decode 从字节流中不断解析 Request / Response
//
// # REQUEST 协议格式
//
// GET /index.html HTTP/1.1
// Host: www.example.com
// User-Agent: Gecko/20100101 Firefox/91.0
// Accept: application/json
// ...<Body Payload>...
//
// # RESPONSE 协议格式
//
// HTTP/1.1 200 OK
// Date: Wed, 18 Apr 2024 12:00:00 GMT
// Content-Length: 0
// Content-Type: application/json; charset=UTF-8
// ...<Body Payload>...
//
// 报文在 body 读取完毕后才会上报 上报的 body 最多保留 maxBodySize 字节
func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	b := v.Bytes()
	var consumed int
	for consumed < len(b) {
		rest := b[consumed:]

		switch d.state {
		case stateHeader:
			h, ok, err := protocol.ReadMessageHeader(rest, maxHeaderSize)
			if err != nil || !ok {
				return consumed, err
			}
			if err := d.decodeHeader(ctx, h); err != nil {
				return consumed, err
			}
			consumed += h.Size
			if d.state == stateDrain {
				d.report(ctx, t)
				return len(b), nil
			}
			if d.state != stateBody || d.remaining > 0 {
				continue
			}

		case stateBody, stateChunkData:
			n := min(d.remaining, len(rest))
			d.body.Write(rest[:n])
			d.remaining -= n
			consumed += n
			if d.remaining > 0 {
				return consumed, nil
			}
			if d.state == stateChunkData {
				d.state = stateChunkEnd
				continue
			}

		case stateChunkSize:
			line, ok := readLine(rest)
			if !ok {
				if len(rest) > maxChunkLine {
					return consumed, protocol.Unrecognised("http chunk size line too long")
				}
				return consumed, nil
			}
			size, err := parseChunkSize(splitio.TrimCRLF(line))
			if err != nil {
				return consumed, protocol.Unrecognised("http chunk size: %v", err)
			}
			consumed += len(line)
			if size == 0 {
				d.state = stateTrailer
				continue
			}
			d.remaining = int(size)
			d.state = stateChunkData
			continue

		case stateChunkEnd:
			line, ok := readLine(rest)
			if !ok {
				if len(rest) >= 2 {
					return consumed, protocol.Unrecognised("http chunk data overflow")
				}
				return consumed, nil
			}
			if len(splitio.TrimCRLF(line)) != 0 {
				return consumed, protocol.Unrecognised("http chunk data overflow")
			}
			consumed += len(line)
			d.state = stateChunkSize
			continue

		case stateTrailer:
			line, ok := readLine(rest)
			if !ok {
				if len(rest) > maxHeaderSize {
					return consumed, protocol.Unrecognised("http trailer too long")
				}
				return consumed, nil
			}
			consumed += len(line)
			if len(splitio.TrimCRLF(line)) != 0 {
				continue
			}

		case stateDrain:
			return len(b), nil
		}

		d.report(ctx, t)
		d.reset()
	}
	return consumed, nil
}

// decodeHeader 解析起始行并决定 body 的读取方式
//
// https://httpwg.org/specs/rfc7230.html#rfc.section.3.3.3 文档中提供了一些细节
// - 比如对于 1xx / 204 / 304 以及 HEAD 请求的响应是没有 HTTP Response Body 内容的
// - 101 以及 CONNECT 成功之后链接不再承载 HTTP 报文
// - 比如同时指定了 Chunked 但是又设置了 Content-Length 以 Chunked 为准
// - 请求未声明长度时无 body 响应未声明长度时以链接关闭为结束
func (d *decoder) decodeHeader(ctx *flowctx.Context, h *protocol.MessageHeader) error {
	var noBody bool
	switch d.role {
	case roleRequest:
		if err := d.decodeRequestLine(h.StartLine); err != nil {
			return err
		}
	case roleResponse:
		if err := d.decodeStatusLine(h.StartLine); err != nil {
			return err
		}
	default: // 需要探测此 stream 是 client 或者 server 加速后续判断
		if err := d.decodeRequestLine(h.StartLine); err == nil {
			d.role = roleRequest
		} else if err := d.decodeStatusLine(h.StartLine); err == nil {
			d.role = roleResponse
		} else {
			return protocol.Unrecognised("http start line %q", h.StartLine)
		}
	}

	d.header = h.Header
	if d.role == roleRequest {
		d.url = requestURL(d.url, h.Header)
	} else {
		// 1xx 为中间响应 不消耗请求
		req := peekPending(ctx, d.code >= 200 || d.code == http.StatusSwitchingProtocols)
		d.url = req.url
		if d.code == http.StatusSwitchingProtocols || (req.method == http.MethodConnect && d.code >= 200 && d.code < 300) {
			d.state = stateDrain
			return nil
		}
		noBody = req.method == http.MethodHead || d.code < 200 || d.code == 204 || d.code == 304
	}

	if noBody {
		d.state = stateBody
		return nil
	}

	if te, ok := h.Header.Get("Transfer-Encoding"); ok && checkChunkedEncoding(te) {
		d.state = stateChunkSize
		return nil
	}

	if cl, ok := h.Header.Get("Content-Length"); ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return protocol.Unrecognised("http content length %q", cl)
		}
		d.remaining = n
		d.state = stateBody
		return nil
	}

	if d.role == roleResponse {
		d.state = stateDrain
		return nil
	}
	d.state = stateBody
	return nil
}

// decodeRequestLine 解析请求首行 如 `GET /index.html HTTP/1.1`
func (d *decoder) decodeRequestLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || !isMethod(parts[0]) || parts[1] == "" {
		return errors.Errorf("invalid request line %q", line)
	}
	if _, _, ok := http.ParseHTTPVersion(parts[2]); !ok {
		return errors.Errorf("invalid version %q", parts[2])
	}
	d.method = parts[0]
	d.url = parts[1]
	return nil
}

// decodeStatusLine 解析响应首行 如 `HTTP/1.1 200 OK`
func (d *decoder) decodeStatusLine(line string) error {
	version, rest, _ := strings.Cut(line, " ")
	if _, _, ok := http.ParseHTTPVersion(version); !ok {
		return errors.Errorf("invalid version %q", version)
	}
	code, status, _ := strings.Cut(rest, " ")
	n, err := strconv.Atoi(code)
	if err != nil || len(code) != 3 || n < 100 {
		return errors.Errorf("invalid status code %q", code)
	}
	d.code = n
	d.status = status
	return nil
}

func (d *decoder) report(ctx *flowctx.Context, t time.Time) {
	body := zerocopy.NewView(d.body.Bytes())
	if d.role == roleRequest {
		pushPending(ctx, pending{method: d.method, url: d.url})
		d.env.Observer().HTTPRequest(ctx, d.method, d.url, d.header, body, t)
		return
	}
	d.env.Observer().HTTPResponse(ctx, d.code, d.status, d.header, d.url, body, t)
}

// requestURL 将 request-target 还原为完整 URL
//
// absolute-form 原样返回 origin-form 借助 Host 首部拼接
func requestURL(target string, h observer.Header) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	host, ok := h.Get("Host")
	if !ok || host == "" || !strings.HasPrefix(target, "/") {
		return target
	}
	return "http://" + host + target
}

func pushPending(ctx *flowctx.Context, req pending) {
	queue, _ := ctx.Value(pendingKey{}).(*[]pending)
	if queue == nil {
		queue = &[]pending{}
		ctx.SetValue(pendingKey{}, queue)
	}
	*queue = append(*queue, req)
}

// peekPending 返回对端最早发出的请求 pop 为 true 时同时将其移除
//
// 对端未知时返回零值
func peekPending(ctx *flowctx.Context, pop bool) pending {
	peer := ctx.Peer()
	if peer == nil {
		return pending{}
	}
	queue, _ := peer.Value(pendingKey{}).(*[]pending)
	if queue == nil || len(*queue) == 0 {
		return pending{}
	}
	req := (*queue)[0]
	if pop {
		*queue = (*queue)[1:]
	}
	return req
}

func readLine(b []byte) ([]byte, bool) {
	idx := bytes.IndexByte(b, splitio.CharLF[0])
	if idx < 0 {
		return nil, false
	}
	return b[:idx+1], true
}

func isMethod(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// parseChunkSize 解析 chunk-size 行
//
// https://datatracker.ietf.org/doc/html/rfc9112#name-chunked-transfer-coding
// 根据 rfc 文档中的描述 chunked body 中可能还携带 chunk-ext（需要被删除）
//
//	chunked-body   = *chunk
//	                 last-chunk
//	                 trailer-section
//	                 CRLF
//
//	chunk          = chunk-size [ chunk-ext ] CRLF
//	                 chunk-data CRLF
//	chunk-size     = 1*HEXDIG
//	last-chunk     = 1*("0") [ chunk-ext ] CRLF
//
//	chunk-data     = 1*OCTET ; a sequence of chunk-size octets
//
// chunked body 示例
// ---------------------------------------
// | 25                                  |
// | This is the data in the first chunk |
// | 1C                                  |
// | and this is the second one          |
// | 3                                   |
// | con                                 |
// | 8                                   |
// | sequence                            |
// | 0                                   |
// ---------------------------------------
func parseChunkSize(line []byte) (uint64, error) {
	if idx := bytes.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	n, err := parseHexUint(bytes.TrimSpace(line))
	if err != nil {
		return 0, err
	}
	if n > uint64(socket.MaxIPPacketSize)*1024 {
		return 0, errors.Errorf("chunk length %d too large", n)
	}
	return n, nil
}

// parseHexUint 将 16 进制所代表的字节解析成 uint64 数据类型
func parseHexUint(v []byte) (uint64, error) {
	if len(v) == 0 {
		return 0, errors.New("empty hex number for chunk length")
	}

	var n uint64
	for i, b := range v {
		switch {
		case '0' <= b && b <= '9':
			b = b - '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, errors.New("invalid byte in chunk length")
		}
		if i == 16 {
			return 0, errors.New("http chunk length too large")
		}
		n <<= 4
		n |= uint64(b)
	}
	return n, nil
}

// checkChunkedEncoding 检查 Transfer-Encoding 的最后一个编码是否为 chunked
func checkChunkedEncoding(te string) bool {
	codings := strings.Split(te, ",")
	return strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked")
}
