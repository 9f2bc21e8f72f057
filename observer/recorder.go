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

package observer

import (
	"time"

	"github.com/google/uuid"

	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
)

// Sink 接收 Recorder 生成的 Record
//
// 会被多个分区并发调用
type Sink func(r *Record)

// RecorderOptions Recorder 配置项
type RecorderOptions struct {
	// MaxPayload 单条 Record 最多保留的负载字节数 0 表示不限制
	MaxPayload int `config:"maxPayload"`

	// Kinds 仅记录指定类型的事件 为空时记录全部
	Kinds []string `config:"kinds"`
}

// Recorder 将所有事件转换为 Record 并交给 Sink
//
// Recorder 在调用返回前完成对 View/Header 等引用数据的拷贝
type Recorder struct {
	sink       Sink
	maxPayload int
	kinds      map[Kind]bool
}

var _ Observer = (*Recorder)(nil)

// NewRecorder 创建 Recorder 实例
func NewRecorder(sink Sink, opts RecorderOptions) *Recorder {
	r := &Recorder{
		sink:       sink,
		maxPayload: opts.MaxPayload,
	}
	for _, name := range opts.Kinds {
		if k, ok := ParseKind(name); ok {
			if r.kinds == nil {
				r.kinds = make(map[Kind]bool)
			}
			r.kinds[k] = true
		}
	}
	return r
}

func (r *Recorder) enabled(k Kind) bool {
	return r.kinds == nil || r.kinds[k]
}

func (r *Recorder) emit(kind Kind, ctx *flowctx.Context, t time.Time, fields any, v zerocopy.View) {
	if !r.enabled(kind) {
		return
	}

	record := &Record{
		ID:     uuid.New().String(),
		Kind:   kind,
		Time:   t,
		Fields: fields,
	}
	if ctx != nil {
		record.Context = Snapshot(ctx)
	}
	if !v.Empty() {
		if r.maxPayload > 0 && v.Len() > r.maxPayload {
			v, _ = v.Clip(r.maxPayload)
			record.Truncated = true
		}
		record.Payload = v.Clone()
	}
	r.sink(record)
}

func (r *Recorder) ConnectionUp(ctx *flowctx.Context, t time.Time) {
	r.emit(KindConnectionUp, ctx, t, nil, zerocopy.View{})
}

func (r *Recorder) ConnectionDown(ctx *flowctx.Context, t time.Time) {
	r.emit(KindConnectionDown, ctx, t, nil, zerocopy.View{})
}

func (r *Recorder) UnrecognisedStream(ctx *flowctx.Context, v zerocopy.View, position int64, t time.Time) {
	r.emit(KindUnrecognisedStream, ctx, t, &UnrecognisedStreamFields{Position: position}, v)
}

func (r *Recorder) UnrecognisedDatagram(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindUnrecognisedDatagram, ctx, t, nil, v)
}

func (r *Recorder) ICMP(ctx *flowctx.Context, typ, code uint8, v zerocopy.View, t time.Time) {
	r.emit(KindICMP, ctx, t, &ICMPFields{Type: typ, Code: code}, v)
}

func (r *Recorder) IMAP(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindIMAP, ctx, t, nil, v)
}

func (r *Recorder) IMAPSSL(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindIMAPSSL, ctx, t, nil, v)
}

func (r *Recorder) POP3(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindPOP3, ctx, t, nil, v)
}

func (r *Recorder) POP3SSL(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindPOP3SSL, ctx, t, nil, v)
}

func (r *Recorder) SMTPAuth(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindSMTPAuth, ctx, t, nil, v)
}

func (r *Recorder) SMTPCommand(ctx *flowctx.Context, command string, t time.Time) {
	r.emit(KindSMTPCommand, ctx, t, &CommandFields{Command: command}, zerocopy.View{})
}

func (r *Recorder) SMTPResponse(ctx *flowctx.Context, status int, text []string, t time.Time) {
	r.emit(KindSMTPResponse, ctx, t, &ResponseFields{Status: status, Text: cloneStrings(text)}, zerocopy.View{})
}

func (r *Recorder) SMTPData(ctx *flowctx.Context, from string, to []string, v zerocopy.View, t time.Time) {
	r.emit(KindSMTPData, ctx, t, &SMTPDataFields{From: from, To: cloneStrings(to)}, v)
}

func (r *Recorder) FTPCommand(ctx *flowctx.Context, command string, t time.Time) {
	r.emit(KindFTPCommand, ctx, t, &CommandFields{Command: command}, zerocopy.View{})
}

func (r *Recorder) FTPResponse(ctx *flowctx.Context, status int, text []string, t time.Time) {
	r.emit(KindFTPResponse, ctx, t, &ResponseFields{Status: status, Text: cloneStrings(text)}, zerocopy.View{})
}

func (r *Recorder) RTP(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindRTP, ctx, t, nil, v)
}

func (r *Recorder) RTPSSL(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindRTPSSL, ctx, t, nil, v)
}

func (r *Recorder) SIPRequest(ctx *flowctx.Context, method, from, to string, v zerocopy.View, t time.Time) {
	r.emit(KindSIPRequest, ctx, t, &SIPRequestFields{Method: method, From: from, To: to}, v)
}

func (r *Recorder) SIPResponse(ctx *flowctx.Context, code int, status, from, to string, v zerocopy.View, t time.Time) {
	r.emit(KindSIPResponse, ctx, t, &SIPResponseFields{Code: code, Status: status, From: from, To: to}, v)
}

func (r *Recorder) SIPSSL(ctx *flowctx.Context, v zerocopy.View, t time.Time) {
	r.emit(KindSIPSSL, ctx, t, nil, v)
}

func (r *Recorder) HTTPRequest(ctx *flowctx.Context, method, url string, hdr Header, body zerocopy.View, t time.Time) {
	r.emit(KindHTTPRequest, ctx, t, &HTTPRequestFields{Method: method, URL: url, Header: hdr.Clone()}, body)
}

func (r *Recorder) HTTPResponse(ctx *flowctx.Context, code int, status string, hdr Header, url string, body zerocopy.View, t time.Time) {
	r.emit(KindHTTPResponse, ctx, t, &HTTPResponseFields{Code: code, Status: status, URL: url, Header: hdr.Clone()}, body)
}

func (r *Recorder) DNSMessage(ctx *flowctx.Context, msg *DNSMessage, t time.Time) {
	cloned := *msg
	cloned.Queries = append([]DNSQuery(nil), msg.Queries...)
	cloned.Answers = append([]DNSRR(nil), msg.Answers...)
	cloned.Authorities = append([]DNSRR(nil), msg.Authorities...)
	cloned.Additional = append([]DNSRR(nil), msg.Additional...)
	r.emit(KindDNSMessage, ctx, t, &cloned, zerocopy.View{})
}

func (r *Recorder) NTPTimestampMessage(ctx *flowctx.Context, ts *NTPTimestamp, t time.Time) {
	cloned := *ts
	r.emit(KindNTPTimestamp, ctx, t, &cloned, zerocopy.View{})
}

func (r *Recorder) NTPControlMessage(ctx *flowctx.Context, ctrl *NTPControl, t time.Time) {
	cloned := *ctrl
	r.emit(KindNTPControl, ctx, t, &cloned, zerocopy.View{})
}

func (r *Recorder) NTPPrivateMessage(ctx *flowctx.Context, priv *NTPPrivate, t time.Time) {
	cloned := *priv
	r.emit(KindNTPPrivate, ctx, t, &cloned, zerocopy.View{})
}

func (r *Recorder) GRE(ctx *flowctx.Context, nextProto string, key, seq uint32, v zerocopy.View, t time.Time) {
	r.emit(KindGRE, ctx, t, &GREFields{NextProto: nextProto, Key: key, Sequence: seq}, v)
}

func (r *Recorder) GREPPTP(ctx *flowctx.Context, nextProto string, payloadLength, callID uint16, seq, ack uint32, v zerocopy.View, t time.Time) {
	r.emit(KindGREPPTP, ctx, t, &GREPPTPFields{
		NextProto:     nextProto,
		PayloadLength: payloadLength,
		CallID:        callID,
		Sequence:      seq,
		Ack:           ack,
	}, v)
}

func (r *Recorder) ESP(ctx *flowctx.Context, spi, seq, length uint32, v zerocopy.View, t time.Time) {
	r.emit(KindESP, ctx, t, &ESPFields{SPI: spi, Sequence: seq, Length: length}, v)
}

func (r *Recorder) TriggerUp(id string, addr flowctx.Address, t time.Time) {
	info := snapshotAddress(addr)
	r.emit(KindTriggerUp, nil, t, &TriggerFields{Target: id, Address: &info}, zerocopy.View{})
}

func (r *Recorder) TriggerDown(id string, t time.Time) {
	r.emit(KindTriggerDown, nil, t, &TriggerFields{Target: id}, zerocopy.View{})
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
