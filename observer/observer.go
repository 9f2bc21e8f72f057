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

	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
)

// Observer 事件消费方
//
// 每种协议事件对应一个方法 所有方法均由分区 worker 同步调用
// 不同分区会并发调用同一个 Observer 因此实现方需要保证并发安全
//
// 方法参数中的 zerocopy.View 以及 Header 等引用类型仅在调用期间有效
// 如需保留请自行拷贝
type Observer interface {
	// 面向连接
	ConnectionUp(ctx *flowctx.Context, t time.Time)
	ConnectionDown(ctx *flowctx.Context, t time.Time)
	UnrecognisedStream(ctx *flowctx.Context, v zerocopy.View, position int64, t time.Time)

	// 非面向连接
	UnrecognisedDatagram(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	ICMP(ctx *flowctx.Context, typ, code uint8, v zerocopy.View, t time.Time)

	// 邮件
	IMAP(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	IMAPSSL(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	POP3(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	POP3SSL(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	SMTPAuth(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	SMTPCommand(ctx *flowctx.Context, command string, t time.Time)
	SMTPResponse(ctx *flowctx.Context, status int, text []string, t time.Time)
	SMTPData(ctx *flowctx.Context, from string, to []string, v zerocopy.View, t time.Time)

	// FTP
	FTPCommand(ctx *flowctx.Context, command string, t time.Time)
	FTPResponse(ctx *flowctx.Context, status int, text []string, t time.Time)

	// 媒体与信令
	RTP(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	RTPSSL(ctx *flowctx.Context, v zerocopy.View, t time.Time)
	SIPRequest(ctx *flowctx.Context, method, from, to string, v zerocopy.View, t time.Time)
	SIPResponse(ctx *flowctx.Context, code int, status, from, to string, v zerocopy.View, t time.Time)
	SIPSSL(ctx *flowctx.Context, v zerocopy.View, t time.Time)

	// HTTP
	HTTPRequest(ctx *flowctx.Context, method, url string, hdr Header, body zerocopy.View, t time.Time)
	HTTPResponse(ctx *flowctx.Context, code int, status string, hdr Header, url string, body zerocopy.View, t time.Time)

	// DNS/NTP
	DNSMessage(ctx *flowctx.Context, msg *DNSMessage, t time.Time)
	NTPTimestampMessage(ctx *flowctx.Context, ts *NTPTimestamp, t time.Time)
	NTPControlMessage(ctx *flowctx.Context, ctrl *NTPControl, t time.Time)
	NTPPrivateMessage(ctx *flowctx.Context, priv *NTPPrivate, t time.Time)

	// 隧道
	GRE(ctx *flowctx.Context, nextProto string, key, seq uint32, v zerocopy.View, t time.Time)
	GREPPTP(ctx *flowctx.Context, nextProto string, payloadLength, callID uint16, seq, ack uint32, v zerocopy.View, t time.Time)
	ESP(ctx *flowctx.Context, spi, seq, length uint32, v zerocopy.View, t time.Time)

	// 监控目标
	TriggerUp(id string, addr flowctx.Address, t time.Time)
	TriggerDown(id string, t time.Time)
}

// Base 所有方法均为空实现
//
// 嵌入 Base 后仅需实现关心的方法
type Base struct{}

var _ Observer = Base{}

func (Base) ConnectionUp(*flowctx.Context, time.Time)                                                   {}
func (Base) ConnectionDown(*flowctx.Context, time.Time)                                                 {}
func (Base) UnrecognisedStream(*flowctx.Context, zerocopy.View, int64, time.Time)                       {}
func (Base) UnrecognisedDatagram(*flowctx.Context, zerocopy.View, time.Time)                            {}
func (Base) ICMP(*flowctx.Context, uint8, uint8, zerocopy.View, time.Time)                              {}
func (Base) IMAP(*flowctx.Context, zerocopy.View, time.Time)                                            {}
func (Base) IMAPSSL(*flowctx.Context, zerocopy.View, time.Time)                                         {}
func (Base) POP3(*flowctx.Context, zerocopy.View, time.Time)                                            {}
func (Base) POP3SSL(*flowctx.Context, zerocopy.View, time.Time)                                         {}
func (Base) SMTPAuth(*flowctx.Context, zerocopy.View, time.Time)                                        {}
func (Base) SMTPCommand(*flowctx.Context, string, time.Time)                                            {}
func (Base) SMTPResponse(*flowctx.Context, int, []string, time.Time)                                    {}
func (Base) SMTPData(*flowctx.Context, string, []string, zerocopy.View, time.Time)                      {}
func (Base) FTPCommand(*flowctx.Context, string, time.Time)                                             {}
func (Base) FTPResponse(*flowctx.Context, int, []string, time.Time)                                     {}
func (Base) RTP(*flowctx.Context, zerocopy.View, time.Time)                                             {}
func (Base) RTPSSL(*flowctx.Context, zerocopy.View, time.Time)                                          {}
func (Base) SIPRequest(*flowctx.Context, string, string, string, zerocopy.View, time.Time)              {}
func (Base) SIPSSL(*flowctx.Context, zerocopy.View, time.Time)                                          {}
func (Base) DNSMessage(*flowctx.Context, *DNSMessage, time.Time)                                        {}
func (Base) NTPTimestampMessage(*flowctx.Context, *NTPTimestamp, time.Time)                             {}
func (Base) NTPControlMessage(*flowctx.Context, *NTPControl, time.Time)                                 {}
func (Base) NTPPrivateMessage(*flowctx.Context, *NTPPrivate, time.Time)                                 {}
func (Base) ESP(*flowctx.Context, uint32, uint32, uint32, zerocopy.View, time.Time)                     {}
func (Base) TriggerUp(string, flowctx.Address, time.Time)                                               {}
func (Base) TriggerDown(string, time.Time)                                                              {}
func (Base) SIPResponse(*flowctx.Context, int, string, string, string, zerocopy.View, time.Time)        {}
func (Base) HTTPRequest(*flowctx.Context, string, string, Header, zerocopy.View, time.Time)             {}
func (Base) HTTPResponse(*flowctx.Context, int, string, Header, string, zerocopy.View, time.Time)       {}
func (Base) GRE(*flowctx.Context, string, uint32, uint32, zerocopy.View, time.Time)                     {}
func (Base) GREPPTP(*flowctx.Context, string, uint16, uint16, uint32, uint32, zerocopy.View, time.Time) {}
