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

// Package pmail 邮件收取协议 (IMAP/POP3) 及其 TLS 版本
//
// 这些协议不做内容解析 每段数据直接作为事件负载上报
package pmail

import (
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
)

type emitFunc func(o observer.Observer, ctx *flowctx.Context, v zerocopy.View, t time.Time)

func init() {
	register(socket.ProtoIMAP, observer.Observer.IMAP)
	register(socket.ProtoIMAPSSL, observer.Observer.IMAPSSL)
	register(socket.ProtoPOP3, observer.Observer.POP3)
	register(socket.ProtoPOP3SSL, observer.Observer.POP3SSL)
}

func register(proto socket.Proto, emit emitFunc) {
	protocol.Register(proto, func(env protocol.Env, _ common.Options) protocol.Decoder {
		return &decoder{env: env, emit: emit}
	})
}

type decoder struct {
	env  protocol.Env
	emit emitFunc
}

func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	if v.Empty() {
		return 0, nil
	}
	d.emit(d.env.Observer(), ctx, v, t)
	return v.Len(), nil
}
