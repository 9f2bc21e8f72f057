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
)

// AddressInfo 地址快照
type AddressInfo struct {
	Class     string `json:"class" msgpack:"class"`
	Proto     string `json:"proto" msgpack:"proto"`
	Direction string `json:"direction" msgpack:"direction"`
	Value     string `json:"value" msgpack:"value"`
}

// Layer 链路中单层 Context 的快照
type Layer struct {
	ID        uint64        `json:"id" msgpack:"id"`
	Proto     string        `json:"proto" msgpack:"proto"`
	Addresses []AddressInfo `json:"addresses,omitempty" msgpack:"addresses,omitempty"`
}

// ContextInfo 事件发生时 Context 的快照
//
// Chain 从顶层到当前 Context 排列 最后一层即为当前 Context
type ContextInfo struct {
	ID        uint64  `json:"id" msgpack:"id"`
	ParentID  uint64  `json:"parentId,omitempty" msgpack:"parentId,omitempty"`
	Proto     string  `json:"proto" msgpack:"proto"`
	Path      string  `json:"path" msgpack:"path"`
	Connected bool    `json:"connected" msgpack:"connected"`
	Chain     []Layer `json:"chain" msgpack:"chain"`
}

func snapshotAddress(addr flowctx.Address) AddressInfo {
	return AddressInfo{
		Class:     addr.Class.String(),
		Proto:     addr.Proto,
		Direction: addr.Direction.String(),
		Value:     addr.String(),
	}
}

// Snapshot 生成 Context 快照
func Snapshot(ctx *flowctx.Context) *ContextInfo {
	chain := ctx.Chain()
	layers := make([]Layer, 0, len(chain))
	for _, c := range chain {
		addrs := c.Addresses()
		layer := Layer{
			ID:    uint64(c.ID()),
			Proto: string(c.Proto()),
		}
		for _, addr := range addrs {
			layer.Addresses = append(layer.Addresses, snapshotAddress(addr))
		}
		layers = append(layers, layer)
	}

	return &ContextInfo{
		ID:        uint64(ctx.ID()),
		ParentID:  uint64(ctx.ParentID()),
		Proto:     string(ctx.Proto()),
		Path:      ctx.Path(),
		Connected: ctx.Connected(),
		Chain:     layers,
	}
}

// Record 事件记录
//
// Record 持有所有数据的拷贝 可以安全地跨 goroutine 传递以及序列化
// Fields 的具体类型由 Kind 决定
type Record struct {
	ID      string       `json:"id" msgpack:"id"`
	Kind    Kind         `json:"kind" msgpack:"kind"`
	Time    time.Time    `json:"time" msgpack:"time"`
	Context *ContextInfo `json:"context,omitempty" msgpack:"context,omitempty"`
	Fields  any          `json:"fields,omitempty" msgpack:"fields,omitempty"`
	Payload []byte       `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// Truncated Payload 是否因为超出上限而被截断
	Truncated bool `json:"truncated,omitempty" msgpack:"truncated,omitempty"`

	// Targets 事件所在链路上处于激活状态的监控目标 由 processor 填充
	Targets []string `json:"targets,omitempty" msgpack:"targets,omitempty"`
}

type UnrecognisedStreamFields struct {
	Position int64 `json:"position" msgpack:"position"`
}

type ICMPFields struct {
	Type uint8 `json:"type" msgpack:"type"`
	Code uint8 `json:"code" msgpack:"code"`
}

type CommandFields struct {
	Command string `json:"command" msgpack:"command"`
}

type ResponseFields struct {
	Status int      `json:"status" msgpack:"status"`
	Text   []string `json:"text" msgpack:"text"`
}

type SMTPDataFields struct {
	From string   `json:"from" msgpack:"from"`
	To   []string `json:"to" msgpack:"to"`
}

type SIPRequestFields struct {
	Method string `json:"method" msgpack:"method"`
	From   string `json:"from" msgpack:"from"`
	To     string `json:"to" msgpack:"to"`
}

type SIPResponseFields struct {
	Code   int    `json:"code" msgpack:"code"`
	Status string `json:"status" msgpack:"status"`
	From   string `json:"from" msgpack:"from"`
	To     string `json:"to" msgpack:"to"`
}

type HTTPRequestFields struct {
	Method string `json:"method" msgpack:"method"`
	URL    string `json:"url" msgpack:"url"`
	Header Header `json:"header" msgpack:"header"`
}

type HTTPResponseFields struct {
	Code   int    `json:"code" msgpack:"code"`
	Status string `json:"status" msgpack:"status"`
	URL    string `json:"url" msgpack:"url"`
	Header Header `json:"header" msgpack:"header"`
}

type GREFields struct {
	NextProto string `json:"nextProto" msgpack:"nextProto"`
	Key       uint32 `json:"key" msgpack:"key"`
	Sequence  uint32 `json:"sequence" msgpack:"sequence"`
}

type GREPPTPFields struct {
	NextProto     string `json:"nextProto" msgpack:"nextProto"`
	PayloadLength uint16 `json:"payloadLength" msgpack:"payloadLength"`
	CallID        uint16 `json:"callId" msgpack:"callId"`
	Sequence      uint32 `json:"sequence" msgpack:"sequence"`
	Ack           uint32 `json:"ack" msgpack:"ack"`
}

type ESPFields struct {
	SPI      uint32 `json:"spi" msgpack:"spi"`
	Sequence uint32 `json:"sequence" msgpack:"sequence"`
	Length   uint32 `json:"length" msgpack:"length"`
}

type TriggerFields struct {
	Target  string       `json:"target" msgpack:"target"`
	Address *AddressInfo `json:"address,omitempty" msgpack:"address,omitempty"`
}
