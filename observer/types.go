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
	"sort"
	"strings"
)

// HeaderField 保留首部字段最近一次出现时的原始名称以及值
type HeaderField struct {
	Name  string `json:"name" msgpack:"name"`
	Value string `json:"value" msgpack:"value"`
}

// Header HTTP 首部 以小写名称为 key
//
// 同名字段 (大小写不敏感) 仅保留最后一次出现的原始名称与值
type Header map[string]HeaderField

// Set 设置首部字段
func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = HeaderField{Name: name, Value: value}
}

// Get 大小写不敏感地获取首部字段的值
func (h Header) Get(name string) (string, bool) {
	f, ok := h[strings.ToLower(name)]
	return f.Value, ok
}

// Keys 返回排序后的小写字段名称
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone 返回 Header 的副本
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	dst := make(Header, len(h))
	for k, v := range h {
		dst[k] = v
	}
	return dst
}

// DNSHeader DNS 报文首部
type DNSHeader struct {
	ID                 uint16 `json:"id" msgpack:"id"`
	Response           bool   `json:"qr" msgpack:"qr"`
	Opcode             uint8  `json:"opcode" msgpack:"opcode"`
	Authoritative      bool   `json:"aa" msgpack:"aa"`
	Truncated          bool   `json:"tc" msgpack:"tc"`
	RecursionDesired   bool   `json:"rd" msgpack:"rd"`
	RecursionAvailable bool   `json:"ra" msgpack:"ra"`
	RCode              uint8  `json:"rcode" msgpack:"rcode"`
	QDCount            uint16 `json:"qdcount" msgpack:"qdcount"`
	ANCount            uint16 `json:"ancount" msgpack:"ancount"`
	NSCount            uint16 `json:"nscount" msgpack:"nscount"`
	ARCount            uint16 `json:"arcount" msgpack:"arcount"`
}

// DNSQuery DNS 查询记录
type DNSQuery struct {
	Name  string `json:"name" msgpack:"name"`
	Type  string `json:"type" msgpack:"type"`
	Class string `json:"class" msgpack:"class"`
}

// DNSRR DNS 资源记录
//
// Data 为解析后的可读值 如 A 记录为 IP 地址 MX 记录为 `preference host`
type DNSRR struct {
	Name  string `json:"name" msgpack:"name"`
	Type  string `json:"type" msgpack:"type"`
	Class string `json:"class" msgpack:"class"`
	TTL   uint32 `json:"ttl" msgpack:"ttl"`
	Data  string `json:"data" msgpack:"data"`
}

// DNSMessage 解析后的 DNS 报文
type DNSMessage struct {
	Header      DNSHeader  `json:"header" msgpack:"header"`
	Queries     []DNSQuery `json:"queries" msgpack:"queries"`
	Answers     []DNSRR    `json:"answers" msgpack:"answers"`
	Authorities []DNSRR    `json:"authorities" msgpack:"authorities"`
	Additional  []DNSRR    `json:"additional" msgpack:"additional"`
}

// NTPHeader NTP 报文首字节
type NTPHeader struct {
	LeapIndicator uint8 `json:"leap" msgpack:"leap"`
	Version       uint8 `json:"version" msgpack:"version"`
	Mode          uint8 `json:"mode" msgpack:"mode"`
}

// NTPTimestamp NTP 时间同步报文 (mode 1-5)
//
// 时间戳均已转换为自 1900-01-01 起的秒数
type NTPTimestamp struct {
	Header             NTPHeader `json:"header" msgpack:"header"`
	Stratum            uint8     `json:"stratum" msgpack:"stratum"`
	Poll               int8      `json:"poll" msgpack:"poll"`
	Precision          int8      `json:"precision" msgpack:"precision"`
	RootDelay          float64   `json:"rootDelay" msgpack:"rootDelay"`
	RootDispersion     float64   `json:"rootDispersion" msgpack:"rootDispersion"`
	ReferenceID        uint32    `json:"referenceId" msgpack:"referenceId"`
	ReferenceTimestamp float64   `json:"referenceTimestamp" msgpack:"referenceTimestamp"`
	OriginateTimestamp float64   `json:"originateTimestamp" msgpack:"originateTimestamp"`
	ReceiveTimestamp   float64   `json:"receiveTimestamp" msgpack:"receiveTimestamp"`
	TransmitTimestamp  float64   `json:"transmitTimestamp" msgpack:"transmitTimestamp"`
	HasExtension       bool      `json:"hasExtension" msgpack:"hasExtension"`
}

// NTPControl NTP 控制报文 (mode 6)
type NTPControl struct {
	Header        NTPHeader `json:"header" msgpack:"header"`
	Response      bool      `json:"response" msgpack:"response"`
	Error         bool      `json:"error" msgpack:"error"`
	More          bool      `json:"more" msgpack:"more"`
	Opcode        uint8     `json:"opcode" msgpack:"opcode"`
	Sequence      uint16    `json:"sequence" msgpack:"sequence"`
	Status        uint16    `json:"status" msgpack:"status"`
	AssociationID uint16    `json:"associationId" msgpack:"associationId"`
	Offset        uint16    `json:"offset" msgpack:"offset"`
	Count         uint16    `json:"count" msgpack:"count"`
	HasAuth       bool      `json:"hasAuth" msgpack:"hasAuth"`
}

// NTPPrivate NTP 私有报文 (mode 7)
type NTPPrivate struct {
	Header         NTPHeader `json:"header" msgpack:"header"`
	Response       bool      `json:"response" msgpack:"response"`
	More           bool      `json:"more" msgpack:"more"`
	Authenticated  bool      `json:"authenticated" msgpack:"authenticated"`
	Sequence       uint8     `json:"sequence" msgpack:"sequence"`
	Implementation uint8     `json:"implementation" msgpack:"implementation"`
	RequestCode    uint8     `json:"requestCode" msgpack:"requestCode"`
}
