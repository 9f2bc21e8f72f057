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

package sniffer

type Config struct {
	// Engine 嗅探引擎 默认为 pcapfile
	Engine string `config:"engine"`

	// File 离线回放的 pcap/pcapng 文件
	File string `config:"file"`

	// IPv4Only 丢弃 IPv6 报文
	IPv4Only bool `config:"ipv4Only"`

	// Speed 回放速度倍率 0 表示不按照报文时间间隔回放
	Speed float64 `config:"speed"`
}
