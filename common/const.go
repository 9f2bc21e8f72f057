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

package common

const (
	// App 应用程序名称
	App = "flowmon"

	// Version 应用程序版本
	Version = "v0.0.1"

	// ReadWriteBlockSize 单次读取的块大小
	//
	// 行协议 (smtp/ftp/sip) 解析时单行的最大长度也以此为准
	ReadWriteBlockSize = 4096

	// MaxStreamBuffer 面向连接的 Context 默认最多缓存的未消费字节数
	//
	// 超过此值仍无法被 decoder 消费的数据将被当做 unrecognised_stream 上报
	// 参见 connstream 的保留策略
	MaxStreamBuffer = 64 * 1024
)
