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

package engine

import (
	"github.com/packetd/flowmon/common"
)

type Config struct {
	// Partitions 分区数量 每个分区独占一个 goroutine
	Partitions int `config:"partitions"`

	// QueueSize 每个分区的队列长度 队列满时数据包将被丢弃
	QueueSize int `config:"queueSize"`
}

func (c Config) GetPartitions() int {
	if c.Partitions <= 0 {
		return common.Concurrency()
	}
	return c.Partitions
}

func (c Config) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 4096
	}
	return c.QueueSize
}
