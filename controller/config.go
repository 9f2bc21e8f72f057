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

package controller

import (
	"time"

	"github.com/packetd/flowmon/dispatch"
	"github.com/packetd/flowmon/engine"
	"github.com/packetd/flowmon/observer"
)

type Config struct {
	Engine   engine.Config            `config:"engine"`
	Dispatch dispatch.Config          `config:"dispatch"`
	Recorder observer.RecorderOptions `config:"recorder"`

	// Triggers 启动时即处于激活状态的监控目标
	Triggers []TriggerConfig `config:"triggers"`

	// BufferSize 等待 pipeline 处理的 Record 队列长度 队列满时丢弃
	BufferSize int `config:"bufferSize"`

	// Backpressure 队列满时阻塞等待而不是丢弃
	//
	// 数据包源为离线文件时总是开启
	Backpressure bool `config:"backpressure"`

	// ExpiredInterval 过期链接的检查间隔
	ExpiredInterval time.Duration `config:"expiredInterval"`
}

type TriggerConfig struct {
	ID      string `config:"id"`
	Address string `config:"address"`
}

func (c Config) GetBufferSize() int {
	if c.BufferSize <= 0 {
		return 8192
	}
	return c.BufferSize
}

func (c Config) GetExpiredInterval() time.Duration {
	if c.ExpiredInterval <= 0 {
		return time.Minute
	}
	return c.ExpiredInterval
}
