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

package exporter

import (
	"github.com/pkg/errors"
)

const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

type Config struct {
	Events EventsConfig `config:"events"`
}

// EventsConfig 事件输出配置
//
// Console 为 true 时写入标准输出 否则写入按大小滚动的文件
type EventsConfig struct {
	Enabled    bool   `config:"enabled"`
	Format     string `config:"format"`
	Console    bool   `config:"console"`
	Filename   string `config:"filename"`
	MaxSize    int    `config:"maxSize"` // unit: MB
	MaxBackups int    `config:"maxBackups"`
	MaxAge     int    `config:"maxAge"` // unit: days
}

func (ec *EventsConfig) Validate() error {
	switch ec.Format {
	case "":
		ec.Format = FormatJSON
	case FormatJSON, FormatMsgpack:
	default:
		return errors.Errorf("unsupported events format (%s)", ec.Format)
	}

	if ec.Filename == "" {
		ec.Filename = "events.log"
	}
	if ec.MaxSize <= 0 {
		ec.MaxSize = 100
	}
	if ec.MaxAge <= 0 {
		ec.MaxAge = 7
	}
	if ec.MaxBackups <= 0 {
		ec.MaxBackups = 10
	}
	return nil
}
