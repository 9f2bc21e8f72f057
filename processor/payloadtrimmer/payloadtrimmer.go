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

package payloadtrimmer

import (
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/internal/mapstructure"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/processor"
)

const Name = "payloadtrimmer"

func init() {
	processor.Register(Name, New)
}

type Config struct {
	// MaxSize Payload 最多保留的字节数 0 表示不限制
	MaxSize int `config:"maxSize"`

	// Strip 这些类型的事件不保留 Payload
	Strip []string `config:"strip"`
}

type payloadTrimmer struct {
	maxSize int
	strip   map[observer.Kind]bool
}

func New(conf map[string]any, _ processor.Env) (processor.Processor, error) {
	var cfg Config
	if err := mapstructure.Decode(conf, &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxSize < 0 {
		return nil, errors.Errorf("invalid maxSize (%d)", cfg.MaxSize)
	}

	strip := make(map[observer.Kind]bool)
	for _, name := range cfg.Strip {
		k, ok := observer.ParseKind(name)
		if !ok {
			return nil, errors.Errorf("unknown event kind (%s)", name)
		}
		strip[k] = true
	}

	return &payloadTrimmer{
		maxSize: cfg.MaxSize,
		strip:   strip,
	}, nil
}

func (p *payloadTrimmer) Name() string {
	return Name
}

func (p *payloadTrimmer) Process(record *observer.Record) (*observer.Record, error) {
	if len(record.Payload) == 0 {
		return record, nil
	}

	if p.strip[record.Kind] {
		record.Payload = nil
		record.Truncated = true
		return record, nil
	}
	if p.maxSize > 0 && len(record.Payload) > p.maxSize {
		record.Payload = record.Payload[:p.maxSize:p.maxSize]
		record.Truncated = true
	}
	return record, nil
}

func (p *payloadTrimmer) Clean() {}
