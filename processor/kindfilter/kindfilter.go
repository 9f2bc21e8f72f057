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

package kindfilter

import (
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/internal/mapstructure"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/processor"
)

const Name = "kindfilter"

func init() {
	processor.Register(Name, New)
}

type Config struct {
	// Include 仅保留的事件类型 为空时表示全部
	Include []string `config:"include"`

	// Exclude 需要丢弃的事件类型 优先级高于 Include
	Exclude []string `config:"exclude"`

	// Protocols 仅保留指定协议 Context 上的事件 trigger 事件不受影响
	Protocols []string `config:"protocols"`
}

type kindFilter struct {
	include   map[observer.Kind]bool
	exclude   map[observer.Kind]bool
	protocols map[string]bool
}

func parseKinds(names []string) (map[observer.Kind]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	kinds := make(map[observer.Kind]bool, len(names))
	for _, name := range names {
		k, ok := observer.ParseKind(name)
		if !ok {
			return nil, errors.Errorf("unknown event kind (%s)", name)
		}
		kinds[k] = true
	}
	return kinds, nil
}

func New(conf map[string]any, _ processor.Env) (processor.Processor, error) {
	var cfg Config
	if err := mapstructure.Decode(conf, &cfg); err != nil {
		return nil, err
	}

	include, err := parseKinds(cfg.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := parseKinds(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	var protocols map[string]bool
	for _, proto := range cfg.Protocols {
		if protocols == nil {
			protocols = make(map[string]bool)
		}
		protocols[proto] = true
	}

	return &kindFilter{
		include:   include,
		exclude:   exclude,
		protocols: protocols,
	}, nil
}

func (f *kindFilter) Name() string {
	return Name
}

func (f *kindFilter) Process(record *observer.Record) (*observer.Record, error) {
	if f.exclude[record.Kind] {
		return nil, nil
	}
	if f.include != nil && !f.include[record.Kind] {
		return nil, nil
	}
	if f.protocols != nil && record.Context != nil && !f.protocols[record.Context.Proto] {
		return nil, nil
	}
	return record, nil
}

func (f *kindFilter) Clean() {}
