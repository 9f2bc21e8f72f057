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

package targettagger

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/packetd/flowmon/internal/mapstructure"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/processor"
	"github.com/packetd/flowmon/trigger"
)

const Name = "targettagger"

func init() {
	processor.Register(Name, New)
}

type Config struct {
	// DropUnmatched 丢弃未命中任何监控目标的事件 trigger 事件除外
	DropUnmatched bool `config:"dropUnmatched"`

	// Innermost 仅匹配最内层的网络地址 默认匹配链路上的所有层
	Innermost bool `config:"innermost"`
}

type targetTagger struct {
	cfg     Config
	matcher processor.Matcher
}

func New(conf map[string]any, env processor.Env) (processor.Processor, error) {
	var cfg Config
	if err := mapstructure.Decode(conf, &cfg); err != nil {
		return nil, err
	}
	if env.Matcher == nil {
		return nil, errors.New("targettagger requires a target matcher")
	}
	return &targetTagger{
		cfg:     cfg,
		matcher: env.Matcher,
	}, nil
}

func (p *targetTagger) Name() string {
	return Name
}

func (p *targetTagger) Process(record *observer.Record) (*observer.Record, error) {
	if record.Context == nil {
		return record, nil
	}

	layers := record.Context.Chain
	if p.cfg.Innermost {
		layers = innermost(layers)
	}

	set := make(map[string]struct{})
	for _, layer := range layers {
		for _, info := range layer.Addresses {
			if info.Class != "network" && info.Class != "hardware" {
				continue
			}
			addr, err := trigger.ParseAddress(info.Value)
			if err != nil {
				continue
			}
			for _, id := range p.matcher.Match(addr) {
				set[id] = struct{}{}
			}
		}
	}

	if len(set) == 0 {
		if p.cfg.DropUnmatched {
			return nil, nil
		}
		return record, nil
	}

	targets := make([]string, 0, len(set))
	for id := range set {
		targets = append(targets, id)
	}
	sort.Strings(targets)
	record.Targets = targets
	return record, nil
}

// innermost 返回最靠近当前 Context 且携带网络地址的一层
func innermost(layers []observer.Layer) []observer.Layer {
	for i := len(layers) - 1; i >= 0; i-- {
		for _, info := range layers[i].Addresses {
			if info.Class == "network" {
				return layers[i : i+1]
			}
		}
	}
	return nil
}

func (p *targetTagger) Clean() {}
