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

package pipeline

import (
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/confengine"
	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/processor"
)

type Config struct {
	Name       string   `config:"name"`
	Processors []string `config:"processors"`
}

type Configs []Config

// Pipeline 将 Record 依次交给每条 pipeline 中的 Processor 处理
//
// 未配置任何 pipeline 时 Record 原样输出
type Pipeline struct {
	configs Configs
	psmgr   *processor.Manager
}

func New(conf *confengine.Config, env processor.Env) (*Pipeline, error) {
	configs, err := loadPipeline(conf)
	if err != nil {
		return nil, err
	}

	psmgr, err := processor.NewManager(conf, env)
	if err != nil {
		return nil, err
	}

	for _, cfg := range configs {
		for _, name := range cfg.Processors {
			if _, ok := psmgr.Get(name); !ok {
				return nil, errors.Errorf("pipeline (%s) refers to unknown processor (%s)", cfg.Name, name)
			}
		}
	}

	return &Pipeline{
		configs: configs,
		psmgr:   psmgr,
	}, nil
}

// Range 每条 pipeline 处理 src 的浅拷贝 被丢弃的 Record 不会交给 f
func (p *Pipeline) Range(src *observer.Record, f func(name string, dst *observer.Record)) {
	if len(p.configs) == 0 {
		f("", src)
		return
	}

	for i := 0; i < len(p.configs); i++ {
		cfg := p.configs[i]
		dst := new(observer.Record)
		*dst = *src

		var err error
		for _, name := range cfg.Processors {
			ps, _ := p.psmgr.Get(name)
			dst, err = ps.Process(dst)
			if err != nil {
				logger.Warnf("pipeline (%s) processor (%s) failed: %v", cfg.Name, name, err)
				break
			}
			if dst == nil {
				break
			}
		}
		if err == nil && dst != nil {
			f(cfg.Name, dst)
		}
	}
}

func (p *Pipeline) Clean() {
	p.psmgr.Clean()
}

func loadPipeline(conf *confengine.Config) (Configs, error) {
	var configs Configs
	if !conf.Has("pipeline") {
		return configs, nil
	}
	if err := conf.UnpackChild("pipeline", &configs); err != nil {
		return nil, err
	}
	return configs, nil
}
