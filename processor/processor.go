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

package processor

import (
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/confengine"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/observer"
)

type Configs []Config

type Config struct {
	Name   string         `config:"name"`
	Config map[string]any `config:"config"`
}

// Matcher 返回地址上处于激活状态的监控目标
type Matcher interface {
	Match(addr flowctx.Address) []string
}

// Env Processor 创建时可使用的运行时依赖
type Env struct {
	Matcher Matcher
}

// Processor 定义了数据处理接口的行为
//
// Process 返回 nil 表示丢弃该 Record 后续 Processor 不再执行
// Processor 可以直接修改传入的 Record
type Processor interface {
	// Name 返回处理器的名称
	Name() string

	// Process 处理 *observer.Record 数据
	Process(*observer.Record) (*observer.Record, error)

	// Clean 清理资源
	Clean()
}

type CreateFunc func(conf map[string]any, env Env) (Processor, error)

var processorFactory = map[string]CreateFunc{}

func Register(name string, f CreateFunc) {
	processorFactory[name] = f
}

func Get(name string) (CreateFunc, error) {
	f, ok := processorFactory[name]
	if !ok {
		return nil, errors.Errorf("processor factory (%s) not found", name)
	}
	return f, nil
}

func loadProcessors(conf *confengine.Config, env Env) ([]Processor, error) {
	var configs Configs
	if err := conf.UnpackOptional("processor", &configs); err != nil {
		return nil, err
	}

	var processors []Processor
	for _, pcfg := range configs {
		f, err := Get(pcfg.Name)
		if err != nil {
			return nil, err
		}
		con, err := f(pcfg.Config, env)
		if err != nil {
			return nil, errors.Wrapf(err, "create processor (%s)", pcfg.Name)
		}
		processors = append(processors, con)
	}
	return processors, nil
}

// Manager 管理着 processor 列表 仅负责 Processor 的加载和检索
type Manager struct {
	processors []Processor
}

func NewManager(conf *confengine.Config, env Env) (*Manager, error) {
	processors, err := loadProcessors(conf, env)
	if err != nil {
		return nil, err
	}

	return &Manager{
		processors: processors,
	}, nil
}

func (mgr *Manager) Get(name string) (Processor, bool) {
	for _, p := range mgr.processors {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Clean 清理所有 Processor
func (mgr *Manager) Clean() {
	for _, p := range mgr.processors {
		p.Clean()
	}
}
