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

// Package trigger 维护监控目标的激活状态
//
// 目标的激活与失效与任何 Context 无关 只按照目标标识校验时序后交给 observer
package trigger

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/observer"
)

var (
	// ErrNotActive 目标未激活时收到 trigger_down
	ErrNotActive = errors.New("trigger: target not active")

	// ErrTimeRegression 时间戳早于该目标上一次状态变更
	ErrTimeRegression = errors.New("trigger: time regression")
)

var violations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "trigger_violations_total",
		Help:      "Trigger sequence violations total",
	},
	[]string{"reason"},
)

// Error 归属于单个目标的时序错误
type Error struct {
	Target string
	Err    error
}

func (e *Error) Error() string {
	return "target " + e.Target + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Clock 时间来源
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 使用系统时间
var SystemClock Clock = systemClock{}

// Target 目标当前状态
type Target struct {
	ID      string
	Address flowctx.Address
	Since   time.Time
}

type state struct {
	addr   flowctx.Address
	since  time.Time
	last   time.Time
	active bool
}

type addrKey struct {
	class flowctx.Class
	proto string
	value string
}

func keyOf(addr flowctx.Address) addrKey {
	return addrKey{class: addr.Class, proto: addr.Proto, value: addr.Value}
}

// Correlator 校验并投递目标的激活/失效事件
//
// 对同一目标而言 状态变更的时间戳必须单调不减 trigger_down 必须发生在 trigger_up 之后
// 违反时序的事件不会交给 observer 只记录日志以及指标 且不影响其他目标
type Correlator struct {
	obs   observer.Observer
	clock Clock

	// deliver 覆盖 校验 -> 投递 的整个过程 保证 observer 收到的顺序与校验顺序一致
	deliver sync.Mutex

	mut     sync.RWMutex
	targets map[string]*state
	index   map[addrKey]map[string]struct{}
}

// New 创建 Correlator 实例 clock 为 nil 时使用 SystemClock
func New(obs observer.Observer, clock Clock) *Correlator {
	if clock == nil {
		clock = SystemClock
	}
	return &Correlator{
		obs:     obs,
		clock:   clock,
		targets: make(map[string]*state),
		index:   make(map[addrKey]map[string]struct{}),
	}
}

func (c *Correlator) now(t time.Time) time.Time {
	if t.IsZero() {
		return c.clock.Now()
	}
	return t
}

func (c *Correlator) violate(id, reason string, err error) error {
	violations.WithLabelValues(reason).Inc()
	logger.Warnf("trigger target (%s) rejected: %v", id, err)
	return &Error{Target: id, Err: err}
}

// Up 激活目标 t 为零值时使用 clock 的当前时间
//
// 已经激活的目标再次 Up 时更新其地址
func (c *Correlator) Up(id string, addr flowctx.Address, t time.Time) error {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	t = c.now(t)

	c.mut.Lock()
	st, ok := c.targets[id]
	if ok && t.Before(st.last) {
		c.mut.Unlock()
		return c.violate(id, "up", errors.Wrapf(ErrTimeRegression, "up at %s before %s", t.Format(time.RFC3339Nano), st.last.Format(time.RFC3339Nano)))
	}
	if !ok {
		st = &state{}
		c.targets[id] = st
	}
	if st.active {
		c.unindex(id, st.addr)
	}
	st.addr = addr
	st.since = t
	st.last = t
	st.active = true
	c.indexAddr(id, addr)
	c.mut.Unlock()

	c.obs.TriggerUp(id, addr, t)
	return nil
}

// Down 使目标失效 t 为零值时使用 clock 的当前时间
func (c *Correlator) Down(id string, t time.Time) error {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	t = c.now(t)

	c.mut.Lock()
	st, ok := c.targets[id]
	if !ok || !st.active {
		c.mut.Unlock()
		return c.violate(id, "not_active", ErrNotActive)
	}
	if t.Before(st.last) {
		c.mut.Unlock()
		return c.violate(id, "down", errors.Wrapf(ErrTimeRegression, "down at %s before %s", t.Format(time.RFC3339Nano), st.last.Format(time.RFC3339Nano)))
	}
	st.last = t
	st.active = false
	c.unindex(id, st.addr)
	c.mut.Unlock()

	c.obs.TriggerDown(id, t)
	return nil
}

func (c *Correlator) indexAddr(id string, addr flowctx.Address) {
	k := keyOf(addr)
	ids, ok := c.index[k]
	if !ok {
		ids = make(map[string]struct{})
		c.index[k] = ids
	}
	ids[id] = struct{}{}
}

func (c *Correlator) unindex(id string, addr flowctx.Address) {
	k := keyOf(addr)
	delete(c.index[k], id)
	if len(c.index[k]) == 0 {
		delete(c.index, k)
	}
}

// Active 返回目标是否处于激活状态以及其地址
func (c *Correlator) Active(id string) (flowctx.Address, bool) {
	c.mut.RLock()
	defer c.mut.RUnlock()

	st, ok := c.targets[id]
	if !ok || !st.active {
		return flowctx.Address{}, false
	}
	return st.addr, true
}

// Match 返回在 addr 上处于激活状态的目标 忽略地址方向
func (c *Correlator) Match(addr flowctx.Address) []string {
	c.mut.RLock()
	defer c.mut.RUnlock()

	ids := c.index[keyOf(addr)]
	if len(ids) == 0 {
		return nil
	}
	dst := make([]string, 0, len(ids))
	for id := range ids {
		dst = append(dst, id)
	}
	sort.Strings(dst)
	return dst
}

// Targets 返回所有处于激活状态的目标 按照 ID 排序
func (c *Correlator) Targets() []Target {
	c.mut.RLock()
	defer c.mut.RUnlock()

	var targets []Target
	for id, st := range c.targets {
		if st.active {
			targets = append(targets, Target{ID: id, Address: st.addr, Since: st.since})
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].ID < targets[j].ID
	})
	return targets
}

// ParseAddress 将配置中的地址解析为 flowctx.Address
//
// 支持 IP 地址以及 MAC 地址
func ParseAddress(s string) (flowctx.Address, error) {
	if ip := net.ParseIP(s); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return flowctx.Address{Class: flowctx.ClassNetwork, Proto: "ipv4", Value: string(ip4)}, nil
		}
		return flowctx.Address{Class: flowctx.ClassNetwork, Proto: "ipv6", Value: string(ip.To16())}, nil
	}
	if mac, err := net.ParseMAC(s); err == nil {
		return flowctx.HardwareAddress(mac, flowctx.DirSrc), nil
	}
	return flowctx.Address{}, errors.Errorf("trigger: invalid address %q", s)
}
