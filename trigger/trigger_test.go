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

package trigger

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/observer"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type event struct {
	kind observer.Kind
	id   string
	t    time.Time
}

type recordObserver struct {
	observer.Base
	events []event
}

func (o *recordObserver) TriggerUp(id string, _ flowctx.Address, t time.Time) {
	o.events = append(o.events, event{kind: observer.KindTriggerUp, id: id, t: t})
}

func (o *recordObserver) TriggerDown(id string, t time.Time) {
	o.events = append(o.events, event{kind: observer.KindTriggerDown, id: id, t: t})
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func mustAddress(t *testing.T, s string) flowctx.Address {
	addr, err := ParseAddress(s)
	require.NoError(t, err)
	return addr
}

func TestUpDown(t *testing.T) {
	obs := &recordObserver{}
	c := New(obs, &fakeClock{now: t0})
	addr := mustAddress(t, "10.0.0.1")

	require.NoError(t, c.Up("T1", addr, t0.Add(time.Second)))
	got, ok := c.Active("T1")
	assert.True(t, ok)
	assert.Equal(t, addr, got)

	require.NoError(t, c.Down("T1", t0.Add(2*time.Second)))
	_, ok = c.Active("T1")
	assert.False(t, ok)

	assert.Equal(t, []event{
		{kind: observer.KindTriggerUp, id: "T1", t: t0.Add(time.Second)},
		{kind: observer.KindTriggerDown, id: "T1", t: t0.Add(2 * time.Second)},
	}, obs.events)
}

func TestViolations(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *Correlator) error
		err  error
	}{
		{
			name: "Down without up",
			run: func(c *Correlator) error {
				return c.Down("T1", t0)
			},
			err: ErrNotActive,
		},
		{
			name: "Down twice",
			run: func(c *Correlator) error {
				_ = c.Up("T1", flowctx.TargetAddress("T1"), t0)
				_ = c.Down("T1", t0.Add(time.Second))
				return c.Down("T1", t0.Add(2*time.Second))
			},
			err: ErrNotActive,
		},
		{
			name: "Down before up",
			run: func(c *Correlator) error {
				_ = c.Up("T1", flowctx.TargetAddress("T1"), t0.Add(time.Second))
				return c.Down("T1", t0)
			},
			err: ErrTimeRegression,
		},
		{
			name: "Up before down",
			run: func(c *Correlator) error {
				_ = c.Up("T1", flowctx.TargetAddress("T1"), t0)
				_ = c.Down("T1", t0.Add(2*time.Second))
				return c.Up("T1", flowctx.TargetAddress("T1"), t0.Add(time.Second))
			},
			err: ErrTimeRegression,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&recordObserver{}, &fakeClock{now: t0})
			err := tt.run(c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))

			var te *Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, "T1", te.Target)
		})
	}
}

func TestViolationIsolated(t *testing.T) {
	obs := &recordObserver{}
	c := New(obs, &fakeClock{now: t0})

	require.NoError(t, c.Up("T1", mustAddress(t, "10.0.0.1"), t0.Add(time.Second)))
	assert.Error(t, c.Down("T1", t0))
	assert.Error(t, c.Down("T2", t0))
	require.NoError(t, c.Up("T2", mustAddress(t, "10.0.0.2"), t0))

	_, ok := c.Active("T1")
	assert.True(t, ok)
	_, ok = c.Active("T2")
	assert.True(t, ok)
	assert.Len(t, obs.events, 2)
}

func TestZeroTimeUsesClock(t *testing.T) {
	obs := &recordObserver{}
	clock := &fakeClock{now: t0}
	c := New(obs, clock)

	require.NoError(t, c.Up("T1", flowctx.TargetAddress("T1"), time.Time{}))
	clock.now = t0.Add(time.Minute)
	require.NoError(t, c.Down("T1", time.Time{}))

	require.Len(t, obs.events, 2)
	assert.Equal(t, t0, obs.events[0].t)
	assert.Equal(t, t0.Add(time.Minute), obs.events[1].t)
}

func TestMatch(t *testing.T) {
	c := New(&recordObserver{}, nil)
	a1 := mustAddress(t, "10.0.0.1")
	a2 := mustAddress(t, "10.0.0.2")

	require.NoError(t, c.Up("T2", a1, time.Time{}))
	require.NoError(t, c.Up("T1", a1, time.Time{}))
	require.NoError(t, c.Up("T3", a2, time.Time{}))

	assert.Equal(t, []string{"T1", "T2"}, c.Match(a1))

	// 方向不参与匹配
	a1.Direction = flowctx.DirDst
	assert.Equal(t, []string{"T1", "T2"}, c.Match(a1))

	// 再次 Up 会迁移地址
	require.NoError(t, c.Up("T2", a2, time.Time{}))
	assert.Equal(t, []string{"T1"}, c.Match(a1))
	assert.Equal(t, []string{"T2", "T3"}, c.Match(a2))

	require.NoError(t, c.Down("T3", time.Time{}))
	assert.Equal(t, []string{"T2"}, c.Match(a2))

	targets := c.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "T1", targets[0].ID)
	assert.Equal(t, "T2", targets[1].ID)
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input string
		class flowctx.Class
		proto string
		str   string
		fail  bool
	}{
		{input: "10.0.0.1", class: flowctx.ClassNetwork, proto: "ipv4", str: "10.0.0.1"},
		{input: "fe80::1", class: flowctx.ClassNetwork, proto: "ipv6", str: "fe80::1"},
		{input: "00:11:22:33:44:55", class: flowctx.ClassHardware, proto: "mac", str: "00:11:22:33:44:55"},
		{input: "nowhere", fail: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.fail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.class, addr.Class)
			assert.Equal(t, tt.proto, addr.Proto)
			assert.Equal(t, tt.str, addr.String())
		})
	}
}

// blockingObserver 在 TriggerUp 中阻塞直到 release 被关闭
type blockingObserver struct {
	observer.Base
	entered chan struct{}
	release chan struct{}

	mut   sync.Mutex
	kinds []observer.Kind
}

func (o *blockingObserver) TriggerUp(string, flowctx.Address, time.Time) {
	close(o.entered)
	<-o.release

	o.mut.Lock()
	defer o.mut.Unlock()
	o.kinds = append(o.kinds, observer.KindTriggerUp)
}

func (o *blockingObserver) TriggerDown(string, time.Time) {
	o.mut.Lock()
	defer o.mut.Unlock()
	o.kinds = append(o.kinds, observer.KindTriggerDown)
}

func (o *blockingObserver) delivered() []observer.Kind {
	o.mut.Lock()
	defer o.mut.Unlock()
	return append([]observer.Kind(nil), o.kinds...)
}

func TestConcurrentDeliveryOrdered(t *testing.T) {
	obs := &blockingObserver{entered: make(chan struct{}), release: make(chan struct{})}
	c := New(obs, &fakeClock{now: t0})
	addr := mustAddress(t, "10.0.0.1")

	errs := make(chan error, 2)
	go func() { errs <- c.Up("T1", addr, t0) }()
	<-obs.entered

	go func() { errs <- c.Down("T1", t0.Add(time.Second)) }()

	// Up 的投递尚未完成 Down 不能越过它
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, obs.delivered())

	close(obs.release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, []observer.Kind{observer.KindTriggerUp, observer.KindTriggerDown}, obs.delivered())

	_, ok := c.Active("T1")
	assert.False(t, ok)
}
