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

package eventmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/internal/mapstructure"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/processor"
)

const Name = "eventmetrics"

func init() {
	processor.Register(Name, New)
}

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "events_total",
			Help:      "Observed events total",
		},
		[]string{"kind", "proto"},
	)

	eventPayloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: common.App,
			Name:      "event_payload_bytes",
			Help:      "Observed event payload size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"kind"},
	)

	eventTargetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "event_targets_total",
			Help:      "Observed events matched to active targets total",
		},
		[]string{"target"},
	)
)

type Config struct {
	// Payload 是否统计 Payload 大小
	Payload bool `config:"payload"`

	// Targets 是否按监控目标统计 目标数量较多时会产生大量时序
	Targets bool `config:"targets"`
}

type eventMetrics struct {
	cfg Config
}

func New(conf map[string]any, _ processor.Env) (processor.Processor, error) {
	var cfg Config
	if err := mapstructure.Decode(conf, &cfg); err != nil {
		return nil, err
	}
	return &eventMetrics{cfg: cfg}, nil
}

func (m *eventMetrics) Name() string {
	return Name
}

// Process 仅统计 不修改 Record
func (m *eventMetrics) Process(record *observer.Record) (*observer.Record, error) {
	proto := "none"
	if record.Context != nil {
		proto = record.Context.Proto
	}

	kind := record.Kind.String()
	eventsTotal.WithLabelValues(kind, proto).Inc()
	if m.cfg.Payload && len(record.Payload) > 0 {
		eventPayloadBytes.WithLabelValues(kind).Observe(float64(len(record.Payload)))
	}
	if m.cfg.Targets {
		for _, target := range record.Targets {
			eventTargetsTotal.WithLabelValues(target).Inc()
		}
	}
	return record, nil
}

func (m *eventMetrics) Clean() {}
