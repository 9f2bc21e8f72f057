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
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/confengine"
	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/observer"
)

const SinkerEvents = "events"

var exportedRecords = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "exporter_records_total",
		Help:      "Exporter handled records total",
	},
	[]string{"sinker", "status"},
)

// Exporter 将 pipeline 输出的 Record 写入 Sinker
//
// Export 可被并发调用 同一时刻只有一个 Record 在写入
type Exporter struct {
	conf         Config
	mut          sync.Mutex
	eventsSinker Sinker
}

func New(conf *confengine.Config) (*Exporter, error) {
	var cfg Config
	if err := conf.UnpackOptional("exporter", &cfg); err != nil {
		return nil, err
	}

	var eventsSinker Sinker
	if cfg.Events.Enabled {
		f := Get(SinkerEvents)
		if f == nil {
			return nil, errors.Errorf("sinker (%s) not registered", SinkerEvents)
		}
		var err error
		if eventsSinker, err = f(cfg); err != nil {
			return nil, err
		}
	}

	return &Exporter{
		conf:         cfg,
		eventsSinker: eventsSinker,
	}, nil
}

func (e *Exporter) Export(record *observer.Record) {
	e.mut.Lock()
	if e.eventsSinker == nil {
		e.mut.Unlock()
		return
	}
	err := e.eventsSinker.Sink(record)
	e.mut.Unlock()

	if err != nil {
		exportedRecords.WithLabelValues(SinkerEvents, "failed").Inc()
		logger.Errorf("sink events failed: %v", err)
		return
	}
	exportedRecords.WithLabelValues(SinkerEvents, "success").Inc()
}

func (e *Exporter) Close() {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.eventsSinker != nil {
		e.eventsSinker.Close()
		e.eventsSinker = nil
	}
}
