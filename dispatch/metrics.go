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

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/flowmon/common"
)

var (
	dispatchedPackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "dispatched_packets_total",
			Help:      "Dispatched packets total",
		},
		[]string{"l4"},
	)

	frozenPackets = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "frozen_packets_total",
			Help:      "Packets dropped because their flow was recently torn down",
		},
	)

	unrecognisedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "unrecognised_bytes_total",
			Help:      "Unrecognised bytes total",
		},
		[]string{"proto"},
	)

	activeContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "active_contexts",
			Help:      "Active connection-oriented contexts",
		},
	)
)
