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

package rescue

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/logger"
)

var panicTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "panic_total",
		Help:      "program causes panic total",
	},
	[]string{"component"},
)

// PanicHandlers 捕获 panic 后依次执行
var PanicHandlers = []func(component string, r any){
	incPanicCounter,
	logPanic,
}

func incPanicCounter(component string, _ any) {
	panicTotal.WithLabelValues(component).Inc()
}

func logPanic(component string, r any) {
	const size = 64 << 10
	stacktrace := make([]byte, size)
	stacktrace = stacktrace[:runtime.Stack(stacktrace, false)]
	if _, ok := r.(string); ok {
		logger.Errorf("%s observed a panic: %s\n%s", component, r, stacktrace)
	} else {
		logger.Errorf("%s observed a panic: %#v (%v)\n%s", component, r, r, stacktrace)
	}
}

// HandleCrash 需配合 defer 使用 component 用于区分 panic 来源
func HandleCrash(component string) {
	if r := recover(); r != nil {
		for _, fn := range PanicHandlers {
			fn(component, r)
		}
	}
}
