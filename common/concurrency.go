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

package common

import (
	"runtime"
	"time"
)

// Concurrency 默认的并发度
//
// 以 GOMAXPROCS 为准 容器环境下由 automaxprocs 按 CPU quota 调整
func Concurrency() int {
	return runtime.GOMAXPROCS(0) * 2
}

var started = time.Now().Unix()

// Started 返回进程启动时间戳
func Started() int64 {
	return started
}
