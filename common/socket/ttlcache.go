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

package socket

import (
	"sync"
	"time"
)

// TTLCache 带过期时间的集合
//
// 用于记录刚被销毁的链接标识 在 TTL 内同一标识不会被重新创建
type TTLCache[K comparable] struct {
	mut sync.RWMutex
	set map[K]time.Time

	expired time.Duration
	done    chan struct{}
	once    sync.Once
}

func NewTTLCache[K comparable](expired time.Duration) *TTLCache[K] {
	tc := &TTLCache[K]{
		set:     make(map[K]time.Time),
		expired: expired,
		done:    make(chan struct{}),
	}
	go tc.gc()
	return tc
}

func (tc *TTLCache[K]) Close() {
	tc.once.Do(func() {
		close(tc.done)
	})
}

func (tc *TTLCache[K]) Set(k K) {
	tc.mut.Lock()
	defer tc.mut.Unlock()

	tc.set[k] = time.Now().Add(tc.expired)
}

func (tc *TTLCache[K]) Has(k K) bool {
	tc.mut.RLock()
	defer tc.mut.RUnlock()

	v, ok := tc.set[k]
	if !ok {
		return false
	}
	return time.Now().Before(v)
}

func (tc *TTLCache[K]) Count() int {
	tc.mut.RLock()
	defer tc.mut.RUnlock()

	return len(tc.set)
}

func (tc *TTLCache[K]) gc() {
	ticker := time.NewTicker(tc.expired / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tc.mut.Lock()
			now := time.Now()
			for k, v := range tc.set {
				if now.After(v) {
					delete(tc.set, k)
				}
			}
			tc.mut.Unlock()

		case <-tc.done:
			return
		}
	}
}
