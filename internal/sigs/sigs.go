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

package sigs

import (
	"os"
	"os/signal"
	"syscall"
)

// Event 进程收到的控制信号
type Event int

const (
	EventTerminate Event = iota
	EventReload
)

func (e Event) String() string {
	if e == EventReload {
		return "reload"
	}
	return "terminate"
}

// Notify 将终止信号 (SIGINT/SIGTERM) 与重载信号 (SIGHUP) 合并为一个 channel
//
// 返回的 stop 函数用于取消监听
func Notify() (<-chan Event, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	events := make(chan Event, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				select {
				case events <- fromSignal(sig):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		signal.Stop(sigCh)
		close(done)
	}
	return events, stop
}

func fromSignal(sig os.Signal) Event {
	if sig == syscall.SIGHUP {
		return EventReload
	}
	return EventTerminate
}

// SelfReload 主动触发 Reload 信号
func SelfReload() error {
	return syscall.Kill(syscall.Getpid(), syscall.SIGHUP)
}
