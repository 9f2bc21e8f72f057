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

// Package bufbytes 提供有上限的字节缓冲
//
// 超出上限的数据会被丢弃 并记录截断标识 用于 http body / smtp data 等负载的保留
package bufbytes

type Bytes struct {
	size      int
	buf       []byte
	truncated bool
}

func New(size int) *Bytes {
	return &Bytes{
		size: size,
	}
}

// Write 追加 p 超过上限的部分被丢弃
func (b *Bytes) Write(p []byte) {
	n := (b.size - len(b.buf)) - len(p)
	if n >= 0 {
		b.buf = append(b.buf, p...)
		return
	}

	b.truncated = true
	l := b.size - len(b.buf)
	if l > 0 {
		b.buf = append(b.buf, p[:l]...)
	}
}

func (b *Bytes) Len() int {
	return len(b.buf)
}

// Bytes 返回内部缓冲 在下一次 Write/Reset 之前有效
func (b *Bytes) Bytes() []byte {
	return b.buf
}

// Truncated 是否有数据因为超出上限而被丢弃
func (b *Bytes) Truncated() bool {
	return b.truncated
}

func (b *Bytes) Clone() []byte {
	if b.buf == nil {
		return nil
	}
	return append([]byte{}, b.buf...)
}

func (b *Bytes) Reset() {
	b.buf = b.buf[:0]
	b.truncated = false
}
