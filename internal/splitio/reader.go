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

package splitio

import (
	"bytes"
)

// Reader 按行读取字节流 仅返回以 LF 结尾的完整行
//
// 未以 LF 结尾的尾部字节不会被读取 Offset 返回已读取的完整行字节数
// 面向字节流的 decoder 可以直接以 Offset 作为本次消费的字节数
type Reader struct {
	r   int
	b   []byte
	max int
}

// NewReader 创建并返回 *Reader 实例
//
// max 为单行的最大长度 超过此长度仍未找到 LF 时 TooLong 返回 true
func NewReader(b []byte, max int) *Reader {
	return &Reader{
		b:   b,
		max: max,
	}
}

// ReadLine 读取下一个完整行 返回的行保留 `\r\n` 或者 `\n`
func (lr *Reader) ReadLine() ([]byte, bool) {
	idx := bytes.IndexByte(lr.b[lr.r:], CharLF[0])
	if idx < 0 {
		return nil, false
	}

	line := lr.b[lr.r : lr.r+idx+1]
	lr.r += idx + 1
	return line, true
}

// Skip 跳过 n 字节 n 超出剩余字节数时跳过全部
func (lr *Reader) Skip(n int) {
	lr.r += n
	if lr.r > len(lr.b) {
		lr.r = len(lr.b)
	}
}

// Offset 返回已经读取的字节数
func (lr *Reader) Offset() int {
	return lr.r
}

// Remaining 返回尚未读取的字节
func (lr *Reader) Remaining() []byte {
	return lr.b[lr.r:]
}

// TooLong 剩余字节中是否存在超出长度限制的不完整行
func (lr *Reader) TooLong() bool {
	if lr.max <= 0 {
		return false
	}
	rest := lr.b[lr.r:]
	return len(rest) > lr.max && bytes.IndexByte(rest, CharLF[0]) < 0
}

// TrimCRLF 移除行尾的 `\r\n` 或者 `\n`
func TrimCRLF(line []byte) []byte {
	line = bytes.TrimSuffix(line, CharLF)
	return bytes.TrimSuffix(line, CharCR)
}
