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

var (
	CharCRLF = []byte("\r\n")
	CharCR   = []byte("\r")
	CharLF   = []byte("\n")
)

// Scanner 逐行切割一段完整的数据 最后一行可以不以 LF 结尾
//
// 与 Reader 不同 Scanner 用于数据报这类不会再有后续数据的场景
type Scanner struct {
	l, r int
	buf  []byte
}

// NewScanner 创建并返回 *Scanner 实例
//
// Bytes 返回的行保留换行符 且直接引用 b 不做拷贝
func NewScanner(b []byte) *Scanner {
	return &Scanner{
		buf: b,
	}
}

// Scan 扫描下一个 LF 字符并标记索引
func (s *Scanner) Scan() bool {
	s.l = s.r
	if len(s.buf) == s.l {
		return false
	}

	idx := bytes.IndexByte(s.buf[s.l:], CharLF[0])
	if idx == -1 {
		s.r = len(s.buf)
	} else {
		s.r = s.l + idx + 1
	}
	return true
}

// Bytes 读取当前行 如有修改需求 请拷贝一份
func (s *Scanner) Bytes() []byte {
	return s.buf[s.l:s.r]
}

// Text 返回去除换行符后的当前行
func (s *Scanner) Text() string {
	return string(TrimCRLF(s.Bytes()))
}

// Terminated 当前行是否以 LF 结尾
func (s *Scanner) Terminated() bool {
	return s.r > s.l && s.buf[s.r-1] == CharLF[0]
}

// Offset 返回当前行之后的首个字节位置
func (s *Scanner) Offset() int {
	return s.r
}
