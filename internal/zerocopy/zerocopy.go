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

package zerocopy

import (
	"encoding/binary"
	"io"
)

// Reader ZeroCopy-API
//
// Reader Read 零拷贝方式读取 n 字节数据
type Reader interface {
	Read(n int) ([]byte, error)
}

// Cursor 在 View 上顺序读取
//
// 与 View 一样不持有数据 任何读取都不会越过 View 的右边界
// Read 为严格语义 剩余字节不足 n 时返回 io.ErrUnexpectedEOF 且不移动游标
type Cursor struct {
	v View
	r int
}

var _ Reader = (*Cursor)(nil)

// Read 实现 Reader 接口
func (c *Cursor) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrOutOfBounds
	}
	if c.r == c.v.Len() && n > 0 {
		return nil, io.EOF
	}
	if c.r+n > c.v.Len() {
		return nil, io.ErrUnexpectedEOF
	}

	b := c.v.Bytes()[c.r : c.r+n]
	c.r += n
	return b, nil
}

// Skip 跳过 n 字节
func (c *Cursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// Uint8 读取 1 字节
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 以大端序读取 2 字节
func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32 以大端序读取 4 字节
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Offset 返回已读取的字节数
func (c *Cursor) Offset() int {
	return c.r
}

// Remaining 返回尚未读取的部分
func (c *Cursor) Remaining() View {
	return c.v.mustSlice(c.r, c.v.Len())
}
