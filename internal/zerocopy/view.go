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

	"github.com/pkg/errors"
)

// ErrOutOfBounds 访问超出 View 边界
var ErrOutOfBounds = errors.New("zerocopy: out of bounds")

// View 抓包缓冲区上的只读窗口 [start, end)
//
// View 不持有数据 仅在产生它的那次 dispatch 调用内有效
// 若需要跨调用保存 请使用 Clone 拷贝一份
//
// 恒有 0 <= start <= end <= len(buf)
type View struct {
	buf        []byte
	start, end int
}

// NewView 创建覆盖整个 b 的 View
func NewView(b []byte) View {
	return View{buf: b, start: 0, end: len(b)}
}

// Len 返回窗口长度
func (v View) Len() int {
	return v.end - v.start
}

// Empty 窗口是否为空
func (v View) Empty() bool {
	return v.end == v.start
}

// Start 返回窗口在底层缓冲区中的起始偏移
func (v View) Start() int {
	return v.start
}

// End 返回窗口在底层缓冲区中的结束偏移 (不包含)
func (v View) End() int {
	return v.end
}

// Bytes 返回窗口内的字节
//
// 返回值的 cap 被截断到窗口右边界 append 不会覆盖窗口之外的数据
// 调用方不允许修改返回的任何字节
func (v View) Bytes() []byte {
	return v.buf[v.start:v.end:v.end]
}

// Clone 拷贝窗口内的字节
func (v View) Clone() []byte {
	if v.Empty() {
		return nil
	}
	return append([]byte(nil), v.Bytes()...)
}

// Slice 返回相对偏移 [from, to) 的子窗口
func (v View) Slice(from, to int) (View, error) {
	if from < 0 || to < from || to > v.Len() {
		return View{}, errors.Wrapf(ErrOutOfBounds, "slice [%d:%d] of %d", from, to, v.Len())
	}
	return v.mustSlice(from, to), nil
}

func (v View) mustSlice(from, to int) View {
	return View{buf: v.buf, start: v.start + from, end: v.start + to}
}

// Advance 丢弃前 n 字节
func (v View) Advance(n int) (View, error) {
	return v.Slice(n, v.Len())
}

// Clip 将窗口截断为前 n 字节
//
// 当 n 超过窗口长度时返回 false 不做任何截断 调用方应视为帧错误
func (v View) Clip(n int) (View, bool) {
	if n < 0 || n > v.Len() {
		return v, false
	}
	return v.mustSlice(0, n), true
}

// Uint8 读取相对偏移 off 处的 1 字节
func (v View) Uint8(off int) (uint8, error) {
	if off < 0 || off+1 > v.Len() {
		return 0, ErrOutOfBounds
	}
	return v.buf[v.start+off], nil
}

// Uint16 以大端序读取相对偏移 off 处的 2 字节
func (v View) Uint16(off int) (uint16, error) {
	if off < 0 || off+2 > v.Len() {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint16(v.buf[v.start+off:]), nil
}

// Uint32 以大端序读取相对偏移 off 处的 4 字节
func (v View) Uint32(off int) (uint32, error) {
	if off < 0 || off+4 > v.Len() {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint32(v.buf[v.start+off:]), nil
}

// Cursor 返回在此窗口上顺序读取的游标
func (v View) Cursor() *Cursor {
	return &Cursor{v: v}
}
