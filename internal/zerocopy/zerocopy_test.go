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
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
)

func TestView(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	v := NewView(buf)

	t.Run("Slice", func(t *testing.T) {
		sub, err := v.Slice(2, 6)
		require.NoError(t, err)
		assert.Equal(t, 4, sub.Len())
		assert.Equal(t, 2, sub.Start())
		assert.Equal(t, 6, sub.End())
		assert.Equal(t, []byte{0x02, 0x03, 0x04, 0x05}, sub.Bytes())

		_, err = sub.Slice(0, 5)
		assert.True(t, errors.Is(err, ErrOutOfBounds))
		_, err = sub.Slice(3, 2)
		assert.True(t, errors.Is(err, ErrOutOfBounds))
	})

	t.Run("Clip", func(t *testing.T) {
		clipped, ok := v.Clip(3)
		assert.True(t, ok)
		assert.Equal(t, 3, clipped.Len())

		same, ok := v.Clip(9)
		assert.False(t, ok)
		assert.Equal(t, v, same)
	})

	t.Run("Integers", func(t *testing.T) {
		u16, err := v.Uint16(1)
		require.NoError(t, err)
		assert.Equal(t, uint16(0x0102), u16)

		u32, err := v.Uint32(4)
		require.NoError(t, err)
		assert.Equal(t, uint32(0x04050607), u32)

		_, err = v.Uint32(5)
		assert.Equal(t, ErrOutOfBounds, err)
		_, err = v.Uint8(-1)
		assert.Equal(t, ErrOutOfBounds, err)
	})

	t.Run("BytesCapClipped", func(t *testing.T) {
		sub, _ := v.Slice(0, 2)
		b := append(sub.Bytes(), 0xff)
		assert.Equal(t, byte(0x02), buf[2])
		assert.Len(t, b, 3)
	})

	t.Run("Clone", func(t *testing.T) {
		sub, _ := v.Slice(0, 2)
		c := sub.Clone()
		c[0] = 0xff
		assert.Equal(t, byte(0x00), buf[0])
		assert.Nil(t, NewView(nil).Clone())
	})
}

func TestCursor(t *testing.T) {
	c := NewView([]byte{0x12, 0x34, 0x56, 0x78, 0x9a}).Cursor()

	u16, err := c.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	_, err = c.Uint32()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, 2, c.Offset())

	u8, err := c.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x56), u8)
	assert.Equal(t, []byte{0x78, 0x9a}, c.Remaining().Bytes())

	require.NoError(t, c.Skip(2))
	_, err = c.Read(1)
	assert.Equal(t, io.EOF, err)
}

func BenchmarkCursorRead(b *testing.B) {
	payload := bytes.Repeat([]byte("a"), socket.MaxIPPacketSize)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := NewView(payload).Cursor()
		for {
			data, err := c.Read(common.ReadWriteBlockSize)
			if err != nil {
				break
			}
			_ = data // 避免编译器优化
		}
	}
}
