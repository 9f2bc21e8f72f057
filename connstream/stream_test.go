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

package connstream

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/internal/zerocopy"
)

var testTuple = socket.Tuple{
	SrcIP:   socket.ToIPV4(net.ParseIP("10.0.0.1")),
	DstIP:   socket.ToIPV4(net.ParseIP("10.0.0.2")),
	SrcPort: 40000,
	DstPort: 80,
}

func segment(seq uint32, payload string) *socket.TCPSegment {
	return &socket.TCPSegment{
		Tuple:   testTuple,
		Seq:     seq,
		Payload: []byte(payload),
	}
}

// lineDecoder 仅消费以 LF 结尾的完整行
type lineDecoder struct {
	lines []string
}

func (d *lineDecoder) decode(v zerocopy.View) int {
	var consumed int
	b := v.Bytes()
	for {
		idx := bytes.IndexByte(b[consumed:], '\n')
		if idx < 0 {
			return consumed
		}
		d.lines = append(d.lines, string(b[consumed:consumed+idx]))
		consumed += idx + 1
	}
}

func TestTCPStreamWrite(t *testing.T) {
	tests := []struct {
		name     string
		segments []*socket.TCPSegment
		lines    []string
		buffered int
	}{
		{
			name: "in order",
			segments: []*socket.TCPSegment{
				segment(100, "HELO a\n"),
				segment(107, "MAIL b\n"),
			},
			lines: []string{"HELO a", "MAIL b"},
		},
		{
			name: "line split across segments",
			segments: []*socket.TCPSegment{
				segment(100, "HE"),
				segment(102, "LO a\nMA"),
			},
			lines:    []string{"HELO a"},
			buffered: 2,
		},
		{
			name: "full retransmission",
			segments: []*socket.TCPSegment{
				segment(100, "HELO a\n"),
				segment(100, "HELO a\n"),
			},
			lines: []string{"HELO a"},
		},
		{
			name: "partial retransmission",
			segments: []*socket.TCPSegment{
				segment(100, "HELO a\n"),
				segment(104, " a\nQUIT\n"),
			},
			lines: []string{"HELO a", "QUIT"},
		},
		{
			name: "sequence wrap",
			segments: []*socket.TCPSegment{
				segment(0xFFFFFFFE, "AB"),
				segment(0, "C\n"),
			},
			lines: []string{"ABC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTCPStream(testTuple)
			d := &lineDecoder{}
			for _, seg := range tt.segments {
				assert.NoError(t, s.Write(seg, d.decode))
			}
			assert.Equal(t, tt.lines, d.lines)
			assert.Equal(t, tt.buffered, s.Buffered())
		})
	}
}

func TestTCPStreamClose(t *testing.T) {
	t.Run("FIN with payload", func(t *testing.T) {
		s := NewTCPStream(testTuple)
		d := &lineDecoder{}
		seg := segment(1, "QUIT\n")
		seg.FIN = true

		assert.NoError(t, s.Write(seg, d.decode))
		assert.Equal(t, []string{"QUIT"}, d.lines)
		assert.True(t, s.IsClosed())
		assert.False(t, s.Reset())
		assert.Equal(t, ErrClosed, s.Write(segment(6, "x"), d.decode))
	})

	t.Run("RST", func(t *testing.T) {
		s := NewTCPStream(testTuple)
		seg := segment(1, "")
		seg.RST = true

		assert.NoError(t, s.Write(seg, nil))
		assert.True(t, s.IsClosed())
		assert.True(t, s.Reset())
	})

	t.Run("Drain", func(t *testing.T) {
		s := NewTCPStream(testTuple)
		d := &lineDecoder{}
		assert.NoError(t, s.Write(segment(1, "partial"), d.decode))
		assert.Equal(t, []byte("partial"), s.Drain())
		assert.Zero(t, s.Buffered())
	})

	t.Run("Mismatched tuple", func(t *testing.T) {
		s := NewTCPStream(testTuple)
		seg := segment(1, "x")
		seg.Tuple = testTuple.Mirror()
		assert.Equal(t, ErrSocketNotMatch, s.Write(seg, nil))
	})
}

func TestTCPStreamSYN(t *testing.T) {
	s := NewTCPStream(testTuple)
	d := &lineDecoder{}

	syn := segment(999, "")
	syn.SYN = true
	assert.NoError(t, s.Write(syn, d.decode))
	assert.NoError(t, s.Write(segment(1000, "a\n"), d.decode))
	assert.NoError(t, s.Write(segment(1000, "a\n"), d.decode))

	assert.Equal(t, []string{"a"}, d.lines)
	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Packets)
	assert.Equal(t, uint64(2), stats.Bytes)
	assert.Equal(t, uint64(2), stats.Duplicated)
	assert.Zero(t, stats.Gaps)
}
