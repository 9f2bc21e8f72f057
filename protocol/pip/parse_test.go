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

package pip

import (
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/protocol"
	"github.com/packetd/flowmon/protocol/protocoltest"
)

func serialize(t *testing.T, lyrs ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, lyrs...))
	return buf.Bytes()
}

func ipv4Layer(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP("10.0.0.1").To4(),
		DstIP:    net.ParseIP("10.0.0.2").To4(),
	}
}

func TestParse(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	t.Run("TCP", func(t *testing.T) {
		b := serialize(t,
			ipv4Layer(layers.IPProtocolTCP),
			&layers.TCP{SrcPort: 40000, DstPort: 80, Seq: 7, SYN: true, DataOffset: 5},
			gopacket.Payload("GET"),
		)
		pkt, err := Parse(ts, b, false)
		require.NoError(t, err)

		seg, ok := pkt.(*socket.TCPSegment)
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1:40000 > 10.0.0.2:80", seg.Tuple.String())
		assert.Equal(t, uint32(7), seg.Seq)
		assert.True(t, seg.SYN)
		assert.Equal(t, []byte("GET"), seg.Payload)
		assert.Equal(t, ts, seg.Time)
	})

	t.Run("UDP", func(t *testing.T) {
		b := serialize(t,
			ipv4Layer(layers.IPProtocolUDP),
			&layers.UDP{SrcPort: 5353, DstPort: 53},
			gopacket.Payload("dns"),
		)
		pkt, err := Parse(ts, b, false)
		require.NoError(t, err)

		dg, ok := pkt.(*socket.UDPDatagram)
		require.True(t, ok)
		assert.Equal(t, socket.Port(53), dg.Tuple.DstPort)
		assert.Equal(t, []byte("dns"), dg.Payload)
	})

	t.Run("GRE with trailing padding", func(t *testing.T) {
		b := serialize(t,
			ipv4Layer(layers.IPProtocolGRE),
			gopacket.Payload([]byte{0x00, 0x00, 0x08, 0x00}),
		)
		b = append(b, 0xEE, 0xEE)
		pkt, err := Parse(ts, b, false)
		require.NoError(t, err)

		ipd, ok := pkt.(*socket.IPDatagram)
		require.True(t, ok)
		assert.Equal(t, ProtoGRE, ipd.Protocol)
		assert.Equal(t, []byte{0x00, 0x00, 0x08, 0x00}, ipd.Payload)
	})

	t.Run("IPv6", func(t *testing.T) {
		ipv6 := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolESP,
			SrcIP:      net.ParseIP("fe80::1"),
			DstIP:      net.ParseIP("fe80::2"),
		}
		b := serialize(t, ipv6, gopacket.Payload([]byte{0, 0, 0, 1, 0, 0, 0, 1}))

		pkt, err := Parse(ts, b, false)
		require.NoError(t, err)
		ipd := pkt.(*socket.IPDatagram)
		assert.Equal(t, ProtoESP, ipd.Protocol)
		assert.Equal(t, "fe80::1", ipd.Tuple.SrcIP.String())

		_, err = Parse(ts, b, true)
		assert.ErrorIs(t, err, ErrIPv6Disabled)
	})

	t.Run("Not IP", func(t *testing.T) {
		_, err := Parse(ts, []byte{0x10, 0x00}, false)
		assert.ErrorIs(t, err, ErrNotIP)

		_, err = Parse(ts, nil, false)
		assert.ErrorIs(t, err, ErrNotIP)
	})
}

func TestProtoOf(t *testing.T) {
	tests := []struct {
		n     uint8
		proto socket.Proto
		ok    bool
	}{
		{n: 1, proto: socket.ProtoICMP, ok: true},
		{n: 58, proto: socket.ProtoICMP, ok: true},
		{n: 6, proto: socket.ProtoTCP, ok: true},
		{n: 17, proto: socket.ProtoUDP, ok: true},
		{n: 47, proto: socket.ProtoGRE, ok: true},
		{n: 50, proto: socket.ProtoESP, ok: true},
		{n: 89, ok: false},
	}

	for _, tt := range tests {
		proto, ok := ProtoOf(tt.n)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.proto, proto)
	}
}

func TestDecoder(t *testing.T) {
	env := protocoltest.NewEnv()
	ctx := env.Context(socket.ProtoIPv4)
	d := NewDecoder(env, nil)

	b := serialize(t,
		ipv4Layer(layers.IPProtocolUDP),
		&layers.UDP{SrcPort: 1000, DstPort: 123},
		gopacket.Payload("ntp"),
	)
	n, err := d.Decode(ctx, zerocopy.NewView(b), time.Now())
	require.NoError(t, err)
	assert.Equal(t, len(b), n)

	dispatched := env.Dispatched()
	require.Len(t, dispatched, 1)
	assert.Equal(t, ctx.ID(), dispatched[0].Parent)
	assert.IsType(t, &socket.UDPDatagram{}, dispatched[0].Packet)

	_, err = d.Decode(ctx, zerocopy.NewView([]byte("garbage")), time.Now())
	assert.ErrorIs(t, err, protocol.ErrUnrecognised)
}
