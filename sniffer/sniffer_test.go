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

package sniffer

import (
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/common/socket"
)

func ipv4UDP(t *testing.T) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 0, 1),
		DstIP:    net.IPv4(192, 168, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload("query")))
	return buf.Bytes()
}

func serialize(t *testing.T, lyrs ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, lyrs...))
	return buf.Bytes()
}

func TestDecodeFrame(t *testing.T) {
	ip := ipv4UDP(t)
	mac := net.HardwareAddr{0, 1, 2, 3, 4, 5}

	tests := []struct {
		name  string
		lt    layers.LinkType
		frame []byte
	}{
		{
			name:  "ethernet",
			lt:    layers.LinkTypeEthernet,
			frame: serialize(t, &layers.Ethernet{SrcMAC: mac, DstMAC: mac, EthernetType: layers.EthernetTypeIPv4}, gopacket.Payload(ip)),
		},
		{
			name: "vlan",
			lt:   layers.LinkTypeEthernet,
			frame: serialize(t,
				&layers.Ethernet{SrcMAC: mac, DstMAC: mac, EthernetType: layers.EthernetTypeDot1Q},
				&layers.Dot1Q{VLANIdentifier: 100, Type: layers.EthernetTypeIPv4},
				gopacket.Payload(ip),
			),
		},
		{
			name:  "loopback",
			lt:    layers.LinkTypeNull,
			frame: serialize(t, &layers.Loopback{Family: layers.ProtocolFamilyIPv4}, gopacket.Payload(ip)),
		},
		{
			name:  "raw",
			lt:    layers.LinkTypeRaw,
			frame: ip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := ParsePacket(tt.lt, time.Unix(1, 0), tt.frame, false)
			require.NoError(t, err)

			udp, ok := pkt.(*socket.UDPDatagram)
			require.True(t, ok)
			assert.Equal(t, "query", string(udp.Payload))
			assert.Equal(t, socket.Port(53), udp.Tuple.DstPort)
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	mac := net.HardwareAddr{0, 1, 2, 3, 4, 5}
	arp := serialize(t, &layers.Ethernet{SrcMAC: mac, DstMAC: mac, EthernetType: layers.EthernetTypeARP}, gopacket.Payload("arp"))

	_, err := DecodeFrame(layers.LinkTypeEthernet, arp)
	assert.Error(t, err)

	_, err = DecodeFrame(layers.LinkTypeFDDI, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrUnsupportedLinkType)
}

func TestGetUnknownEngine(t *testing.T) {
	_, err := NewWithConfig(&Config{Engine: "afpacket"})
	assert.Error(t, err)
}
