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

package pntp

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
	"github.com/packetd/flowmon/protocol/protocoltest"
)

func timestampPacket(extra int) []byte {
	b := make([]byte, timestampLen+extra)
	b[0] = 0<<6 | 4<<3 | 4 // LI=0 VN=4 Mode=server
	b[1] = 2
	b[2] = 6
	b[3] = 0xEC // -20
	binary.BigEndian.PutUint32(b[4:], 0x00018000)   // 1.5
	binary.BigEndian.PutUint32(b[8:], 0x00004000)   // 0.25
	binary.BigEndian.PutUint32(b[12:], 0xC0A80001) // 192.168.0.1
	binary.BigEndian.PutUint32(b[40:], 3900000000)
	binary.BigEndian.PutUint32(b[44:], 0x80000000)
	return b
}

func decode(t *testing.T, input []byte) (*protocoltest.Env, int, error) {
	t.Helper()
	env := protocoltest.NewEnv()
	n, err := NewDecoder(env, nil).Decode(env.Context(socket.ProtoNTP), zerocopy.NewView(input), time.Now())
	return env, n, err
}

func TestDecodeTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		extra     int
		extension bool
	}{
		{name: "Plain"},
		{name: "With MAC", extra: 20},
		{name: "With extension", extra: 28, extension: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := timestampPacket(tt.extra)
			env, n, err := decode(t, input)
			require.NoError(t, err)
			assert.Equal(t, len(input), n)

			records := env.Records()
			require.Len(t, records, 1)
			assert.Equal(t, observer.KindNTPTimestamp, records[0].Kind)
			assert.Equal(t, &observer.NTPTimestamp{
				Header:            observer.NTPHeader{Version: 4, Mode: 4},
				Stratum:           2,
				Poll:              6,
				Precision:         -20,
				RootDelay:         1.5,
				RootDispersion:    0.25,
				ReferenceID:       0xC0A80001,
				TransmitTimestamp: 3900000000.5,
				HasExtension:      tt.extension,
			}, records[0].Fields)
		})
	}
}

func TestDecodeControl(t *testing.T) {
	input := []byte{
		3<<6 | 2<<3 | 6, // LI=3 VN=2 Mode=6
		0x80 | 0x20 | 2, // R M opcode=2
		0x00, 0x07,
		0x06, 0x15,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x05,
		'a', 'b', 'c', 'd', 'e', 0, 0, 0,
	}

	env, n, err := decode(t, input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.Equal(t, &observer.NTPControl{
		Header:   observer.NTPHeader{LeapIndicator: 3, Version: 2, Mode: 6},
		Response: true,
		More:     true,
		Opcode:   2,
		Sequence: 7,
		Status:   0x0615,
		Count:    5,
	}, env.Records()[0].Fields)

	env, _, err = decode(t, append(input, 0, 0, 0, 1, 0xAA, 0xBB, 0xCC, 0xDD))
	require.NoError(t, err)
	assert.True(t, env.Records()[0].Fields.(*observer.NTPControl).HasAuth)
}

func TestDecodePrivate(t *testing.T) {
	input := []byte{
		0x80 | 2<<3 | 7, // R VN=2 Mode=7
		0x80 | 0x05,     // A sequence=5
		3,
		42,
		0, 0, 0, 0,
	}

	env, _, err := decode(t, input)
	require.NoError(t, err)
	assert.Equal(t, &observer.NTPPrivate{
		Header:         observer.NTPHeader{Version: 2, Mode: 7},
		Response:       true,
		Authenticated:  true,
		Sequence:       5,
		Implementation: 3,
		RequestCode:    42,
	}, env.Records()[0].Fields)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "Empty", input: []byte{}},
		{name: "Version 0", input: append([]byte{0<<3 | 3}, make([]byte, 47)...)},
		{name: "Reserved mode", input: append([]byte{4 << 3}, make([]byte, 47)...)},
		{name: "Short timestamp", input: timestampPacket(0)[:40]},
		{name: "Short control", input: []byte{2<<3 | 6, 0, 0}},
		{name: "Control count overflow", input: []byte{2<<3 | 6, 2, 0, 1, 0, 0, 0, 0, 0, 0, 0, 9, 'a'}},
		{name: "Short private", input: []byte{2<<3 | 7, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _, err := decode(t, tt.input)
			assert.ErrorIs(t, err, protocol.ErrUnrecognised)
			assert.Empty(t, env.Records())
		})
	}
}
