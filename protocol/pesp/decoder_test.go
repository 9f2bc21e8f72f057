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

package pesp

import (
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

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		fields *observer.ESPFields
	}{
		{
			name:   "Header only",
			input:  []byte{0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x01},
			fields: &observer.ESPFields{SPI: 0x1000, Sequence: 1, Length: 0},
		},
		{
			name:   "Encrypted payload",
			input:  []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00, 0x00, 0x02, 0x01, 0x02, 0x03},
			fields: &observer.ESPFields{SPI: 0xDEADBEEF, Sequence: 2, Length: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := protocoltest.NewEnv()
			n, err := NewDecoder(env, nil).Decode(env.Context(socket.ProtoESP), zerocopy.NewView(tt.input), time.Now())
			require.NoError(t, err)
			assert.Equal(t, len(tt.input), n)

			records := env.Records()
			require.Len(t, records, 1)
			assert.Equal(t, observer.KindESP, records[0].Kind)
			assert.Equal(t, tt.fields, records[0].Fields)
			assert.Empty(t, env.Dispatched())
		})
	}
}

func TestDecodeShort(t *testing.T) {
	env := protocoltest.NewEnv()
	_, err := NewDecoder(env, nil).Decode(env.Context(socket.ProtoESP), zerocopy.NewView([]byte{0, 0, 0, 1, 0}), time.Now())
	assert.ErrorIs(t, err, protocol.ErrUnrecognised)
	assert.Empty(t, env.Records())
}
