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

package prtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
	"github.com/packetd/flowmon/protocol/protocoltest"
)

func rtpPacket(first byte, payload string) []byte {
	b := []byte{first, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0xA0, 0xDE, 0xAD, 0xBE, 0xEF}
	return append(b, payload...)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		create  func(protocol.Env, common.Options) protocol.Decoder
		input   []byte
		kind    observer.Kind
		invalid bool
	}{
		{name: "RTP", create: NewDecoder, input: rtpPacket(0x80, "audio"), kind: observer.KindRTP},
		{name: "SRTP", create: NewSSLDecoder, input: rtpPacket(0x80, "cipher"), kind: observer.KindRTPSSL},
		{name: "With CSRC", create: NewDecoder, input: rtpPacket(0x81, "csrc"), kind: observer.KindRTP},
		{name: "CSRC overflow", create: NewDecoder, input: rtpPacket(0x82, "csr"), invalid: true},
		{name: "Version 1", create: NewDecoder, input: rtpPacket(0x40, "audio"), invalid: true},
		{name: "Short", create: NewSSLDecoder, input: []byte{0x80, 0x00}, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := protocoltest.NewEnv()
			n, err := tt.create(env, nil).Decode(env.Context(socket.ProtoRTP), zerocopy.NewView(tt.input), time.Now())
			if tt.invalid {
				assert.ErrorIs(t, err, protocol.ErrUnrecognised)
				assert.Empty(t, env.Records())
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Equal(t, []observer.Kind{tt.kind}, env.Kinds())
		})
	}
}
