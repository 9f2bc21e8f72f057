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

package pmail

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
		proto socket.Proto
		port  socket.Port
		kind  observer.Kind
	}{
		{proto: socket.ProtoIMAP, port: 143, kind: observer.KindIMAP},
		{proto: socket.ProtoIMAPSSL, port: 993, kind: observer.KindIMAPSSL},
		{proto: socket.ProtoPOP3, port: 110, kind: observer.KindPOP3},
		{proto: socket.ProtoPOP3SSL, port: 995, kind: observer.KindPOP3SSL},
	}

	for _, tt := range tests {
		t.Run(string(tt.proto), func(t *testing.T) {
			f, err := protocol.Get(tt.proto)
			require.NoError(t, err)

			env := protocoltest.NewEnv()
			client, _ := env.Conn(tt.proto, tt.port)
			d := f(env, nil)

			input := []byte("a001 LOGIN user pass\r\n")
			n, err := d.Decode(client, zerocopy.NewView(input), time.Now())
			require.NoError(t, err)
			assert.Equal(t, len(input), n)

			n, err = d.Decode(client, zerocopy.NewView(nil), time.Now())
			require.NoError(t, err)
			assert.Zero(t, n)

			records := env.Records()
			require.Len(t, records, 1)
			assert.Equal(t, tt.kind, records[0].Kind)
			assert.Equal(t, input, records[0].Payload)
		})
	}
}
