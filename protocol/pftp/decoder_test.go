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

package pftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
	"github.com/packetd/flowmon/protocol/protocoltest"
)

func TestDecodeCommands(t *testing.T) {
	env := protocoltest.NewEnv()
	input := []byte("USER anonymous\r\nPASS guest\r\nRETR file.txt\r\nQU")

	n, pending, err := protocoltest.Feed(NewDecoder(env, nil), env.Context(socket.ProtoFTP), input)
	require.NoError(t, err)
	assert.Equal(t, len(input)-2, n)
	assert.Equal(t, []byte("QU"), pending)

	records := env.Records()
	require.Len(t, records, 3)
	assert.Equal(t, observer.KindFTPCommand, records[0].Kind)
	assert.Equal(t, &observer.CommandFields{Command: "USER anonymous"}, records[0].Fields)
	assert.Equal(t, &observer.CommandFields{Command: "RETR file.txt"}, records[2].Fields)
}

func TestDecodeReplies(t *testing.T) {
	env := protocoltest.NewEnv()
	input := []byte("220 Service ready\r\n" +
		"123-First line\r\n" +
		"Second line\r\n" +
		"  234 A line beginning with numbers\r\n" +
		"123 The last line\r\n")

	n, _, err := protocoltest.Feed(NewDecoder(env, nil), env.Context(socket.ProtoFTP), input[:25], input[25:])
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	records := env.Records()
	require.Len(t, records, 2)
	assert.Equal(t, &observer.ResponseFields{Status: 220, Text: []string{"Service ready"}}, records[0].Fields)
	assert.Equal(t, &observer.ResponseFields{
		Status: 123,
		Text: []string{
			"First line",
			"Second line",
			"  234 A line beginning with numbers",
			"The last line",
		},
	}, records[1].Fields)
}

func TestDecodeUnrecognised(t *testing.T) {
	env := protocoltest.NewEnv()
	_, _, err := protocoltest.Feed(NewDecoder(env, nil), env.Context(socket.ProtoFTP), []byte("\x00\x01\r\n"))
	assert.ErrorIs(t, err, protocol.ErrUnrecognised)
	assert.Empty(t, env.Records())
}
