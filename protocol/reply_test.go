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

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		line  string
		reply Reply
		ok    bool
	}{
		{line: "250 OK", reply: Reply{Code: 250, Text: "OK"}, ok: true},
		{line: "250-SIZE 100", reply: Reply{Code: 250, More: true, Text: "SIZE 100"}, ok: true},
		{line: "354", reply: Reply{Code: 354}, ok: true},
		{line: "220 ", reply: Reply{Code: 220}, ok: true},
		{line: "25", ok: false},
		{line: "2500", ok: false},
		{line: "abc def", ok: false},
		{line: "999 no", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			reply, ok := ParseReply(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reply, reply)
		})
	}
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("EHLO client.example.com"))
	assert.True(t, IsCommand("QUIT"))
	assert.True(t, IsCommand("mail FROM:<a@b>"))
	assert.False(t, IsCommand("250 OK"))
	assert.False(t, IsCommand(""))
	assert.False(t, IsCommand("\x16\x03\x01"))
	assert.Equal(t, "MAIL", Verb("mail FROM:<a@b>"))
	assert.Equal(t, "QUIT", Verb("quit"))
}
