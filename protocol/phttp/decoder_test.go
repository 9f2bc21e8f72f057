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

package phttp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/internal/splitio"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
	"github.com/packetd/flowmon/protocol/protocoltest"
)

func normalizeProtocol(b []byte) []byte {
	b = bytes.TrimSpace(b)
	b = bytes.ReplaceAll(b, splitio.CharLF, splitio.CharCRLF)
	b = append(b, splitio.CharCRLF...)
	b = append(b, splitio.CharCRLF...)
	return b
}

func chunks(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > size {
		out = append(out, b[:size])
		b = b[size:]
	}
	return append(out, b)
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		fields *observer.HTTPRequestFields
		body   []byte
	}{
		{
			name: "GET request",
			input: normalizeProtocol([]byte(`
GET /index.html HTTP/1.1
Host: www.example.com
User-Agent: Gecko/20100101 Firefox/91.0
Accept: text/html`)),
			fields: &observer.HTTPRequestFields{
				Method: "GET",
				URL:    "http://www.example.com/index.html",
				Header: observer.Header{
					"host":       {Name: "Host", Value: "www.example.com"},
					"user-agent": {Name: "User-Agent", Value: "Gecko/20100101 Firefox/91.0"},
					"accept":     {Name: "Accept", Value: "text/html"},
				},
			},
		},
		{
			name: "GET with absolute-uri",
			input: normalizeProtocol([]byte(`
GET http://absolute.example.com/path HTTP/1.1
Host: proxy.example.com`)),
			fields: &observer.HTTPRequestFields{
				Method: "GET",
				URL:    "http://absolute.example.com/path",
				Header: observer.Header{
					"host": {Name: "Host", Value: "proxy.example.com"},
				},
			},
		},
		{
			name: "GET without host",
			input: normalizeProtocol([]byte(`
GET /no-host HTTP/1.0
x-empty:`)),
			fields: &observer.HTTPRequestFields{
				Method: "GET",
				URL:    "/no-host",
				Header: observer.Header{
					"x-empty": {Name: "x-empty", Value: ""},
				},
			},
		},
		{
			name: "POST with body",
			input: append(normalizeProtocol([]byte(`
POST /submit HTTP/1.1
Host: api.example.com
Content-Length: 13`)), []byte(`{"key":"val"}`)...),
			fields: &observer.HTTPRequestFields{
				Method: "POST",
				URL:    "http://api.example.com/submit",
				Header: observer.Header{
					"host":           {Name: "Host", Value: "api.example.com"},
					"content-length": {Name: "Content-Length", Value: "13"},
				},
			},
			body: []byte(`{"key":"val"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := protocoltest.NewEnv()
			client, _ := env.Conn(socket.ProtoHTTP, 80)

			n, pending, err := protocoltest.Feed(NewDecoder(env, nil), client, chunks(tt.input, 7)...)
			require.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Empty(t, pending)

			records := env.Records()
			require.Len(t, records, 1)
			assert.Equal(t, observer.KindHTTPRequest, records[0].Kind)
			assert.Equal(t, tt.fields, records[0].Fields)
			assert.Equal(t, tt.body, records[0].Payload)
		})
	}
}

func TestDecodeRoundTrips(t *testing.T) {
	env := protocoltest.NewEnv()
	client, server := env.Conn(socket.ProtoHTTP, 80)
	req := NewDecoder(env, nil)
	rsp := NewDecoder(env, nil)

	requests := append(normalizeProtocol([]byte(`
GET /a HTTP/1.1
Host: example.com`)), normalizeProtocol([]byte(`
HEAD /b HTTP/1.1
Host: example.com`))...)
	_, _, err := protocoltest.Feed(req, client, requests)
	require.NoError(t, err)

	responses := append(normalizeProtocol([]byte(`
HTTP/1.1 200 OK
Content-Length: 2`)), []byte("ok")...)
	responses = append(responses, normalizeProtocol([]byte(`
HTTP/1.1 200 OK
Content-Length: 1024`))...)
	n, _, err := protocoltest.Feed(rsp, server, chunks(responses, 5)...)
	require.NoError(t, err)
	assert.Equal(t, len(responses), n)

	records := env.Records()
	require.Len(t, records, 4)
	assert.Equal(t, observer.KindHTTPResponse, records[2].Kind)
	assert.Equal(t, "http://example.com/a", records[2].Fields.(*observer.HTTPResponseFields).URL)
	assert.Equal(t, []byte("ok"), records[2].Payload)
	assert.Equal(t, "http://example.com/b", records[3].Fields.(*observer.HTTPResponseFields).URL)
	assert.Nil(t, records[3].Payload)
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		fields []*observer.HTTPResponseFields
		body   []byte
	}{
		{
			name: "Chunked",
			input: append(normalizeProtocol([]byte(`
HTTP/1.1 200 OK
Transfer-Encoding: gzip, chunked`)), []byte("5;name=val\r\nhello\r\n6\r\n world\r\n0\r\nX-Trailer: yes\r\n\r\n")...),
			fields: []*observer.HTTPResponseFields{
				{
					Code:   200,
					Status: "OK",
					Header: observer.Header{
						"transfer-encoding": {Name: "Transfer-Encoding", Value: "gzip, chunked"},
					},
				},
			},
			body: []byte("hello world"),
		},
		{
			name: "Continue",
			input: append(normalizeProtocol([]byte(`
HTTP/1.1 100 Continue`)), normalizeProtocol([]byte(`
HTTP/1.1 204 No Content`))...),
			fields: []*observer.HTTPResponseFields{
				{Code: 100, Status: "Continue", Header: observer.Header{}},
				{Code: 204, Status: "No Content", Header: observer.Header{}},
			},
		},
		{
			name: "Until close",
			input: append(normalizeProtocol([]byte(`
HTTP/1.0 200 OK
Content-Type: text/plain`)), []byte("streamed until the connection closes")...),
			fields: []*observer.HTTPResponseFields{
				{
					Code:   200,
					Status: "OK",
					Header: observer.Header{
						"content-type": {Name: "Content-Type", Value: "text/plain"},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := protocoltest.NewEnv()
			_, server := env.Conn(socket.ProtoHTTP, 80)

			n, pending, err := protocoltest.Feed(NewDecoder(env, nil), server, chunks(tt.input, 3)...)
			require.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Empty(t, pending)

			records := env.Records()
			require.Len(t, records, len(tt.fields))
			for i, fields := range tt.fields {
				assert.Equal(t, observer.KindHTTPResponse, records[i].Kind)
				assert.Equal(t, fields, records[i].Fields)
			}
			assert.Equal(t, tt.body, records[len(records)-1].Payload)
		})
	}
}

func TestDecodeMaxBodySize(t *testing.T) {
	env := protocoltest.NewEnv()
	client, _ := env.Conn(socket.ProtoHTTP, 80)

	input := append(normalizeProtocol([]byte(`
POST /upload HTTP/1.1
Content-Length: 10`)), []byte("0123456789")...)

	opts := common.NewOptions()
	opts.Merge("maxBodySize", 4)
	n, _, err := protocoltest.Feed(NewDecoder(env, opts), client, input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.Equal(t, []byte("0123"), env.Records()[0].Payload)
}

func TestDecodeFailed(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		consumed int
	}{
		{
			name: "Invalid Content-Length",
			input: normalizeProtocol([]byte(`
POST /path HTTP/1.1
Host: example.com
Content-Length: invalid`)),
		},
		{
			name: "Negative Content-Length",
			input: normalizeProtocol([]byte(`
POST /path HTTP/1.1
Host: example.com
Content-Length: -10`)),
		},
		{
			name: "Incomplete status line",
			input: normalizeProtocol([]byte(`
HTTP/1.1
Content-Type: text/plain`)),
		},
		{
			name: "Non-numeric status code",
			input: normalizeProtocol([]byte(`
HTTP/1.1 ABC OK
Content-Type: text/plain`)),
		},
		{
			name:  "Binary",
			input: []byte("\x16\x03\x01\x00\xa5\x01\x00\x00\xa1\x03\x03\r\n\r\n"),
		},
		{
			name: "Chunk overflow",
			input: append(normalizeProtocol([]byte(`
HTTP/1.1 200 OK
Transfer-Encoding: chunked`)), []byte("2\r\nabc\r\n")...),
			consumed: 52,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := protocoltest.NewEnv()
			_, server := env.Conn(socket.ProtoHTTP, 80)

			n, _, err := protocoltest.Feed(NewDecoder(env, nil), server, tt.input)
			assert.ErrorIs(t, err, protocol.ErrUnrecognised)
			assert.Equal(t, tt.consumed, n)
		})
	}
}

func TestParseChunkSize(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
		err   bool
	}{
		{input: "25", want: 0x25},
		{input: "1C", want: 0x1C},
		{input: "1c ; ext=1", want: 0x1C},
		{input: "0", want: 0},
		{input: "", err: true},
		{input: "xyz", err: true},
		{input: "12345678901234567", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := parseChunkSize([]byte(tt.input))
			if tt.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}
