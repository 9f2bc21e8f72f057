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

package events

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/packetd/flowmon/exporter"
	"github.com/packetd/flowmon/internal/json"
	"github.com/packetd/flowmon/observer"
)

func testRecord(id string) *observer.Record {
	return &observer.Record{
		ID:      id,
		Kind:    observer.KindESP,
		Time:    time.Unix(1700000000, 0).UTC(),
		Context: &observer.ContextInfo{ID: 3, ParentID: 2, Proto: "esp", Path: "gre/ipv4/esp"},
		Fields:  &observer.ESPFields{SPI: 0x1234, Sequence: 7, Length: 4},
		Payload: []byte("data"),
		Targets: []string{"liid-1"},
	}
}

func TestSinkerJSON(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "events.log")
	sinker, err := New(exporter.Config{Events: exporter.EventsConfig{Filename: filename}})
	require.NoError(t, err)
	assert.Equal(t, exporter.SinkerEvents, sinker.Name())

	require.NoError(t, sinker.Sink(testRecord("r1")))
	require.NoError(t, sinker.Sink(testRecord("r2")))
	sinker.Close()

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "r1", lines[0]["id"])
	assert.Equal(t, "esp", lines[0]["kind"])
	assert.Equal(t, "ZGF0YQ==", lines[0]["payload"])
	assert.Equal(t, []any{"liid-1"}, lines[0]["targets"])
	assert.Equal(t, "gre/ipv4/esp", lines[0]["context"].(map[string]any)["path"])
	assert.Equal(t, float64(7), lines[0]["fields"].(map[string]any)["sequence"])
	assert.Equal(t, "r2", lines[1]["id"])
}

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestSinkerMsgpack(t *testing.T) {
	cfg := &exporter.EventsConfig{Format: exporter.FormatMsgpack}
	require.NoError(t, cfg.Validate())

	buf := &bufferCloser{}
	sinker := newSinker(buf, cfg)
	require.NoError(t, sinker.Sink(testRecord("r1")))
	sinker.Close()
	assert.True(t, buf.closed)

	var m map[string]any
	require.NoError(t, msgpack.NewDecoder(&buf.Buffer).Decode(&m))
	assert.Equal(t, "r1", m["id"])
	assert.Equal(t, []byte("data"), m["payload"])
}

func TestEventsConfigValidate(t *testing.T) {
	cfg := &exporter.EventsConfig{Format: "xml"}
	assert.Error(t, cfg.Validate())

	cfg = &exporter.EventsConfig{}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, exporter.FormatJSON, cfg.Format)
	assert.Equal(t, "events.log", cfg.Filename)
}
