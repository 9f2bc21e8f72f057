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

package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/dispatch"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	_ "github.com/packetd/flowmon/protocol/phttp"
)

type memorySink struct {
	mut     sync.Mutex
	records []*observer.Record
}

func (s *memorySink) sink(r *observer.Record) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.records = append(s.records, r)
}

func (s *memorySink) all() []*observer.Record {
	s.mut.Lock()
	defer s.mut.Unlock()
	return append([]*observer.Record(nil), s.records...)
}

var dispatchConfig = dispatch.Config{
	Protocols: dispatch.Protocols{
		Rules: []dispatch.ProtoRule{
			{Protocol: string(socket.ProtoHTTP), Ports: []uint16{80}},
		},
	},
}

func newTestEngine(t *testing.T, cfg Config, obs observer.Observer) *Engine {
	e, err := New(cfg, dispatchConfig, obs)
	require.NoError(t, err)
	return e
}

func tuple(n int) socket.Tuple {
	return socket.Tuple{
		SrcIP:   socket.ToIPV4(net.IPv4(10, 0, 0, byte(n))),
		DstIP:   socket.ToIPV4(net.IPv4(10, 0, 1, 1)),
		SrcPort: socket.Port(30000 + n),
		DstPort: 9000,
	}
}

func TestPartitionOf(t *testing.T) {
	e := newTestEngine(t, Config{Partitions: 8}, observer.Base{})
	defer e.Stop()

	for i := 0; i < 32; i++ {
		st := tuple(i)
		a := e.partitionOf(&socket.TCPSegment{Tuple: st})
		b := e.partitionOf(&socket.TCPSegment{Tuple: st.Mirror()})
		assert.Equal(t, a, b, "tuple %s", st)
		assert.True(t, a >= 0 && a < 8)
	}
}

func TestEngineOrderingPerFlow(t *testing.T) {
	s := &memorySink{}
	e := newTestEngine(t, Config{Partitions: 4, QueueSize: 1024}, observer.NewRecorder(s.sink, observer.RecorderOptions{}))
	e.Start()

	const flows, segments = 16, 20
	for i := 0; i < segments; i++ {
		for f := 0; f < flows; f++ {
			err := e.Submit(&socket.TCPSegment{
				Tuple:   tuple(f),
				Time:    time.Now(),
				Seq:     uint32(1 + i*2),
				Payload: []byte(fmt.Sprintf("%02d", i)),
			})
			require.NoError(t, err)
		}
	}
	e.Stop()

	positions := make(map[uint64][]int64)
	payloads := make(map[uint64]string)
	var ups, downs int
	for _, r := range s.all() {
		switch r.Kind {
		case observer.KindConnectionUp:
			ups++
		case observer.KindConnectionDown:
			downs++
		case observer.KindUnrecognisedStream:
			id := r.Context.ID
			positions[id] = append(positions[id], r.Fields.(*observer.UnrecognisedStreamFields).Position)
			payloads[id] += string(r.Payload)
		}
	}

	assert.Equal(t, flows, ups)
	assert.Equal(t, flows, downs)
	require.Len(t, positions, flows)

	var expected string
	for i := 0; i < segments; i++ {
		expected += fmt.Sprintf("%02d", i)
	}
	for id, pos := range positions {
		require.Len(t, pos, segments)
		for i, p := range pos {
			assert.Equal(t, int64(i*2), p, "context %d", id)
		}
		assert.Equal(t, expected, payloads[id])
	}
}

func TestEngineCopiesPayload(t *testing.T) {
	s := &memorySink{}
	e := newTestEngine(t, Config{Partitions: 1}, observer.NewRecorder(s.sink, observer.RecorderOptions{}))

	b := []byte("hello")
	require.NoError(t, e.Submit(&socket.UDPDatagram{Tuple: tuple(1), Time: time.Now(), Payload: b}))
	copy(b, "xxxxx")
	e.Stop()

	records := s.all()
	require.Len(t, records, 1)
	assert.Equal(t, observer.KindUnrecognisedDatagram, records[0].Kind)
	assert.Equal(t, []byte("hello"), records[0].Payload)
}

func TestEngineQueueFull(t *testing.T) {
	e := newTestEngine(t, Config{Partitions: 1, QueueSize: 1}, observer.Base{})

	pkt := &socket.UDPDatagram{Tuple: tuple(1), Time: time.Now(), Payload: []byte("a")}
	assert.NoError(t, e.Submit(pkt))
	assert.ErrorIs(t, e.Submit(pkt), ErrQueueFull)
	assert.Equal(t, []int{1}, e.Pending())

	e.Start()
	e.Stop()
	assert.ErrorIs(t, e.Submit(pkt), ErrClosed)
}

func TestEngineSubmitWaitNoLoss(t *testing.T) {
	var (
		mut      sync.Mutex
		observed int
	)
	rec := observer.NewRecorder(func(r *observer.Record) {
		if r.Kind == observer.KindUnrecognisedDatagram {
			mut.Lock()
			observed++
			mut.Unlock()
		}
	}, observer.RecorderOptions{})

	e := newTestEngine(t, Config{Partitions: 2, QueueSize: 1}, rec)
	e.Start()

	const total = 5000
	for i := 0; i < total; i++ {
		pkt := &socket.UDPDatagram{Tuple: tuple(i % 8), Time: time.Now(), Payload: []byte("a")}
		require.NoError(t, e.SubmitWait(context.Background(), pkt))
	}
	e.Stop()

	mut.Lock()
	defer mut.Unlock()
	assert.Equal(t, total, observed)
}

func TestEngineSubmitWaitCanceled(t *testing.T) {
	e := newTestEngine(t, Config{Partitions: 1, QueueSize: 1}, observer.Base{})

	pkt := &socket.UDPDatagram{Tuple: tuple(1), Time: time.Now(), Payload: []byte("a")}
	require.NoError(t, e.SubmitWait(context.Background(), pkt))

	// 分区未启动 队列已满时等待直到 ctx 超时
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.SubmitWait(ctx, pkt), context.DeadlineExceeded)

	e.Stop()
	assert.ErrorIs(t, e.SubmitWait(context.Background(), pkt), ErrClosed)
}

func TestEngineRemoveExpired(t *testing.T) {
	s := &memorySink{}
	e := newTestEngine(t, Config{Partitions: 2}, observer.NewRecorder(s.sink, observer.RecorderOptions{}))
	e.Start()

	require.NoError(t, e.Submit(&socket.TCPSegment{Tuple: tuple(1), Time: time.Now(), Seq: 1}))
	e.RemoveExpired(-time.Second)
	e.Stop()

	var kinds []observer.Kind
	for _, r := range s.all() {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []observer.Kind{observer.KindConnectionUp, observer.KindConnectionDown}, kinds)
}

// panicObserver 在收到特定负载时 panic
type panicObserver struct {
	observer.Base
	mut      sync.Mutex
	payloads []string
}

func (o *panicObserver) UnrecognisedDatagram(_ *flowctx.Context, v zerocopy.View, _ time.Time) {
	if string(v.Bytes()) == "boom" {
		panic("boom")
	}
	o.mut.Lock()
	defer o.mut.Unlock()
	o.payloads = append(o.payloads, string(v.Bytes()))
}

func TestEngineRecoversPanic(t *testing.T) {
	obs := &panicObserver{}
	e := newTestEngine(t, Config{Partitions: 1}, obs)
	e.Start()

	for _, payload := range []string{"one", "boom", "two"} {
		require.NoError(t, e.Submit(&socket.UDPDatagram{Tuple: tuple(1), Time: time.Now(), Payload: []byte(payload)}))
	}
	e.Stop()

	assert.Equal(t, []string{"one", "two"}, obs.payloads)
}
