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
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/packetd/flowmon/exporter"
	"github.com/packetd/flowmon/internal/json"
	"github.com/packetd/flowmon/observer"
)

func init() {
	exporter.Register(exporter.SinkerEvents, New)
}

type encoder interface {
	Encode(v any) error
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type Sinker struct {
	wr      io.WriteCloser
	encoder encoder
	cfg     *exporter.EventsConfig
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.Events
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var wr io.WriteCloser
	switch {
	case cfg.Console:
		wr = nopCloser{Writer: os.Stdout}
	default:
		wr = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			LocalTime:  true,
		}
	}
	return newSinker(wr, cfg), nil
}

func newSinker(wr io.WriteCloser, cfg *exporter.EventsConfig) *Sinker {
	var enc encoder
	switch cfg.Format {
	case exporter.FormatMsgpack:
		enc = msgpack.NewEncoder(wr)
	default:
		enc = json.NewEncoder(wr)
	}
	return &Sinker{
		wr:      wr,
		cfg:     cfg,
		encoder: enc,
	}
}

func (s *Sinker) Name() string {
	return exporter.SinkerEvents
}

func (s *Sinker) Sink(r *observer.Record) error {
	return s.encoder.Encode(r)
}

func (s *Sinker) Close() {
	s.wr.Close()
}
