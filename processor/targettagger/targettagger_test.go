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

package targettagger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/processor"
	"github.com/packetd/flowmon/trigger"
)

func newCorrelator(t *testing.T) *trigger.Correlator {
	c := trigger.New(observer.Base{}, nil)
	outer, err := trigger.ParseAddress("192.168.1.1")
	require.NoError(t, err)
	inner, err := trigger.ParseAddress("10.0.0.2")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, c.Up("liid-outer", outer, now))
	require.NoError(t, c.Up("liid-inner", inner, now))
	return c
}

func tunnelRecord() *observer.Record {
	return &observer.Record{
		Kind: observer.KindESP,
		Context: &observer.ContextInfo{
			Proto: "esp",
			Chain: []observer.Layer{
				{Proto: "gre", Addresses: []observer.AddressInfo{
					{Class: "network", Proto: "ipv4", Direction: "src", Value: "192.168.1.1"},
					{Class: "network", Proto: "ipv4", Direction: "dst", Value: "192.168.1.2"},
				}},
				{Proto: "ipv4", Addresses: []observer.AddressInfo{
					{Class: "network", Proto: "ipv4", Direction: "src", Value: "10.0.0.1"},
					{Class: "network", Proto: "ipv4", Direction: "dst", Value: "10.0.0.2"},
				}},
				{Proto: "esp", Addresses: []observer.AddressInfo{
					{Class: "tunnel", Proto: "esp", Direction: "dst", Value: "4660"},
				}},
			},
		},
	}
}

func TestTargetTagger(t *testing.T) {
	c := newCorrelator(t)

	tests := []struct {
		name string
		conf map[string]any
		want []string
	}{
		{
			name: "all layers",
			want: []string{"liid-inner", "liid-outer"},
		},
		{
			name: "innermost",
			conf: map[string]any{"innermost": true},
			want: []string{"liid-inner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.conf, processor.Env{Matcher: c})
			require.NoError(t, err)

			r, err := p.Process(tunnelRecord())
			assert.NoError(t, err)
			assert.Equal(t, tt.want, r.Targets)
		})
	}
}

func TestTargetTaggerDropUnmatched(t *testing.T) {
	c := newCorrelator(t)
	require.NoError(t, c.Down("liid-outer", time.Now()))
	require.NoError(t, c.Down("liid-inner", time.Now()))

	p, err := New(map[string]any{"dropUnmatched": true}, processor.Env{Matcher: c})
	require.NoError(t, err)

	r, err := p.Process(tunnelRecord())
	assert.NoError(t, err)
	assert.Nil(t, r)

	trig := &observer.Record{Kind: observer.KindTriggerDown}
	r, err = p.Process(trig)
	assert.NoError(t, err)
	assert.Same(t, trig, r)
}

func TestTargetTaggerRequiresMatcher(t *testing.T) {
	_, err := New(nil, processor.Env{})
	assert.Error(t, err)
}
