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

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/flowmon/confengine"
)

func TestNewDisabled(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`server: {enabled: false}`))
	require.NoError(t, err)

	s, err := New(conf)
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestServerRoutes(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`server: {enabled: true, pprof: true}`))
	require.NoError(t, err)

	s, err := New(conf)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "localhost:9091", s.config.Address)
	assert.Equal(t, time.Minute, s.config.Timeout)

	s.RegisterGetRoute("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	s.RegisterDeleteRoute("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{method: http.MethodGet, path: "/ping", code: http.StatusOK},
		{method: http.MethodDelete, path: "/ping", code: http.StatusNoContent},
		{method: http.MethodPost, path: "/ping", code: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/debug/pprof/cmdline", code: http.StatusOK},
		{method: http.MethodGet, path: "/missing", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
