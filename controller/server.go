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

package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packetd/flowmon/internal/json"
	"github.com/packetd/flowmon/internal/pubsub"
	"github.com/packetd/flowmon/internal/sigs"
	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/trigger"
)

func (c *Controller) setupServer() {
	if c.svr == nil {
		return
	}

	// Admin Routes
	c.svr.RegisterGetRoute("/-/logger", c.routeGetLogger)
	c.svr.RegisterPostRoute("/-/logger", c.routeLogger)
	c.svr.RegisterPostRoute("/-/reload", c.routeReload)

	// Watch Routes
	c.svr.RegisterGetRoute("/watch", c.routeWatch)

	// Trigger Routes
	c.svr.RegisterGetRoute("/triggers", c.routeListTriggers)
	c.svr.RegisterPostRoute("/triggers/{id}", c.routeTriggerUp)
	c.svr.RegisterDeleteRoute("/triggers/{id}", c.routeTriggerDown)

	// Metrics Routes
	c.svr.RegisterGetRoute("/metrics", c.routeMetrics)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	b, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("marshal response failed: %v", err)
		return
	}
	w.Write(b)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"status": "failed", "error": err.Error()})
}

func (c *Controller) routeMetrics(w http.ResponseWriter, r *http.Request) {
	c.recordMetrics()
	promhttp.Handler().ServeHTTP(w, r)
}

func (c *Controller) routeGetLogger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"level": logger.LoggerLevel()})
}

func (c *Controller) routeLogger(w http.ResponseWriter, r *http.Request) {
	level := r.FormValue("level")
	logger.SetLoggerLevel(level)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "level": logger.LoggerLevel()})
}

func (c *Controller) routeReload(w http.ResponseWriter, r *http.Request) {
	if err := sigs.SelfReload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type targetResponse struct {
	ID      string    `json:"id"`
	Class   string    `json:"class"`
	Address string    `json:"address"`
	Since   time.Time `json:"since"`
}

func (c *Controller) routeListTriggers(w http.ResponseWriter, r *http.Request) {
	targets := c.correlator.Targets()
	rsp := make([]targetResponse, 0, len(targets))
	for _, t := range targets {
		rsp = append(rsp, targetResponse{
			ID:      t.ID,
			Class:   t.Address.Class.String(),
			Address: t.Address.String(),
			Since:   t.Since,
		})
	}
	writeJSON(w, http.StatusOK, rsp)
}

func triggerStatus(err error) int {
	var terr *trigger.Error
	if errors.As(err, &terr) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func (c *Controller) routeTriggerUp(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	addr, err := trigger.ParseAddress(r.FormValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.correlator.Up(id, addr, time.Time{}); err != nil {
		writeError(w, triggerStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (c *Controller) routeTriggerDown(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.correlator.Down(id, time.Time{}); err != nil {
		writeError(w, triggerStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// routeWatch 以 JSON Lines 格式持续输出 Record
//
// 支持参数 kinds (逗号分隔) max_message timeout
func (c *Controller) routeWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	query := r.URL.Query()
	var kinds []observer.Kind
	for _, name := range strings.Split(query.Get("kinds"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, ok := observer.ParseKind(name)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failed", "error": "unknown kind: " + name})
			return
		}
		kinds = append(kinds, k)
	}

	maxMessage, _ := strconv.Atoi(query.Get("max_message"))
	if maxMessage <= 0 {
		maxMessage = 100
	}

	timeout, _ := time.ParseDuration(query.Get("timeout"))
	if timeout <= 0 {
		timeout = time.Second * 5
	}

	queue := c.bus.Subscribe(100, pubsub.KindFilter(kinds...))
	defer c.bus.Unsubscribe(queue)

	w.Header().Set("Content-Type", "application/x-ndjson")
	encoder := json.NewEncoder(w)
	for i := 0; i < maxMessage; i++ {
		record, ok := queue.PopTimeout(timeout)
		if !ok {
			return
		}
		if err := encoder.Encode(record); err != nil {
			return
		}
		flusher.Flush()
	}
}
