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

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/confengine"
	"github.com/packetd/flowmon/controller"
	"github.com/packetd/flowmon/internal/sigs"
	"github.com/packetd/flowmon/logger"
)

type replayCmdConfig struct {
	File       string
	IPv4Only   bool
	Speed      float64
	Console    bool
	Format     string
	EventsFile string
	MaxPayload int
	Kinds      []string
	Protocols  []string
	Targets    []string
}

type protoConfig struct {
	Protocol string
	Ports    []int
}

type targetConfig struct {
	ID      string
	Address string
}

// decodeProtoConfig 解析 `protocol;port1,port2` 格式的协议规则
func (c *replayCmdConfig) decodeProtoConfig() ([]protoConfig, error) {
	var pcs []protoConfig
	for _, proto := range c.Protocols {
		parts := strings.Split(proto, ";")
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid protocol rule (%s)", proto)
		}

		pc := protoConfig{Protocol: strings.TrimSpace(parts[0])}
		for _, port := range strings.Split(parts[1], ",") {
			i, err := strconv.ParseUint(strings.TrimSpace(port), 10, 16)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid port in rule (%s)", proto)
			}
			pc.Ports = append(pc.Ports, int(i))
		}
		pcs = append(pcs, pc)
	}
	return pcs, nil
}

// decodeTargetConfig 解析 `id=address` 格式的监控目标
func (c *replayCmdConfig) decodeTargetConfig() ([]targetConfig, error) {
	var tcs []targetConfig
	for _, target := range c.Targets {
		id, addr, ok := strings.Cut(target, "=")
		if !ok || id == "" || addr == "" {
			return nil, errors.Errorf("invalid target (%s)", target)
		}
		tcs = append(tcs, targetConfig{ID: id, Address: addr})
	}
	return tcs, nil
}

func (c *replayCmdConfig) Yaml() ([]byte, error) {
	text := `
logger:
  stdout: true
  level: warn

controller:
  recorder:
    maxPayload: {{ .MaxPayload }}
    kinds: [{{ range $i, $k := .Kinds }}{{ if $i }}, {{ end }}"{{ $k }}"{{ end }}]
  dispatch:
    protocols:
      rules:
{{- range .Protos }}
        - protocol: {{ .Protocol }}
          ports: [{{ range $i, $p := .Ports }}{{ if $i }}, {{ end }}{{ $p }}{{ end }}]
{{- end }}
  triggers:
{{- range .Targets }}
    - id: "{{ .ID }}"
      address: "{{ .Address }}"
{{- end }}

sniffer:
  engine: pcapfile
  file: "{{ .File }}"
  ipv4Only: {{ .IPv4Only }}
  speed: {{ .Speed }}

{{- if .Targets }}
processor:
  - name: targettagger

pipeline:
  - name: targets
    processors: [targettagger]
{{- end }}

exporter:
  events:
    enabled: true
    format: {{ .Format }}
    console: {{ .Console }}
    filename: "{{ .EventsFile }}"
`
	protos, err := c.decodeProtoConfig()
	if err != nil {
		return nil, err
	}
	targets, err := c.decodeTargetConfig()
	if err != nil {
		return nil, err
	}

	tpl, err := template.New("Config").Parse(text)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = tpl.Execute(&buf, map[string]any{
		"File":       c.File,
		"IPv4Only":   c.IPv4Only,
		"Speed":      c.Speed,
		"Console":    c.Console,
		"Format":     c.Format,
		"EventsFile": c.EventsFile,
		"MaxPayload": c.MaxPayload,
		"Kinds":      c.Kinds,
		"Protos":     protos,
		"Targets":    targets,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var replayConfig replayCmdConfig

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Decode a pcap/pcapng file and write the observed events",
	Run: func(cmd *cobra.Command, args []string) {
		content, err := replayConfig.Yaml()
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid arguments: %v\n", err)
			os.Exit(1)
		}
		cfg, err := confengine.LoadContent(content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		ctr, err := controller.New(cfg, common.GetBuildInfo())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create controller: %v\n", err)
			os.Exit(1)
		}
		if err := ctr.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start controller: %v\n", err)
			os.Exit(1)
		}

		events, stop := sigs.Notify()
		defer stop()

		select {
		case <-ctr.SnifferDone():
		case <-events:
		}
		ctr.Stop()
		logger.Sync()
	},
	Example: "# flowmon replay --pcap-file dump.pcap --proto 'http;80,8080' --proto 'dns;53' --target 'liid-1=10.0.0.2' --console",
}

func init() {
	replayCmd.Flags().StringVar(&replayConfig.File, "pcap-file", "", "Path to pcap/pcapng file to read from")
	replayCmd.Flags().BoolVar(&replayConfig.IPv4Only, "ipv4", false, "Decode IPv4 traffic only")
	replayCmd.Flags().Float64Var(&replayConfig.Speed, "speed", 0, "Replay speed multiplier, 0 means as fast as possible")
	replayCmd.Flags().BoolVar(&replayConfig.Console, "console", false, "Write events to stdout")
	replayCmd.Flags().StringVar(&replayConfig.Format, "format", "json", "Events format [json|msgpack]")
	replayCmd.Flags().StringVar(&replayConfig.EventsFile, "events.file", "flowmon.events", "Path to events file")
	replayCmd.Flags().IntVar(&replayConfig.MaxPayload, "max-payload", 4096, "Maximum payload bytes kept per event, 0 means unlimited")
	replayCmd.Flags().StringSliceVar(&replayConfig.Kinds, "kind", nil, "Event kinds to record, defaults to all")
	replayCmd.Flags().StringArrayVar(&replayConfig.Protocols, "proto", nil, "Port rules in 'protocol;ports' format, defaults to well-known ports")
	replayCmd.Flags().StringArrayVar(&replayConfig.Targets, "target", nil, "Targets to activate in 'id=address' format")
	replayCmd.MarkFlagRequired("pcap-file")
	rootCmd.AddCommand(replayCmd)
}
