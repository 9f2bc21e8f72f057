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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/confengine"
	"github.com/packetd/flowmon/controller"
	"github.com/packetd/flowmon/internal/sigs"
	"github.com/packetd/flowmon/logger"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run flowmon as a network monitoring agent",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
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

		done := ctr.SnifferDone()
		for {
			select {
			case <-done:
				// 离线回放结束后继续提供 HTTP 服务 直到收到终止信号
				logger.Infof("packet source finished")
				done = nil
			case ev := <-events:
				if ev == sigs.EventReload {
					reload(ctr)
					continue
				}
				ctr.Stop()
				logger.Sync()
				return
			}
		}
	},
}

func reload(ctr *controller.Controller) {
	cfg, err := confengine.LoadConfigPath(configPath)
	if err != nil {
		logger.Errorf("failed to reload config: %v", err)
		return
	}
	if err := ctr.Reload(cfg); err != nil {
		logger.Errorf("failed to reload controller: %v", err)
		return
	}
	logger.Infof("config (%s) reloaded", configPath)
}

var configPath string

func init() {
	agentCmd.Flags().StringVar(&configPath, "config", "flowmon.yaml", "Configuration file path")
	rootCmd.AddCommand(agentCmd)
}
