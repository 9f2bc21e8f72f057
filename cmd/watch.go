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
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type watchCmdConfig struct {
	Address    string
	Kinds      []string
	MaxMessage int
	Timeout    time.Duration
}

// URL 返回 agent /watch 接口地址
func (c *watchCmdConfig) URL() string {
	address := c.Address
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	q := url.Values{}
	if len(c.Kinds) > 0 {
		q.Set("kinds", strings.Join(c.Kinds, ","))
	}
	q.Set("max_message", strconv.Itoa(c.MaxMessage))
	q.Set("timeout", c.Timeout.String())
	return strings.TrimRight(address, "/") + "/watch?" + q.Encode()
}

var watchConfig watchCmdConfig

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events from a running flowmon agent",
	Run: func(cmd *cobra.Command, args []string) {
		rsp, err := http.Get(watchConfig.URL())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect agent: %v\n", err)
			os.Exit(1)
		}
		defer rsp.Body.Close()

		if rsp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "agent responded with status %s\n", rsp.Status)
			os.Exit(1)
		}

		scanner := bufio.NewScanner(rsp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			fmt.Println(scanner.Text())
		}
	},
	Example: "# flowmon watch --address localhost:9091 --kind http_request --kind dns_message",
}

func init() {
	watchCmd.Flags().StringVar(&watchConfig.Address, "address", "localhost:9091", "Agent server address")
	watchCmd.Flags().StringSliceVar(&watchConfig.Kinds, "kind", nil, "Event kinds to watch, defaults to all")
	watchCmd.Flags().IntVar(&watchConfig.MaxMessage, "max-message", 100, "Maximum events to receive")
	watchCmd.Flags().DurationVar(&watchConfig.Timeout, "timeout", 5*time.Second, "Stop after no event arrives within the timeout")
	rootCmd.AddCommand(watchCmd)
}
