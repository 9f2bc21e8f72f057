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

package dispatch

import (
	"github.com/hashicorp/go-multierror"

	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/protocol"
)

type portKey struct {
	l4   socket.L4Proto
	port socket.Port
}

// portTable 记录了传输层端口与协议标签的映射关系
//
// 同一端口在 TCP/UDP 上可以绑定不同的协议
type portTable struct {
	ports map[portKey]socket.Proto
}

func newPortTable(pps []socket.ProtoPorts) (*portTable, error) {
	ports := make(map[portKey]socket.Proto)

	var errs error
	for _, pp := range pps {
		if _, err := protocol.Get(pp.Proto); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		l4, _ := socket.ProtoBased(pp.Proto)
		for _, port := range pp.Ports {
			ports[portKey{l4: l4, port: port}] = pp.Proto
			// DNS 在响应过长时会切换到 TCP
			if pp.Proto == socket.ProtoDNS {
				ports[portKey{l4: socket.L4ProtoTCP, port: port}] = pp.Proto
			}
		}
	}
	if errs != nil {
		return nil, errs
	}
	return &portTable{ports: ports}, nil
}

// Decide 根据端口决定协议标签 优先匹配源端口
func (pt *portTable) Decide(l4 socket.L4Proto, st socket.Tuple) (socket.Proto, bool) {
	if p, ok := pt.ports[portKey{l4: l4, port: st.SrcPort}]; ok {
		return p, true
	}
	if p, ok := pt.ports[portKey{l4: l4, port: st.DstPort}]; ok {
		return p, true
	}
	return "", false
}
