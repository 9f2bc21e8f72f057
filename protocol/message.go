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

package protocol

import (
	"strings"

	"github.com/packetd/flowmon/internal/splitio"
	"github.com/packetd/flowmon/observer"
)

// MessageHeader 文本协议 (HTTP/SIP) 的起始行以及首部
type MessageHeader struct {
	StartLine string
	Header    observer.Header

	// Size 起始行到空行 (含) 的总字节数
	Size int
}

// ReadMessageHeader 读取以空行结尾的首部块
//
// 首部块不完整时返回 ok=false 若不完整的首部块已超出 max 则返回 ErrUnrecognised
// 起始行之前的空行会被忽略 以空白开头的行视为上一个字段的折叠续行
func ReadMessageHeader(b []byte, max int) (*MessageHeader, bool, error) {
	scanner := splitio.NewScanner(b)
	var msg *MessageHeader
	var last string

	for scanner.Scan() {
		if !scanner.Terminated() {
			break
		}

		line := scanner.Text()
		if msg == nil {
			if line == "" {
				continue
			}
			msg = &MessageHeader{StartLine: line, Header: observer.Header{}}
			continue
		}

		if line == "" {
			msg.Size = scanner.Offset()
			return msg, true, nil
		}

		if line[0] == ' ' || line[0] == '\t' {
			if last == "" {
				return nil, false, Unrecognised("folded line without field")
			}
			f := msg.Header[strings.ToLower(last)]
			msg.Header.Set(f.Name, f.Value+" "+strings.TrimSpace(line))
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, false, Unrecognised("malformed header line %q", line)
		}
		msg.Header.Set(name, strings.TrimSpace(value))
		last = name
	}

	if max > 0 && len(b) > max {
		return nil, false, Unrecognised("header exceeds %d bytes", max)
	}
	return nil, false, nil
}
