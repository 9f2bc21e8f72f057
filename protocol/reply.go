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
)

// Reply 文本协议 (SMTP/FTP) 的服务端应答行
//
//	250-mail.example.com
//	250-SIZE 14680064
//	250 HELP
//
// 第 4 个字符为 `-` 表示多行应答未结束 为空格或者行尾表示应答结束
type Reply struct {
	Code int
	More bool
	Text string
}

// ParseReply 解析单行应答 line 不包含行尾换行符
func ParseReply(line string) (Reply, bool) {
	if len(line) < 3 {
		return Reply{}, false
	}

	code := 0
	for i := 0; i < 3; i++ {
		c := line[i]
		if c < '0' || c > '9' {
			return Reply{}, false
		}
		code = code*10 + int(c-'0')
	}
	if code < 100 || code > 599 {
		return Reply{}, false
	}

	if len(line) == 3 {
		return Reply{Code: code}, true
	}
	switch line[3] {
	case '-':
		return Reply{Code: code, More: true, Text: line[4:]}, true
	case ' ':
		return Reply{Code: code, Text: line[4:]}, true
	}
	return Reply{}, false
}

// IsCommand 判断行是否以命令动词开头 即首个单词均为 ASCII 字母
func IsCommand(line string) bool {
	verb := line
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		verb = line[:idx]
	}
	if len(verb) == 0 || len(verb) > 16 {
		return false
	}
	for i := 0; i < len(verb); i++ {
		c := verb[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

// Verb 返回大写的命令动词
func Verb(line string) string {
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		line = line[:idx]
	}
	return strings.ToUpper(line)
}
