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

package flowctx

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/packetd/flowmon/common/socket"
)

// FlowKey 面向连接 Context 的查找键
//
// Path 为父链的路径哈希 顶层链接为 0
// 同一条封装路径 (相同的隧道层级 标签以及地址集合) 下的同一 Tuple 总会得到相同的 FlowKey
type FlowKey struct {
	Path  uint64
	L4    socket.L4Proto
	Tuple socket.Tuple
}

// Mirror 返回反方向的 FlowKey
func (k FlowKey) Mirror() FlowKey {
	return FlowKey{
		Path:  k.Path,
		L4:    k.L4,
		Tuple: k.Tuple.Mirror(),
	}
}

// pathHash 计算 parent 之下子 Context 的路径哈希
//
// 哈希覆盖 父路径哈希 + 父协议标签 + 父地址列表 不包含 Context ID
// 因此每个数据包都会新建的瞬时 Context 仍会得到稳定的路径
//
// 地址不区分方向且按字典序参与计算 同一隧道两个方向的数据包得到相同的路径
// 这样 FlowKey.Mirror 才能找到隧道内链接的对端
func pathHash(parent *Context) uint64 {
	if parent == nil {
		return 0
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], parent.path)
	_, _ = buf.Write(b[:])
	_, _ = buf.WriteString(string(parent.proto))
	_ = buf.WriteByte(0)

	entries := make([]string, 0, len(parent.addrs))
	for _, addr := range parent.addrs {
		entries = append(entries, string([]byte{byte(addr.Class)})+addr.Proto+"\x00"+addr.Value)
	}
	sort.Strings(entries)
	for _, entry := range entries {
		_, _ = buf.WriteString(entry)
		_ = buf.WriteByte(0)
	}

	h := xxhash.Sum64(buf.B)
	if h == 0 {
		h = 1 // 0 保留给顶层链接
	}
	return h
}
