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

package pntp

import (
	"encoding/binary"
	"time"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoNTP, NewDecoder)
}

const (
	timestampLen  = 48
	controlLen    = 12
	privateLen    = 8
	maxMACLen     = 24
	modeControl   = 6
	modePrivate   = 7
	shortFraction = 1 << 16
	longFraction  = 1 << 32
)

type decoder struct {
	env protocol.Env
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

// Decode 根据首字节的 Mode 字段区分报文类型
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|LI | VN  |Mode |
//	+-+-+-+-+-+-+-+-+
//
// Mode 1-5 为时间同步报文 (rfc5905) 6 为控制报文 (rfc1305 Appendix B) 7 为 ntpd 私有报文
func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	b := v.Bytes()
	if len(b) == 0 {
		return 0, protocol.Unrecognised("ntp empty datagram")
	}

	header := observer.NTPHeader{
		LeapIndicator: b[0] >> 6,
		Version:       (b[0] >> 3) & 0x07,
		Mode:          b[0] & 0x07,
	}
	if header.Version < 1 || header.Version > 4 {
		return 0, protocol.Unrecognised("ntp version %d", header.Version)
	}

	switch header.Mode {
	case modeControl:
		ctrl, err := parseControl(header, b)
		if err != nil {
			return 0, err
		}
		d.env.Observer().NTPControlMessage(ctx, ctrl, t)

	case modePrivate:
		priv, err := parsePrivate(header, b)
		if err != nil {
			return 0, err
		}
		d.env.Observer().NTPPrivateMessage(ctx, priv, t)

	case 0:
		return 0, protocol.Unrecognised("ntp reserved mode")

	default:
		ts, err := parseTimestamp(header, b)
		if err != nil {
			return 0, err
		}
		d.env.Observer().NTPTimestampMessage(ctx, ts, t)
	}
	return len(b), nil
}

// parseTimestamp 解析时间同步报文
//
// 48 字节之后若只剩 MAC (KeyID + Digest 不超过 24 字节) 则不认为存在扩展字段
func parseTimestamp(header observer.NTPHeader, b []byte) (*observer.NTPTimestamp, error) {
	if len(b) < timestampLen {
		return nil, protocol.Unrecognised("ntp timestamp message too short (%d)", len(b))
	}

	return &observer.NTPTimestamp{
		Header:             header,
		Stratum:            b[1],
		Poll:               int8(b[2]),
		Precision:          int8(b[3]),
		RootDelay:          shortFormat(b[4:]),
		RootDispersion:     shortFormat(b[8:]),
		ReferenceID:        binary.BigEndian.Uint32(b[12:]),
		ReferenceTimestamp: longFormat(b[16:]),
		OriginateTimestamp: longFormat(b[24:]),
		ReceiveTimestamp:   longFormat(b[32:]),
		TransmitTimestamp:  longFormat(b[40:]),
		HasExtension:       len(b)-timestampLen > maxMACLen,
	}, nil
}

// shortFormat NTP Short Format 16 位整数 + 16 位小数
func shortFormat(b []byte) float64 {
	return float64(binary.BigEndian.Uint32(b)) / shortFraction
}

// longFormat NTP Timestamp Format 32 位秒数 + 32 位小数
func longFormat(b []byte) float64 {
	sec := binary.BigEndian.Uint32(b)
	frac := binary.BigEndian.Uint32(b[4:])
	return float64(sec) + float64(frac)/longFraction
}

// parseControl 解析控制报文
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|LI | VN  |Mode |R|E|M| OpCode  |       Sequence Number         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|            Status             |        Association ID         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|            Offset             |            Count              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// 数据部分按 4 字节对齐 之后仍有剩余则视为携带认证信息
func parseControl(header observer.NTPHeader, b []byte) (*observer.NTPControl, error) {
	if len(b) < controlLen {
		return nil, protocol.Unrecognised("ntp control message too short (%d)", len(b))
	}

	count := binary.BigEndian.Uint16(b[10:])
	padded := (int(count) + 3) &^ 3
	if len(b) < controlLen+int(count) {
		return nil, protocol.Unrecognised("ntp control count %d exceeds %d", count, len(b)-controlLen)
	}

	return &observer.NTPControl{
		Header:        header,
		Response:      b[1]&0x80 != 0,
		Error:         b[1]&0x40 != 0,
		More:          b[1]&0x20 != 0,
		Opcode:        b[1] & 0x1F,
		Sequence:      binary.BigEndian.Uint16(b[2:]),
		Status:        binary.BigEndian.Uint16(b[4:]),
		AssociationID: binary.BigEndian.Uint16(b[6:]),
		Offset:        binary.BigEndian.Uint16(b[8:]),
		Count:         count,
		HasAuth:       len(b) > controlLen+padded,
	}, nil
}

// parsePrivate 解析私有报文
//
// 私有报文首字节没有 LI 字段 高两位分别为 Response 以及 More
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|R|M| VN  |Mode |A|  Sequence   |Implementation |   Req Code    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  Err  | Number of data items  |  MBZ  |   Size of data item   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
func parsePrivate(header observer.NTPHeader, b []byte) (*observer.NTPPrivate, error) {
	if len(b) < privateLen {
		return nil, protocol.Unrecognised("ntp private message too short (%d)", len(b))
	}

	header.LeapIndicator = 0
	return &observer.NTPPrivate{
		Header:         header,
		Response:       b[0]&0x80 != 0,
		More:           b[0]&0x40 != 0,
		Authenticated:  b[1]&0x80 != 0,
		Sequence:       b[1] & 0x7F,
		Implementation: b[2],
		RequestCode:    b[3],
	}, nil
}
