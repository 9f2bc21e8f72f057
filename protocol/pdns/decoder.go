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

package pdns

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/flowctx"
	"github.com/packetd/flowmon/internal/zerocopy"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/protocol"
)

func init() {
	protocol.Register(socket.ProtoDNS, NewDecoder)
}

const headerLen = 12

type decoder struct {
	env protocol.Env
}

func NewDecoder(env protocol.Env, _ common.Options) protocol.Decoder {
	return &decoder{env: env}
}

// Decode 解析 DNS 报文
//
// 基于 UDP 时单个数据报即一个完整的报文
// 基于 TCP 时 (rfc1035 4.2.2) 每个报文前有 2 字节长度前缀 同一段数据中可能包含多个报文
func (d *decoder) Decode(ctx *flowctx.Context, v zerocopy.View, t time.Time) (int, error) {
	if !ctx.Connected() {
		msg, err := Parse(v.Bytes())
		if err != nil {
			return 0, err
		}
		d.env.Observer().DNSMessage(ctx, msg, t)
		return v.Len(), nil
	}

	b := v.Bytes()
	var consumed int
	for len(b)-consumed >= 2 {
		size := int(binary.BigEndian.Uint16(b[consumed:]))
		if len(b)-consumed-2 < size {
			break
		}

		msg, err := Parse(b[consumed+2 : consumed+2+size])
		if err != nil {
			return consumed, err
		}
		d.env.Observer().DNSMessage(ctx, msg, t)
		consumed += 2 + size
	}
	return consumed, nil
}

// Parse 解析完整的 DNS 报文
//
// rfc: https://www.ietf.org/rfc/rfc1035.txt 4.1. Format
//
// +---------------------+
// |       Header        | → Fixed 12 bytes
// +---------------------+
// |      Question       | → Query details (name, type, class)
// +---------------------+
// |      Answer(s)      | → Resource Records (RRs)
// +---------------------+
// |   Authority (RRs)   | → Authoritative servers
// +---------------------+
// |  Additional (RRs)   | → Additional data (e.g., IPv6)
// +---------------------+
func Parse(b []byte) (*observer.DNSMessage, error) {
	if len(b) < headerLen {
		return nil, protocol.Unrecognised("dns message too short (%d)", len(b))
	}

	var p dnsmessage.Parser
	h, err := p.Start(b)
	if err != nil {
		return nil, protocol.Unrecognised("dns header: %v", err)
	}

	msg := &observer.DNSMessage{
		Header: observer.DNSHeader{
			ID:                 h.ID,
			Response:           h.Response,
			Opcode:             uint8(h.OpCode),
			Authoritative:      h.Authoritative,
			Truncated:          h.Truncated,
			RecursionDesired:   h.RecursionDesired,
			RecursionAvailable: h.RecursionAvailable,
			RCode:              uint8(h.RCode),
			QDCount:            binary.BigEndian.Uint16(b[4:]),
			ANCount:            binary.BigEndian.Uint16(b[6:]),
			NSCount:            binary.BigEndian.Uint16(b[8:]),
			ARCount:            binary.BigEndian.Uint16(b[10:]),
		},
	}

	for {
		q, err := p.Question()
		if errors.Is(err, dnsmessage.ErrSectionDone) {
			break
		}
		if err != nil {
			return nil, protocol.Unrecognised("dns question: %v", err)
		}
		msg.Queries = append(msg.Queries, observer.DNSQuery{
			Name:  q.Name.String(),
			Type:  matchTypeName(q.Type),
			Class: matchClassName(q.Class),
		})
	}

	sections := []struct {
		name   string
		header func() (dnsmessage.ResourceHeader, error)
		rrs    *[]observer.DNSRR
	}{
		{name: "answer", header: p.AnswerHeader, rrs: &msg.Answers},
		{name: "authority", header: p.AuthorityHeader, rrs: &msg.Authorities},
		{name: "additional", header: p.AdditionalHeader, rrs: &msg.Additional},
	}
	for _, sec := range sections {
		for {
			rh, err := sec.header()
			if errors.Is(err, dnsmessage.ErrSectionDone) {
				break
			}
			if err != nil {
				return nil, protocol.Unrecognised("dns %s: %v", sec.name, err)
			}

			data, err := decodeResourceData(&p, rh.Type)
			if err != nil {
				return nil, protocol.Unrecognised("dns %s %s: %v", sec.name, rh.Name, err)
			}
			*sec.rrs = append(*sec.rrs, observer.DNSRR{
				Name:  rh.Name.String(),
				Type:  matchTypeName(rh.Type),
				Class: matchClassName(rh.Class),
				TTL:   rh.TTL,
				Data:  data,
			})
		}
	}
	return msg, nil
}

// decodeResourceData 解析 ResourceRecord RDATA 部分
//
// +---------------------+
// |      Name           | → Domain name (may use pointers, e.g., 0xC00C)
// +---------------------+
// |    Type (2 bytes)   |
// +---------------------+
// |    Class (2 bytes)  |
// +---------------------+
// |    TTL (4 bytes)    | → Time-to-live (seconds)
// +---------------------+
// |  Data Len (2 bytes) | → Length of RDATA
// +---------------------+
// |       RDATA         | → Variable-length data (IP, CNAME, etc.)
// +---------------------+
//
// 未知类型以十六进制输出
func decodeResourceData(p *dnsmessage.Parser, t dnsmessage.Type) (string, error) {
	switch t {
	case dnsmessage.TypeA:
		r, err := p.AResource()
		if err != nil {
			return "", err
		}
		return net.IP(r.A[:]).String(), nil

	case dnsmessage.TypeAAAA:
		r, err := p.AAAAResource()
		if err != nil {
			return "", err
		}
		return net.IP(r.AAAA[:]).String(), nil

	case dnsmessage.TypeCNAME:
		r, err := p.CNAMEResource()
		if err != nil {
			return "", err
		}
		return r.CNAME.String(), nil

	case dnsmessage.TypeMX:
		r, err := p.MXResource()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %s", r.Pref, r.MX.String()), nil

	case dnsmessage.TypePTR:
		r, err := p.PTRResource()
		if err != nil {
			return "", err
		}
		return r.PTR.String(), nil

	case dnsmessage.TypeSRV:
		r, err := p.SRVResource()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d %d %s", r.Priority, r.Weight, r.Port, r.Target.String()), nil

	case dnsmessage.TypeSOA:
		r, err := p.SOAResource()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %d %d %d %d %d", r.NS.String(), r.MBox.String(), r.Serial, r.Refresh, r.Retry, r.Expire, r.MinTTL), nil

	case dnsmessage.TypeTXT:
		r, err := p.TXTResource()
		if err != nil {
			return "", err
		}
		return strings.Join(r.TXT, " "), nil

	case dnsmessage.TypeNS:
		r, err := p.NSResource()
		if err != nil {
			return "", err
		}
		return r.NS.String(), nil
	}

	r, err := p.UnknownResource()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(r.Data), nil
}
