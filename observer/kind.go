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

package observer

// Kind 事件类型
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConnectionUp
	KindConnectionDown
	KindUnrecognisedStream
	KindUnrecognisedDatagram
	KindICMP
	KindIMAP
	KindIMAPSSL
	KindPOP3
	KindPOP3SSL
	KindSMTPAuth
	KindSMTPCommand
	KindSMTPResponse
	KindSMTPData
	KindFTPCommand
	KindFTPResponse
	KindRTP
	KindRTPSSL
	KindSIPRequest
	KindSIPResponse
	KindSIPSSL
	KindHTTPRequest
	KindHTTPResponse
	KindDNSMessage
	KindNTPTimestamp
	KindNTPControl
	KindNTPPrivate
	KindGRE
	KindGREPPTP
	KindESP
	KindTriggerUp
	KindTriggerDown
)

var kindNames = [...]string{
	KindUnknown:              "unknown",
	KindConnectionUp:         "connection_up",
	KindConnectionDown:       "connection_down",
	KindUnrecognisedStream:   "unrecognised_stream",
	KindUnrecognisedDatagram: "unrecognised_datagram",
	KindICMP:                 "icmp",
	KindIMAP:                 "imap",
	KindIMAPSSL:              "imap_ssl",
	KindPOP3:                 "pop3",
	KindPOP3SSL:              "pop3_ssl",
	KindSMTPAuth:             "smtp_auth",
	KindSMTPCommand:          "smtp_command",
	KindSMTPResponse:         "smtp_response",
	KindSMTPData:             "smtp_data",
	KindFTPCommand:           "ftp_command",
	KindFTPResponse:          "ftp_response",
	KindRTP:                  "rtp",
	KindRTPSSL:               "rtp_ssl",
	KindSIPRequest:           "sip_request",
	KindSIPResponse:          "sip_response",
	KindSIPSSL:               "sip_ssl",
	KindHTTPRequest:          "http_request",
	KindHTTPResponse:         "http_response",
	KindDNSMessage:           "dns_message",
	KindNTPTimestamp:         "ntp_timestamp_message",
	KindNTPControl:           "ntp_control_message",
	KindNTPPrivate:           "ntp_private_message",
	KindGRE:                  "gre",
	KindGREPPTP:              "gre_pptp",
	KindESP:                  "esp",
	KindTriggerUp:            "trigger_up",
	KindTriggerDown:          "trigger_down",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// MarshalText 序列化时使用事件名称
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind 根据事件名称返回 Kind
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s && i != int(KindUnknown) {
			return Kind(i), true
		}
	}
	return KindUnknown, false
}

// Kinds 返回所有有效的事件类型
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames)-1)
	for i := 1; i < len(kindNames); i++ {
		kinds = append(kinds, Kind(i))
	}
	return kinds
}
