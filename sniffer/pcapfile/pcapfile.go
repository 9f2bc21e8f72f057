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

package pcapfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/sniffer"
)

const Name = "pcapfile"

func init() {
	sniffer.Register(New, Name)
}

// pcapng Section Header Block 的类型标识
const ngMagic = 0x0A0D0D0A

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type fileSniffer struct {
	conf   *sniffer.Config
	f      *os.File
	reader packetReader

	onL4Packet sniffer.OnL4Packet

	mut   sync.Mutex
	stats sniffer.Stats

	closeOnce sync.Once
}

func New(conf *sniffer.Config) (sniffer.Sniffer, error) {
	if conf.File == "" {
		return nil, errors.New("pcapfile: no file specified")
	}

	f, err := os.Open(conf.File)
	if err != nil {
		return nil, err
	}

	reader, err := openReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "open pcap file (%s)", conf.File)
	}
	logger.Infof("sniffer open pcap file (%s), linktype=%s", conf.File, reader.LinkType())

	return &fileSniffer{
		conf:   conf,
		f:      f,
		reader: reader,
	}, nil
}

// openReader 根据文件头判断 pcap 或 pcapng 格式
func openReader(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint32(magic) == ngMagic {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

func (s *fileSniffer) Name() string {
	return Name
}

func (s *fileSniffer) Offline() bool {
	return true
}

func (s *fileSniffer) SetOnL4Packet(f sniffer.OnL4Packet) {
	s.onL4Packet = f
}

func (s *fileSniffer) Stats() sniffer.Stats {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.stats
}

func (s *fileSniffer) update(fn func(stats *sniffer.Stats)) {
	s.mut.Lock()
	fn(&s.stats)
	s.mut.Unlock()
}

func (s *fileSniffer) Run(ctx context.Context) error {
	lt := s.reader.LinkType()

	var first time.Time
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, ci, err := s.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Infof("pcap file (%s) finished, stats=%+v", s.conf.File, s.Stats())
				return nil
			}
			return errors.Wrap(err, "read packet")
		}

		ts := ci.Timestamp
		if first.IsZero() {
			first = ts
		}
		if err := s.pace(ctx, start, first, ts); err != nil {
			return err
		}

		pkt, err := sniffer.ParsePacket(lt, ts, data, s.conf.IPv4Only)
		if err != nil {
			s.update(func(stats *sniffer.Stats) {
				stats.Packets++
				stats.Skipped++
			})
			continue
		}
		s.update(func(stats *sniffer.Stats) {
			stats.Packets++
			stats.Decoded++
			stats.Captured = ts
		})
		if s.onL4Packet != nil {
			s.onL4Packet(pkt)
		}
	}
}

// pace 按照 Speed 倍率还原报文之间的时间间隔
func (s *fileSniffer) pace(ctx context.Context, start, first, ts time.Time) error {
	if s.conf.Speed <= 0 {
		return nil
	}

	offset := time.Duration(float64(ts.Sub(first)) / s.conf.Speed)
	wait := time.Until(start.Add(offset))
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *fileSniffer) Close() {
	s.closeOnce.Do(func() {
		s.f.Close()
	})
}
