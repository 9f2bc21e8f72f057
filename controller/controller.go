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

package controller

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/flowmon/common"
	"github.com/packetd/flowmon/common/socket"
	"github.com/packetd/flowmon/confengine"
	"github.com/packetd/flowmon/engine"
	"github.com/packetd/flowmon/exporter"
	"github.com/packetd/flowmon/internal/pubsub"
	"github.com/packetd/flowmon/internal/rescue"
	"github.com/packetd/flowmon/logger"
	"github.com/packetd/flowmon/observer"
	"github.com/packetd/flowmon/pipeline"
	"github.com/packetd/flowmon/processor"
	"github.com/packetd/flowmon/server"
	"github.com/packetd/flowmon/sniffer"
	"github.com/packetd/flowmon/trigger"
)

// Controller 负责组装并驱动所有组件
//
// 数据流向: sniffer -> engine -> observer.Recorder -> records -> pipeline -> exporter/pubsub
type Controller struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       Config
	buildInfo common.BuildInfo

	plMut sync.RWMutex
	pl    *pipeline.Pipeline

	exp        *exporter.Exporter
	svr        *server.Server
	snif       sniffer.Sniffer
	eng        *engine.Engine
	correlator *trigger.Correlator
	bus        *pubsub.PubSub

	recMut  sync.RWMutex
	closed  bool
	records chan *observer.Record

	wg           sync.WaitGroup
	backpressure bool
	started      bool
	snifDone     chan struct{}
	stopOnce     sync.Once
}

func setupLogger(conf *confengine.Config) error {
	if !conf.Has("logger") {
		return nil
	}

	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}
	logger.SetOptions(opts)
	return nil
}

func New(conf *confengine.Config, buildInfo common.BuildInfo) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	var cfg Config
	if err := conf.UnpackOptional("controller", &cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		buildInfo: buildInfo,
		bus:       pubsub.New(),
		records:   make(chan *observer.Record, cfg.GetBufferSize()),
		snifDone:  make(chan struct{}),
	}

	rec := observer.NewRecorder(c.sink, cfg.Recorder)
	c.correlator = trigger.New(rec, nil)

	var err error
	if c.pl, err = pipeline.New(conf, processor.Env{Matcher: c.correlator}); err != nil {
		cancel()
		return nil, err
	}
	if c.exp, err = exporter.New(conf); err != nil {
		cancel()
		return nil, err
	}
	if c.svr, err = server.New(conf); err != nil {
		cancel()
		return nil, err
	}
	if c.eng, err = engine.New(cfg.Engine, cfg.Dispatch, rec); err != nil {
		cancel()
		return nil, err
	}

	// 未配置 sniffer 时仅能通过 Submit 提交数据包
	if conf.Has("sniffer") {
		if c.snif, err = sniffer.New(conf); err != nil {
			cancel()
			return nil, err
		}
	}
	c.backpressure = cfg.Backpressure || (c.snif != nil && c.snif.Offline())
	return c, nil
}

// sink 接收 Recorder 生成的 Record 会被多个分区并发调用
func (c *Controller) sink(r *observer.Record) {
	c.recMut.RLock()
	defer c.recMut.RUnlock()

	if c.closed {
		droppedRecords.Inc()
		return
	}

	// 消费者在 records 关闭前一直运行 阻塞写入总会返回
	if c.backpressure {
		c.records <- r
		return
	}

	select {
	case c.records <- r:
	default:
		droppedRecords.Inc()
	}
}

func (c *Controller) Start() error {
	for _, t := range c.cfg.Triggers {
		addr, err := trigger.ParseAddress(t.Address)
		if err != nil {
			return err
		}
		if err := c.correlator.Up(t.ID, addr, time.Time{}); err != nil {
			return err
		}
	}

	c.started = true
	c.setupServer()

	// 单个消费者保证同一个 flow 的 Record 按序输出
	c.wg.Add(1)
	go c.consumeRecords()

	c.eng.Start()
	go c.removeExpiredConn()

	if c.svr != nil {
		go func() {
			err := c.svr.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("failed to start server: %v", err)
			}
		}()
	}

	if c.snif == nil {
		close(c.snifDone)
		return nil
	}

	c.snif.SetOnL4Packet(func(pkt socket.L4Packet) {
		if c.backpressure {
			c.SubmitWait(pkt)
			return
		}
		c.Submit(pkt)
	})
	go func() {
		defer close(c.snifDone)
		if err := c.snif.Run(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("sniffer (%s) stopped: %v", c.snif.Name(), err)
		}
	}()
	return nil
}

// Submit 提交数据包 分区队列已满时丢弃
func (c *Controller) Submit(pkt socket.L4Packet) {
	if err := c.eng.Submit(pkt); err != nil {
		logger.Debugf("submit packet %s failed: %v", pkt.SocketTuple(), err)
	}
}

// SubmitWait 提交数据包 分区队列已满时阻塞 直到入队成功或者 Controller 停止
func (c *Controller) SubmitWait(pkt socket.L4Packet) {
	if err := c.eng.SubmitWait(c.ctx, pkt); err != nil {
		logger.Debugf("submit packet %s failed: %v", pkt.SocketTuple(), err)
	}
}

// SnifferDone 数据包源读取完毕后关闭
func (c *Controller) SnifferDone() <-chan struct{} {
	return c.snifDone
}

// Correlator 返回监控目标管理器
func (c *Controller) Correlator() *trigger.Correlator {
	return c.correlator
}

func (c *Controller) removeExpiredConn() {
	ticker := time.NewTicker(c.cfg.GetExpiredInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.eng.RemoveExpired(c.cfg.Dispatch.GetConnExpired())

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) consumeRecords() {
	defer c.wg.Done()

	for r := range c.records {
		c.handleRecord(r)
	}
}

func (c *Controller) handleRecord(r *observer.Record) {
	defer rescue.HandleCrash("controller")

	handledRecords.Inc()
	c.plMut.RLock()
	pl := c.pl
	c.plMut.RUnlock()

	pl.Range(r, func(_ string, dst *observer.Record) {
		c.exp.Export(dst)
		c.bus.Publish(dst)
	})
}

func (c *Controller) recordMetrics() {
	uptime.Set(float64(time.Now().Unix() - common.Started()))
	buildInfo.WithLabelValues(c.buildInfo.Version, c.buildInfo.GitHash, c.buildInfo.Time).Set(1)
	activeTargets.Set(float64(len(c.correlator.Targets())))

	for i, n := range c.eng.Pending() {
		enginePending.WithLabelValues(strconv.Itoa(i)).Set(float64(n))
	}
	if c.snif != nil {
		stats := c.snif.Stats()
		name := c.snif.Name()
		snifferPackets.WithLabelValues(name, "read").Set(float64(stats.Packets))
		snifferPackets.WithLabelValues(name, "decoded").Set(float64(stats.Decoded))
		snifferPackets.WithLabelValues(name, "skipped").Set(float64(stats.Skipped))
	}
}

// Reload 重载配置
//
// 仅重建 pipeline 以及调整日志级别 其余配置需要重启生效
func (c *Controller) Reload(conf *confengine.Config) error {
	if conf.Has("logger") {
		var opts logger.Options
		if err := conf.UnpackChild("logger", &opts); err != nil {
			return err
		}
		if opts.Level != "" {
			logger.SetLoggerLevel(opts.Level)
		}
	}

	pl, err := pipeline.New(conf, processor.Env{Matcher: c.correlator})
	if err != nil {
		return err
	}

	c.plMut.Lock()
	prev := c.pl
	c.pl = pl
	c.plMut.Unlock()

	prev.Clean()
	return nil
}

// Stop 停止所有组件
//
// engine 关闭时会为所有存活的链接生成 connection_down 事件 这些 Record 会在退出前被处理完毕
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if c.svr != nil {
			if err := c.svr.Close(); err != nil {
				logger.Warnf("close server failed: %v", err)
			}
		}

		c.cancel()
		if c.snif != nil {
			if c.started {
				<-c.snifDone
			}
			c.snif.Close()
		}
		c.eng.Stop()

		c.recMut.Lock()
		c.closed = true
		close(c.records)
		c.recMut.Unlock()
		c.wg.Wait()

		c.plMut.RLock()
		c.pl.Clean()
		c.plMut.RUnlock()
		c.exp.Close()
	})
}
