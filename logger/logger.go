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

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func toZapLevel(l string) zapcore.Level {
	levels := map[Level]zapcore.Level{
		LevelDebug: zapcore.DebugLevel,
		LevelInfo:  zapcore.InfoLevel,
		LevelWarn:  zapcore.WarnLevel,
		LevelError: zapcore.ErrorLevel,
	}
	if level, ok := levels[Level(strings.ToLower(strings.TrimSpace(l)))]; ok {
		return level
	}
	return zapcore.DebugLevel
}

type Options struct {
	Stdout     bool   `config:"stdout"`
	Level      string `config:"level"`
	Filename   string `config:"filename"`
	MaxSize    int    `config:"maxSize"` // unit: MB
	MaxAge     int    `config:"maxAge"`  // unit: days
	MaxBackups int    `config:"maxBackups"`
}

// Validate 填充默认值
func (o *Options) Validate() {
	if o.Filename == "" {
		o.Filename = "flowmon.log"
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 10
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 7
	}
	if o.MaxSize <= 0 {
		o.MaxSize = 100
	}
}

type Logger struct {
	sugared *zap.SugaredLogger
	level   zap.AtomicLevel
}

func (l *Logger) Debugf(template string, args ...any) {
	l.sugared.Debugf(template, args...)
}

func (l *Logger) Infof(template string, args ...any) {
	l.sugared.Infof(template, args...)
}

func (l *Logger) Warnf(template string, args ...any) {
	l.sugared.Warnf(template, args...)
}

func (l *Logger) Errorf(template string, args ...any) {
	l.sugared.Errorf(template, args...)
}

// SetLevel 运行时调整日志级别 无需重建 Logger
func (l *Logger) SetLevel(s string) {
	l.level.SetLevel(toZapLevel(s))
}

// Level 返回当前日志级别
func (l *Logger) Level() string {
	return l.level.Level().String()
}

// Sync 刷新缓冲区
func (l *Logger) Sync() error {
	return l.sugared.Sync()
}

// New 创建并返回标准 Logger 实例
func New(opt Options) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Local().Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	var w zapcore.WriteSyncer
	switch {
	case opt.Stdout:
		w = zapcore.AddSync(os.Stdout)
	default:
		opt.Validate()
		if err := os.MkdirAll(filepath.Dir(opt.Filename), os.ModePerm); err != nil {
			panic(err)
		}

		w = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opt.Filename,
			MaxSize:    opt.MaxSize,
			MaxBackups: opt.MaxBackups,
			MaxAge:     opt.MaxAge,
			LocalTime:  true,
		})
	}

	level := zap.NewAtomicLevelAt(toZapLevel(opt.Level))
	core := zapcore.NewCore(encoder, w, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{
		sugared: logger.Sugar(),
		level:   level,
	}
}

// std 会被多个分区的 worker 并发读取 替换时使用原子操作
var std atomic.Pointer[Logger]

func init() {
	std.Store(New(Options{Stdout: true, Level: string(LevelInfo)}))
}

// SetOptions 设置全局 Logger 配置
func SetOptions(opt Options) {
	std.Store(New(opt))
}

// SetLoggerLevel 设置全局 Logger 日志级别
func SetLoggerLevel(s string) {
	std.Load().SetLevel(s)
}

// LoggerLevel 返回全局 Logger 日志级别
func LoggerLevel() string {
	return std.Load().Level()
}

func Sync() error {
	return std.Load().Sync()
}

func Debugf(template string, args ...any) {
	std.Load().Debugf(template, args...)
}

func Infof(template string, args ...any) {
	std.Load().Infof(template, args...)
}

func Warnf(template string, args ...any) {
	std.Load().Warnf(template, args...)
}

func Errorf(template string, args ...any) {
	std.Load().Errorf(template, args...)
}
