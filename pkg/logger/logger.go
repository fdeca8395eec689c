package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	global = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// New 根据运行环境构造 logger：development 为彩色控制台 + debug 级别，其余为 JSON + info 级别
func New(appEnv string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Init 设置进程级默认 logger
func Init(appEnv string) zerolog.Logger {
	l := New(appEnv, os.Stdout)
	Set(l)
	return l
}

func Set(l zerolog.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// L 返回进程级默认 logger
func L() *zerolog.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	return &l
}

// Component 带 component 字段的子 logger，对应各模块的 [Tag] 前缀
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}
