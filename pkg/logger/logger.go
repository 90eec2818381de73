package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 日志配置（与config.LogConfig字段一一对应，避免pkg依赖internal）
type Options struct {
	Level        string // debug/info/warn/error
	Format       string // json/console
	Output       string // stdout/stderr/文件路径
	EnableCaller bool
}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// New 根据配置构建zap Logger
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	switch opts.Output {
	case "", "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		f, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(f)
	}

	zopts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if opts.EnableCaller {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(zapcore.NewCore(encoder, sink, level), zopts...), nil
}

// SetGlobal 替换全局Logger（main启动时调用一次）
func SetGlobal(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// L 返回全局Logger，未初始化时为Nop
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}
