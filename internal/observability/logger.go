// Package observability owns the process-wide zap logger. Components receive
// a *zap.Logger and name themselves; a crawl tags its logger with ForCrawl.
package observability

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/adscope/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	globalLevel  = zap.NewAtomicLevelAt(zap.InfoLevel)
	once         sync.Once
)

const ansiReset = "\x1b[0m"

// ansi maps config color names to escape codes.
var ansi = map[string]string{
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Initialize builds the global logger. The console core writes to
// consoleWriter; a JSON core writing to a rotated file is added when
// cfg.LogFile is set. Calls after the first are ignored until ResetForTest.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.InfoLevel
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zap.InfoLevel
		}
		globalLevel.SetLevel(level)

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}
		logger := zap.New(zapcore.NewTee(newCores(cfg, consoleWriter)...), opts...).Named(cfg.ServiceName)

		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

func newCores(cfg config.LoggerConfig, console zapcore.WriteSyncer) []zapcore.Core {
	var consoleEnc zapcore.Encoder
	if cfg.Format == "console" {
		consoleEnc = consoleEncoder(cfg.Colors)
	} else {
		consoleEnc = jsonEncoder()
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, console, globalLevel)}

	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(rotated), globalLevel))
	}
	return cores
}

// InitializeLogger logs to stderr so stdout carries nothing but results.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// SetLevel changes the level of every core at runtime.
func SetLevel(l zapcore.Level) { globalLevel.SetLevel(l) }

// ResetForTest clears the global logger. Tests only.
func ResetForTest() {
	globalLogger.Store(nil)
	globalLevel.SetLevel(zap.InfoLevel)
	once = sync.Once{}
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

// consoleEncoder colors the level and prints names as "adscope.session.".
func consoleEncoder(colors config.ColorConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeLevel = levelPalette(colors).encode
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// palette holds the escape code per level. Missing entries print plain.
type palette map[zapcore.Level]string

func levelPalette(c config.ColorConfig) palette {
	return palette{
		zapcore.DebugLevel:  ansi[c.Debug],
		zapcore.InfoLevel:   ansi[c.Info],
		zapcore.WarnLevel:   ansi[c.Warn],
		zapcore.ErrorLevel:  ansi[c.Error],
		zapcore.DPanicLevel: ansi[c.DPanic],
		zapcore.PanicLevel:  ansi[c.Panic],
		zapcore.FatalLevel:  ansi[c.Fatal],
	}
}

func (p palette) encode(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if code := p[l]; code != "" {
		enc.AppendString(code + l.CapitalString() + ansiReset)
		return
	}
	enc.AppendString(l.CapitalString())
}

// GetLogger returns the global logger. Before Initialize it returns a
// development logger named "fallback".
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// ForCrawl returns a child logger tagged with the crawl's identity.
func ForCrawl(base *zap.Logger, crawlID, url string) *zap.Logger {
	if base == nil {
		base = GetLogger()
	}
	return base.With(zap.String("crawl_id", crawlID), zap.String("url", url))
}

// Sync flushes buffered entries. Terminals and pipes reject fsync; those
// errors are dropped.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !unsyncable(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

func unsyncable(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.EBADF)
}
