package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"session-agent/internal/application/port/output"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _ output.LoggerPort = (*LoggerAdapter)(nil)

type Config struct {
	Level   string
	Dir     string
	File    string
	Console bool
}

type LoggerAdapter struct {
	logger *zap.Logger
	file   *lumberjack.Logger
}

// NewLoggerAdapter writes JSON lines to a rotated file under cfg.Dir named
// after the run, and optionally a console copy to stderr.
func NewLoggerAdapter(runName string, cfg Config) (*LoggerAdapter, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil || cfg.Level == "" {
		level.SetLevel(zap.InfoLevel)
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "log"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	filename := cfg.File
	if filename == "" {
		filename = fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02_15-04-05"), sanitize(runName))
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, filename),
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     14,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level),
	}
	if cfg.Console {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level))
	}

	return &LoggerAdapter{
		logger: zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)),
		file:   file,
	}, nil
}

// New wraps an existing zap logger, e.g. one built on an observer core in tests.
func New(l *zap.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: l}
}

func NewNop() *LoggerAdapter {
	return &LoggerAdapter{logger: zap.NewNop()}
}

func (l *LoggerAdapter) Debug(msg string, args ...any) {
	l.logger.Debug(msg, fields(args)...)
}

func (l *LoggerAdapter) Info(msg string, args ...any) {
	l.logger.Info(msg, fields(args)...)
}

func (l *LoggerAdapter) Warn(msg string, args ...any) {
	l.logger.Warn(msg, fields(args)...)
}

func (l *LoggerAdapter) Error(msg string, args ...any) {
	l.logger.Error(msg, fields(args)...)
}

func (l *LoggerAdapter) WithField(key string, value any) output.LoggerPort {
	return &LoggerAdapter{logger: l.logger.With(zap.Any(key, value)), file: l.file}
}

func (l *LoggerAdapter) WithFields(fs map[string]any) output.LoggerPort {
	zf := make([]zap.Field, 0, len(fs))
	for k, v := range fs {
		zf = append(zf, zap.Any(k, v))
	}
	return &LoggerAdapter{logger: l.logger.With(zf...), file: l.file}
}

func (l *LoggerAdapter) Close() error {
	_ = l.logger.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// fields turns alternating key/value args into zap fields. A trailing key
// without a value and non-string keys are kept under a positional name.
func fields(args []any) []zap.Field {
	out := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 >= len(args) {
			out = append(out, zap.Any("extra", args[i]))
			break
		}
		if err, isErr := args[i+1].(error); isErr {
			out = append(out, zap.NamedError(key, err))
			continue
		}
		out = append(out, zap.Any(key, args[i+1]))
	}
	return out
}

func sanitize(s string) string {
	result := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result = append(result, r)
		} else {
			result = append(result, '_')
		}
	}
	s = string(result)
	if s == "" {
		return "run"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
