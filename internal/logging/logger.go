// Package logging builds the zap logger handed to every sherlock component.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/askiada/sherlock/internal/failure"
)

// Levels accepted by ParseLevel.
var Levels = []string{"debug", "info", "warning", "error"}

const consoleTimeLayout = "06-01-02 15:04:05"

// ParseLevel converts a --log value into a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warning", "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}

	return zapcore.InfoLevel, failure.Configf("invalid log level %q, expected one of %s", s, strings.Join(Levels, ", "))
}

func consoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("[" + consoleTimeLayout + "]"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		LevelKey:         zapcore.OmitKey,
		ConsoleSeparator: " ",
	}

	return zapcore.NewConsoleEncoder(cfg)
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.CallerKey = zapcore.OmitKey

	return zapcore.NewConsoleEncoder(cfg)
}

// New returns a console logger writing records at or above level to w.
func New(w zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(consoleEncoder(), zapcore.Lock(w), level)

	return zap.New(core)
}

// NewStdout is New on os.Stdout.
func NewStdout(level zapcore.Level) *zap.Logger {
	return New(zapcore.AddSync(os.Stdout), level)
}

// RunLogName is the per-run log file name created under logs/.
func RunLogName(start time.Time) string {
	return "log.sherlock." + start.Format("2006-01-02T15-04-05") + ".txt"
}

// AttachFile tees a debug-level file core into logger. The returned function
// syncs and closes the file.
func AttachFile(logger *zap.Logger, path string) (*zap.Logger, func() error, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to create log directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unable to open log file %s", path)
	}
	fileCore := zapcore.NewCore(fileEncoder(), zapcore.Lock(file), zapcore.DebugLevel)
	teed := logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	closeFn := func() error {
		_ = teed.Sync()

		return file.Close()
	}

	return teed, closeFn, nil
}
