package common

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	confLoggerLevel      = "tcputils.log.level"
	confLoggerFormat     = "tcputils.log.format"
	confLoggerFile       = "tcputils.log.file"
	confLoggerMaxSize    = "tcputils.log.rotate.max.size.mb"
	confLoggerMaxBackups = "tcputils.log.rotate.max.backups"
)

const (
	defaultLoggerLevel      = "info"
	defaultLoggerFormat     = "console"
	defaultLoggerMaxSize    = 50
	defaultLoggerMaxBackups = 3
)

func FormatLogger(logger Logger, format fmt.Stringer, args ...interface{}) Logger {
	return NewFormattedLogger(logger, format, args...)
}

type Logger interface {
	Debug(string, ...interface{})
	Info(string, ...interface{})
	Error(string, ...interface{})
}

type LoggerLevel int

const (
	Error LoggerLevel = iota
	Info
	Debug
)

func ParseLoggerLevel(str string) LoggerLevel {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "debug":
		return Debug
	case "error":
		return Error
	default:
		return Info
	}
}

func (l LoggerLevel) zap() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type standardLogger struct {
	raw *zap.SugaredLogger
}

// Builds the default logger from config.  Output goes to stderr unless
// a log file is configured, in which case the file is rotated by size.
func NewStandardLogger(c Config) Logger {
	level := ParseLoggerLevel(c.OptionalString(confLoggerLevel, defaultLoggerLevel))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.ToLower(c.OptionalString(confLoggerFormat, defaultLoggerFormat)) == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var out zapcore.WriteSyncer
	if file := c.OptionalString(confLoggerFile, ""); file != "" {
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    c.OptionalInt(confLoggerMaxSize, defaultLoggerMaxSize),
			MaxBackups: c.OptionalInt(confLoggerMaxBackups, defaultLoggerMaxBackups),
		})
	} else {
		out = zapcore.Lock(os.Stderr)
	}

	return NewZapLogger(zap.New(zapcore.NewCore(enc, out, level.zap())))
}

func NewZapLogger(z *zap.Logger) Logger {
	return &standardLogger{z.Sugar()}
}

func NewNopLogger() Logger {
	return NewZapLogger(zap.NewNop())
}

func (s *standardLogger) Debug(format string, vals ...interface{}) {
	s.raw.Debugf(format, vals...)
}

func (s *standardLogger) Info(format string, vals ...interface{}) {
	s.raw.Infof(format, vals...)
}

func (s *standardLogger) Error(format string, vals ...interface{}) {
	s.raw.Errorf(format, vals...)
}

type formattedLogger struct {
	log Logger
	fmt string
}

func NewFormattedLogger(base Logger, format fmt.Stringer, vals ...interface{}) Logger {
	prefix := fmt.Sprintf(format.String(), vals...)
	return &formattedLogger{base, strings.ReplaceAll(prefix, "%", "%%")}
}

func (s *formattedLogger) Debug(format string, vals ...interface{}) {
	s.log.Debug(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) Info(format string, vals ...interface{}) {
	s.log.Info(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) Error(format string, vals ...interface{}) {
	s.log.Error(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}
