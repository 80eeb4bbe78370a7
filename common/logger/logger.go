package logger

import (
	"fmt"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	pinLog bool
)

// Verbosity mirrors the persisted log_level setting.
type Verbosity int

const (
	Normal Verbosity = iota
	Verbose
	PinValues
)

type Options struct {
	Verbosity    Verbosity
	LogFile      string
	SupportColor bool
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
}

func newEncoder(supportColor bool) zapcore.Encoder {
	encodeLevel := zapcore.CapitalLevelEncoder
	if supportColor {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      encodeLevel,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	})
}

func newFileCore(opts Options) zapcore.Core {
	logFile := &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   false,
		LocalTime:  true,
	}
	// file output never carries colour escapes
	return zapcore.NewCore(newEncoder(false), zapcore.AddSync(logFile), level)
}

func InitLogger(opts Options) {
	SetVerbosity(opts.Verbosity)
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(opts.SupportColor), zapcore.Lock(os.Stdout), level),
	}
	if opts.LogFile != "" {
		cores = append(cores, newFileCore(opts))
	}
	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetVerbosity can be called at runtime when settings change.
func SetVerbosity(v Verbosity) {
	if v < Normal {
		v = Normal
	}
	if v > PinValues {
		v = PinValues
	}
	if v == Normal {
		level.SetLevel(zapcore.InfoLevel)
	} else {
		level.SetLevel(zapcore.DebugLevel)
	}
	pinLog = v == PinValues
}

func PinLogging() bool {
	return pinLog
}

func Sync() {
	if Logger != nil {
		// stdout sync fails on some terminals, nothing useful to do about it
		_ = Logger.Sync()
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Infof(format, args...)
	}
}

func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Info(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debugf(format, args...)
	}
}

func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debug(args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warnf(format, args...)
	}
}

func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warn(args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Errorf(format, args...)
	}
}

func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Error(args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if Logger != nil {
		Logger.Error(message)
		Logger.Sync()
	} else {
		fmt.Fprintln(os.Stderr, message)
	}
	os.Exit(1)
}
