package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// New собирает production-логгер с полем service и делает его глобальным
// для printf-хелперов ниже.
func New(service, level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("logger: bad level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		return nil, err
	}

	SetServiceName(service)
	InfoLogger = log
	FatalLogger = log
	return log, nil
}

func Info(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	InfoLogger.Info(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	InfoLogger.Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	if FatalLogger == nil {
		panic("FatalLogger is not initialized")
	}

	FatalLogger.Fatal(fmt.Sprintf(format, args...))
}
