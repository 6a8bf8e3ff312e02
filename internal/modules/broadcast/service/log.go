package service

import (
	"context"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"signal_engine/internal/models"
)

// Log: рассылка без брокера сообщений: сигнал пишется в лог одной строкой.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Name() string { return "broadcast-log" }

func (l *Log) Handle(_ context.Context, env models.SignalEnvelope) error {
	data, err := sonic.MarshalString(NewSignalMessage(env))
	if err != nil {
		return err
	}
	l.log.Info("signal broadcast", zap.String("payload", data))
	return nil
}
