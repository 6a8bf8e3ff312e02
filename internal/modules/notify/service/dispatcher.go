package service

import (
	"context"
	"errors"
	"fmt"

	"signal_engine/internal/models"
)

// Channel: один канал уведомлений.
type Channel interface {
	Name() string
	Notify(ctx context.Context, env models.SignalEnvelope) error
}

// Dispatcher отдаёт сигнал всем каналам; отказ одного не мешает остальным.
type Dispatcher struct {
	channels []Channel
}

func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels}
}

func (d *Dispatcher) Name() string { return "notify" }

func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		out = append(out, c.Name())
	}
	return out
}

func (d *Dispatcher) Handle(ctx context.Context, env models.SignalEnvelope) error {
	var errs []error
	for _, c := range d.channels {
		if err := c.Notify(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
