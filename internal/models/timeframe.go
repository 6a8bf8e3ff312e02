package models

import (
	"fmt"
	"time"

	"signal_engine/internal/helper"
)

type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF10m Timeframe = "10m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF3m:  3 * time.Minute,
	TF5m:  5 * time.Minute,
	TF10m: 10 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

func ParseTimeframe(raw string) (Timeframe, error) {
	tf := Timeframe(helper.NormTF(raw))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe: %q", raw)
	}
	return tf, nil
}

// Duration возвращает 0 для неизвестного таймфрейма.
func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}
