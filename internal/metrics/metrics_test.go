package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	TicksTotal.WithLabelValues("zerodha").Inc()
	SignalsTotal.WithLabelValues("bullish_above_50", "BUY").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["signal_engine_ticks_total"])
	assert.True(t, names["signal_engine_signals_total"])
}
