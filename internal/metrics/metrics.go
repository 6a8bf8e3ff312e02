package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signal_engine"

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ticks_total", Help: "Decoded ticks per broker"},
		[]string{"broker"},
	)
	TicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ticks_dropped_total", Help: "Ticks dropped on a full channel"},
		[]string{"broker"},
	)
	FramesEmpty = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "frames_without_ticks_total", Help: "Frames that decoded to nothing"},
		[]string{"broker"},
	)
	ConnState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "broker_state", Help: "Broker connection state (0 disconnected .. 4 failed)"},
		[]string{"broker"},
	)
	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reconnects_total", Help: "Reconnect attempts scheduled"},
		[]string{"broker"},
	)
	CandlesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "candles_closed_total", Help: "Closed candles"},
		[]string{"timeframe"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "signals_total", Help: "Emitted signals"},
		[]string{"strategy", "type"},
	)
	SignalsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "signals_dropped_total", Help: "Signals dropped on a full channel"},
	)
	StrategyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "strategy_errors_total", Help: "Strategy evaluation errors"},
		[]string{"strategy"},
	)
	SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sink_errors_total", Help: "Signal sink failures"},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, TicksDropped, FramesEmpty, ConnState, Reconnects,
		CandlesClosed, SignalsTotal, SignalsDropped, StrategyErrors, SinkErrors,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
