package helper

import (
	"strings"
	"time"
)

// NormTF приводит таймфрейм к каноничному виду: "Candle5M" -> "5m", "60m" -> "1h".
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "1", "1min", "1minute", "minute":
		return "1m"
	case "3", "3min":
		return "3m"
	case "5", "5min":
		return "5m"
	case "10", "10min":
		return "10m"
	case "15", "15min":
		return "15m"
	case "30", "30min":
		return "30m"
	case "60", "60m", "60min", "1hour", "hour":
		return "1h"
	case "240m", "4hour":
		return "4h"
	case "1day", "day", "d", "24h":
		return "1d"
	default:
		return s
	}
}

// PeriodStart — floor(ts / d) * d по Unix-времени, в UTC.
func PeriodStart(ts time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return ts
	}
	ns := ts.UnixNano()
	ns -= ns % int64(d)
	if ns > ts.UnixNano() {
		ns -= int64(d)
	}
	return time.Unix(0, ns).UTC()
}

// SplitKey режет "exchange|token" на части.
func SplitKey(key string) (prefix string, rest string, ok bool) {
	i := strings.IndexByte(key, '|')
	if i <= 0 || i >= len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
