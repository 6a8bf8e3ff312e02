package codec

import (
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"signal_engine/internal/models"
)

type jsonEnvelope struct {
	Type  string                  `json:"type"`
	Feeds map[string]jsonFeedItem `json:"feeds"`
}

type jsonFeedItem struct {
	LTP    float64 `json:"ltp"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	TS     int64   `json:"ts"` // ms
}

const jsonFeedType = "feed"

func decodeJSONFeed(f Frame) []models.Tick {
	if !IsJSON(f) {
		return nil
	}
	var env jsonEnvelope
	if err := sonic.Unmarshal(f.Data, &env); err != nil {
		return nil
	}
	if env.Type != jsonFeedType || len(env.Feeds) == 0 {
		return nil
	}

	keys := make([]string, 0, len(env.Feeds))
	for k := range env.Feeds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.Tick, 0, len(keys))
	for _, k := range keys {
		it := env.Feeds[k]
		if it.LTP <= 0 {
			continue
		}
		t := models.Tick{
			InstrumentKey: k,
			Price:         it.LTP,
			Open:          it.Open,
			High:          it.High,
			Low:           it.Low,
			Close:         it.Close,
			Volume:        it.Volume,
			Timestamp:     exchangeTime(time.UnixMilli(it.TS), it.TS > 0, f.ReceivedAt),
		}
		fillOHLC(&t)
		out = append(out, t)
	}
	return out
}
