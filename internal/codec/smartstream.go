package codec

import (
	"encoding/binary"
	"strconv"
	"time"

	"signal_engine/internal/models"
)

const (
	smartModeLTP   = 1
	smartModeQuote = 2
	smartModeSnap  = 3
)

type smartLayout struct {
	Mode       int
	Exchange   int
	Token      int
	TokenLen   int
	ExchangeTS int
	LastPrice  int
	Open       int
	High       int
	Low        int
	Close      int
	Volume     int
}

var smartStream = smartLayout{
	Mode:       0,
	Exchange:   1,
	Token:      2,
	TokenLen:   25,
	ExchangeTS: 35,
	LastPrice:  43,
	Open:       51,
	High:       59,
	Low:        67,
	Close:      75,
	Volume:     83,
}

// SmartStreamKey — ключ инструмента в том же виде, что и в подписке: "exchangeType|token".
func SmartStreamKey(exchange uint8, token string) string {
	return strconv.Itoa(int(exchange)) + "|" + token
}

func decodeSmartStream(f Frame) []models.Tick {
	if IsJSON(f) || len(f.Data) == 0 {
		return nil
	}
	t, err := decodeSmartPacket(f.Data, f.ReceivedAt)
	if err != nil {
		return nil
	}
	return []models.Tick{t}
}

func decodeSmartPacket(p []byte, received time.Time) (models.Tick, error) {
	l := smartStream
	r := &reader{b: p, order: binary.LittleEndian}

	mode := r.u8(l.Mode)
	exch := r.u8(l.Exchange)
	token := r.str(l.Token, l.TokenLen)
	tsMillis := r.i64(l.ExchangeTS)

	t := models.Tick{
		InstrumentKey: SmartStreamKey(exch, token),
		Price:         r.f64(l.LastPrice),
	}
	if mode == smartModeQuote || mode == smartModeSnap {
		t.Open = r.f64(l.Open)
		t.High = r.f64(l.High)
		t.Low = r.f64(l.Low)
		t.Close = r.f64(l.Close)
		t.Volume = float64(r.i64(l.Volume))
	}
	if r.err != nil {
		return models.Tick{}, r.err
	}
	if token == "" {
		return models.Tick{}, ErrUnknownLayout
	}
	t.Timestamp = exchangeTime(time.UnixMilli(tsMillis), tsMillis > 0, received)
	fillOHLC(&t)
	return t, nil
}
