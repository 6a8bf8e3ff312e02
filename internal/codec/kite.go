package codec

import (
	"encoding/binary"
	"sort"
	"strconv"
	"time"

	"signal_engine/internal/models"
)

const absent = -1

// kiteLayout — смещения полей пакета Kite. absent = поля нет в этом режиме.
type kiteLayout struct {
	Length     int
	Token      int
	LastPrice  int
	Volume     int
	Open       int
	High       int
	Low        int
	Close      int
	ExchangeTS int
}

var kiteLayouts = []kiteLayout{
	{Length: 8, Token: 0, LastPrice: 4, Volume: absent, Open: absent, High: absent, Low: absent, Close: absent, ExchangeTS: absent},
	// индексы: quote и full
	{Length: 28, Token: 0, LastPrice: 4, High: 8, Low: 12, Open: 16, Close: 20, Volume: absent, ExchangeTS: absent},
	{Length: 32, Token: 0, LastPrice: 4, High: 8, Low: 12, Open: 16, Close: 20, Volume: absent, ExchangeTS: 28},
	{Length: 44, Token: 0, LastPrice: 4, Volume: 16, Open: 28, High: 32, Low: 36, Close: 40, ExchangeTS: absent},
	{Length: 184, Token: 0, LastPrice: 4, Volume: 16, Open: 28, High: 32, Low: 36, Close: 40, ExchangeTS: 60},
}

func init() {
	sort.Slice(kiteLayouts, func(i, j int) bool { return kiteLayouts[i].Length < kiteLayouts[j].Length })
}

// kiteLayoutFor берёт самый длинный известный макет, помещающийся в пакет.
func kiteLayoutFor(n int) (kiteLayout, bool) {
	for i := len(kiteLayouts) - 1; i >= 0; i-- {
		if kiteLayouts[i].Length <= n {
			return kiteLayouts[i], true
		}
	}
	return kiteLayout{}, false
}

// сегмент лежит в младшем байте токена
const (
	kiteSegmentCDS = 3
	kiteSegmentBCD = 6
)

func kiteDivisor(token uint32) float64 {
	switch token & 0xff {
	case kiteSegmentCDS:
		return 10_000_000
	case kiteSegmentBCD:
		return 10_000
	default:
		return 100
	}
}

func decodeKite(f Frame) []models.Tick {
	if IsJSON(f) {
		return nil
	}
	b := f.Data
	// 1 байт — heartbeat
	if len(b) < 2 {
		return nil
	}
	count := int(binary.BigEndian.Uint16(b))
	off := 2
	out := make([]models.Tick, 0, count)
	for i := 0; i < count; i++ {
		if off+2 > len(b) {
			break
		}
		n := int(binary.BigEndian.Uint16(b[off:]))
		off += 2
		end := off + n
		if end > len(b) {
			// пакет обрезан, дальше выравнивать нечего
			break
		}
		if t, err := decodeKitePacket(b[off:end], f.ReceivedAt); err == nil {
			out = append(out, t)
		}
		off = end
	}
	return out
}

func decodeKitePacket(p []byte, received time.Time) (models.Tick, error) {
	l, ok := kiteLayoutFor(len(p))
	if !ok {
		return models.Tick{}, ErrUnknownLayout
	}
	r := &reader{b: p, order: binary.BigEndian}
	token := r.u32(l.Token)
	div := kiteDivisor(token)
	price := func(off int) float64 {
		if off == absent {
			return 0
		}
		return float64(r.i32(off)) / div
	}

	t := models.Tick{
		InstrumentKey: strconv.FormatUint(uint64(token), 10),
		Price:         price(l.LastPrice),
		Open:          price(l.Open),
		High:          price(l.High),
		Low:           price(l.Low),
		Close:         price(l.Close),
	}
	if l.Volume != absent {
		t.Volume = float64(r.u32(l.Volume))
	}
	var ts time.Time
	if l.ExchangeTS != absent {
		ts = time.Unix(int64(r.u32(l.ExchangeTS)), 0)
	}
	if r.err != nil {
		return models.Tick{}, r.err
	}
	t.Timestamp = exchangeTime(ts, l.ExchangeTS != absent, received)
	fillOHLC(&t)
	return t, nil
}
