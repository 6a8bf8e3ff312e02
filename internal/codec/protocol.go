// Package codec декодирует кадры брокерских фидов в канонические тики.
// Функции чистые: состояние не хранят, время получения приходит снаружи.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"signal_engine/internal/models"
)

type Protocol int

const (
	ProtocolKite Protocol = iota + 1
	ProtocolSmartStream
	ProtocolJSON
)

var (
	ErrShortPacket     = errors.New("codec: field past end of packet")
	ErrUnknownProtocol = errors.New("codec: unknown protocol")
	ErrUnknownLayout   = errors.New("codec: unknown packet layout")
)

// минимальный год, с которого биржевому времени можно верить
const minExchangeYear = 2020

// Frame — сообщение в том виде, в каком пришло из сокета.
type Frame struct {
	Text       bool
	Data       []byte
	ReceivedAt time.Time
}

type decodeFunc func(f Frame) []models.Tick

type descriptor struct {
	name   string
	decode decodeFunc
}

var descriptors = map[Protocol]descriptor{
	ProtocolKite:        {name: "kite", decode: decodeKite},
	ProtocolSmartStream: {name: "smartstream", decode: decodeSmartStream},
	ProtocolJSON:        {name: "json", decode: decodeJSONFeed},
}

func (p Protocol) String() string {
	if d, ok := descriptors[p]; ok {
		return d.name
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

func ParseProtocol(s string) (Protocol, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, d := range descriptors {
		if d.name == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

// Decode никогда не паникует: неизвестный протокол или битый кадр дают nil.
func Decode(p Protocol, f Frame) []models.Tick {
	d, ok := descriptors[p]
	if !ok {
		return nil
	}
	return d.decode(f)
}

// IsJSON — текстовый кадр или бинарный, начинающийся с '{' / '['.
func IsJSON(f Frame) bool {
	if f.Text {
		return true
	}
	for _, c := range f.Data {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

// reader читает поля по смещениям и запоминает первый выход за границу.
type reader struct {
	b     []byte
	order binary.ByteOrder
	err   error
}

func (r *reader) check(off, size int) bool {
	if r.err != nil {
		return false
	}
	if off < 0 || off+size > len(r.b) {
		r.err = fmt.Errorf("%w: offset %d size %d len %d", ErrShortPacket, off, size, len(r.b))
		return false
	}
	return true
}

func (r *reader) u8(off int) uint8 {
	if !r.check(off, 1) {
		return 0
	}
	return r.b[off]
}

func (r *reader) i32(off int) int32 {
	if !r.check(off, 4) {
		return 0
	}
	return int32(r.order.Uint32(r.b[off:]))
}

func (r *reader) u32(off int) uint32 {
	if !r.check(off, 4) {
		return 0
	}
	return r.order.Uint32(r.b[off:])
}

func (r *reader) i64(off int) int64 {
	if !r.check(off, 8) {
		return 0
	}
	return int64(r.order.Uint64(r.b[off:]))
}

func (r *reader) f64(off int) float64 {
	if !r.check(off, 8) {
		return 0
	}
	return math.Float64frombits(r.order.Uint64(r.b[off:]))
}

func (r *reader) str(off, size int) string {
	if !r.check(off, size) {
		return ""
	}
	return strings.TrimRight(string(r.b[off:off+size]), "\x00 ")
}

// exchangeTime возвращает биржевое время, если оно правдоподобно, иначе время получения.
func exchangeTime(ts time.Time, ok bool, received time.Time) time.Time {
	if ok && ts.Year() >= minExchangeYear {
		return ts.UTC()
	}
	return received
}

// fillOHLC подставляет последнюю цену вместо нулевых OHLC.
func fillOHLC(t *models.Tick) {
	if t.Open == 0 {
		t.Open = t.Price
	}
	if t.High == 0 {
		t.High = t.Price
	}
	if t.Low == 0 {
		t.Low = t.Price
	}
	if t.Close == 0 {
		t.Close = t.Price
	}
}
