package service

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"signal_engine/internal/models"
)

// BrokerStatus — последнее, что известно о соединении брокера.
type BrokerStatus struct {
	Broker    models.BrokerName    `json:"broker"`
	State     string               `json:"state"`
	Attempt   int                  `json:"attempt"`
	LastEvent models.ConnEventKind `json:"lastEvent"`
	LastError string               `json:"lastError,omitempty"`
	At        time.Time            `json:"at"`

	connected bool
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	lastTickUnix atomic.Int64 // unix seconds

	mu      sync.RWMutex
	brokers map[models.BrokerName]BrokerStatus
}

func NewState() *State {
	s := &State{startedAt: time.Now(), brokers: map[models.BrokerName]BrokerStatus{}}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }

// Ready: прогрев закончен и хотя бы один брокер на связи (если они есть).
func (s *State) Ready() bool {
	if !s.ready.Load() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.brokers) == 0 {
		return true
	}
	for _, b := range s.brokers {
		if b.connected {
			return true
		}
	}
	return false
}

func (s *State) ApplyEvent(ev models.ConnEvent) {
	st := BrokerStatus{
		Broker:    ev.Broker,
		State:     ev.State.String(),
		Attempt:   ev.Attempt,
		LastEvent: ev.Kind,
		At:        ev.At,
		connected: ev.State == models.ConnConnected,
	}
	if ev.Err != nil {
		st.LastError = ev.Err.Error()
	}
	s.mu.Lock()
	s.brokers[ev.Broker] = st
	s.mu.Unlock()
}

func (s *State) Brokers() []BrokerStatus {
	s.mu.RLock()
	out := make([]BrokerStatus, 0, len(s.brokers))
	for _, b := range s.brokers {
		out = append(out, b)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Broker < out[j].Broker })
	return out
}

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
