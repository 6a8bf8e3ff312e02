package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"signal_engine/internal/models"
)

// Manager держит по воркеру на брокера и общий поток тиков.
// Мьютекс защищает только реестр воркеров.
type Manager struct {
	dialer Dialer
	log    *zap.Logger

	ticks  chan models.Tick
	events chan models.ConnEvent

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[models.BrokerName]*Worker
	wg      sync.WaitGroup
}

func NewManager(dialer Dialer, tickBuffer int, log *zap.Logger) *Manager {
	if tickBuffer <= 0 {
		tickBuffer = 8192
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dialer:  dialer,
		log:     log,
		ticks:   make(chan models.Tick, tickBuffer),
		events:  make(chan models.ConnEvent, 256),
		ctx:     ctx,
		cancel:  cancel,
		workers: map[models.BrokerName]*Worker{},
	}
}

func (m *Manager) Ticks() <-chan models.Tick { return m.ticks }

func (m *Manager) Events() <-chan models.ConnEvent { return m.events }

// Connect запускает воркер брокера. Повторный вызов для живого воркера
// только обновляет креды.
func (m *Manager) Connect(ctx context.Context, adapter Adapter, creds models.BrokerCredentials, cfg WorkerConfig) error {
	name := adapter.Name()

	m.mu.Lock()
	if w, ok := m.workers[name]; ok {
		select {
		case <-w.Done():
		default:
			m.mu.Unlock()
			return w.Refresh(ctx, creds)
		}
	}
	w := NewWorker(adapter, m.dialer, creds, cfg, m.ticks, m.events, m.log)
	m.workers[name] = w
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		w.Run(m.ctx)
	}()
	return nil
}

func (m *Manager) worker(name models.BrokerName) (*Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s not connected", ErrUnknownBroker, name)
	}
	return w, nil
}

func (m *Manager) Subscribe(ctx context.Context, name models.BrokerName, keys []string) error {
	w, err := m.worker(name)
	if err != nil {
		return err
	}
	return w.Subscribe(ctx, keys)
}

func (m *Manager) Unsubscribe(ctx context.Context, name models.BrokerName, keys []string) error {
	w, err := m.worker(name)
	if err != nil {
		return err
	}
	return w.Unsubscribe(ctx, keys)
}

func (m *Manager) Refresh(ctx context.Context, creds models.BrokerCredentials) error {
	w, err := m.worker(creds.Broker)
	if err != nil {
		return err
	}
	return w.Refresh(ctx, creds)
}

// Stop останавливает воркер брокера и забывает его подписки.
func (m *Manager) Stop(ctx context.Context, name models.BrokerName) error {
	w, err := m.worker(name)
	if err != nil {
		return err
	}
	if err := w.Stop(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	if m.workers[name] == w {
		delete(m.workers, name)
	}
	m.mu.Unlock()
	return nil
}

// Sync приводит подписки брокера к keys.
func (m *Manager) Sync(ctx context.Context, name models.BrokerName, keys []string) error {
	w, err := m.worker(name)
	if err != nil {
		return err
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var stale []string
	for _, k := range w.Connection().Subscriptions {
		if _, ok := want[k]; !ok {
			stale = append(stale, k)
		}
		delete(want, k)
	}
	if len(stale) > 0 {
		if err := w.Unsubscribe(ctx, stale); err != nil {
			return err
		}
	}
	if len(want) == 0 {
		return nil
	}
	fresh := make([]string, 0, len(want))
	for k := range want {
		fresh = append(fresh, k)
	}
	sort.Strings(fresh)
	return w.Subscribe(ctx, fresh)
}

func (m *Manager) States() []models.Connection {
	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	out := make([]models.Connection, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Connection())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Broker < out[j].Broker })
	return out
}

// Close останавливает всех воркеров и ждёт их выхода.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = map[models.BrokerName]*Worker{}
	m.mu.Unlock()

	for _, w := range workers {
		if err := w.Stop(ctx); err != nil {
			m.log.Warn("stop broker", zap.String("broker", string(w.Broker())), zap.Error(err))
		}
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
