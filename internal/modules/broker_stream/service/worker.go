package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signal_engine/internal/codec"
	"signal_engine/internal/metrics"
	"signal_engine/internal/models"
)

const (
	writeWait       = 10 * time.Second
	maxBackoffShift = 16
	readLimit       = 1 << 20
)

type WorkerConfig struct {
	BaseDelay      time.Duration
	MaxAttempts    int
	HealthInterval time.Duration
	PingInterval   time.Duration
	DialTimeout    time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = time.Minute
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// backoff = base * 2^attempt
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return base << uint(attempt)
}

type cmdKind int

const (
	cmdSubscribe cmdKind = iota
	cmdUnsubscribe
	cmdRefresh
	cmdStop
)

type command struct {
	kind  cmdKind
	keys  []string
	creds models.BrokerCredentials
	reply chan error
}

type frame struct {
	conn Conn
	typ  int
	data []byte
	err  error
}

type dialResult struct {
	seq  int
	conn Conn
	err  error
	auth bool
}

// Worker владеет одним соединением брокера. Всё состояние меняет только
// горутина Run; снаружи к нему обращаются командами.
type Worker struct {
	broker  models.BrokerName
	adapter Adapter
	dialer  Dialer
	cfg     WorkerConfig
	log     *zap.Logger

	ticks  chan<- models.Tick
	events chan<- models.ConnEvent
	cmds   chan command
	frames chan frame
	dialed chan dialResult
	done   chan struct{}

	mu   sync.RWMutex
	snap models.Connection

	creds      models.BrokerCredentials
	state      models.ConnState
	attempt    int
	subs       map[string]struct{}
	conn       Conn
	dialSeq    int
	cancelDial context.CancelFunc
	retry      *time.Timer
	runCtx     context.Context
}

func NewWorker(
	adapter Adapter,
	dialer Dialer,
	creds models.BrokerCredentials,
	cfg WorkerConfig,
	ticks chan<- models.Tick,
	events chan<- models.ConnEvent,
	log *zap.Logger,
) *Worker {
	w := &Worker{
		broker:  adapter.Name(),
		adapter: adapter,
		dialer:  dialer,
		cfg:     cfg.withDefaults(),
		log:     log.With(zap.String("broker", string(adapter.Name()))),
		ticks:   ticks,
		events:  events,
		cmds:    make(chan command),
		frames:  make(chan frame),
		dialed:  make(chan dialResult),
		done:    make(chan struct{}),
		creds:   creds,
		subs:    map[string]struct{}{},
		runCtx:  context.Background(),
	}
	w.snap = models.Connection{Broker: w.broker, State: models.ConnDisconnected}
	return w
}

func (w *Worker) Broker() models.BrokerName { return w.broker }

// Done закрывается, когда Run завершился.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) Connection() models.Connection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c := w.snap
	c.Subscriptions = append([]string(nil), w.snap.Subscriptions...)
	return c
}

func (w *Worker) Subscribe(ctx context.Context, keys []string) error {
	return w.send(ctx, command{kind: cmdSubscribe, keys: keys})
}

func (w *Worker) Unsubscribe(ctx context.Context, keys []string) error {
	return w.send(ctx, command{kind: cmdUnsubscribe, keys: keys})
}

// Refresh подменяет креды; из Failed запускает новую серию попыток.
func (w *Worker) Refresh(ctx context.Context, creds models.BrokerCredentials) error {
	return w.send(ctx, command{kind: cmdRefresh, creds: creds})
}

func (w *Worker) Stop(ctx context.Context) error {
	err := w.send(ctx, command{kind: cmdStop})
	if errors.Is(err, ErrStopped) {
		return nil
	}
	return err
}

func (w *Worker) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-w.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run — цикл актора. Возвращается после Stop или отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	w.runCtx = ctx

	health := time.NewTicker(w.cfg.HealthInterval)
	defer health.Stop()
	ping := time.NewTicker(w.cfg.PingInterval)
	defer ping.Stop()

	w.connect(ctx)
	for {
		var retryC <-chan time.Time
		if w.retry != nil {
			retryC = w.retry.C
		}
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case cmd := <-w.cmds:
			if w.handle(ctx, cmd) {
				return
			}
		case res := <-w.dialed:
			w.onDialed(res)
		case f := <-w.frames:
			w.onFrame(f)
		case <-retryC:
			w.retry = nil
			w.connect(ctx)
		case <-health.C:
			w.healthCheck(ctx)
		case <-ping.C:
			w.ping()
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd command) bool {
	switch cmd.kind {
	case cmdSubscribe:
		var (
			added    []string
			rejected []error
		)
		for _, k := range cmd.keys {
			if _, ok := w.subs[k]; ok {
				continue
			}
			// битый ключ не должен сорвать повторную подписку остальных
			if err := w.adapter.ValidKey(k); err != nil {
				w.log.Warn("subscription key rejected", zap.String("key", k), zap.Error(err))
				rejected = append(rejected, err)
				continue
			}
			w.subs[k] = struct{}{}
			added = append(added, k)
		}
		w.publish()
		rejectErr := errors.Join(rejected...)
		if len(added) == 0 || w.state != models.ConnConnected {
			cmd.reply <- rejectErr
			return false
		}
		cmd.reply <- errors.Join(rejectErr, w.sendControl(w.adapter.Subscribe, added))
	case cmdUnsubscribe:
		var removed []string
		for _, k := range cmd.keys {
			if _, ok := w.subs[k]; ok {
				delete(w.subs, k)
				removed = append(removed, k)
			}
		}
		w.publish()
		if len(removed) == 0 || w.state != models.ConnConnected {
			cmd.reply <- nil
			return false
		}
		cmd.reply <- w.sendControl(w.adapter.Unsubscribe, removed)
	case cmdRefresh:
		w.creds = cmd.creds
		if w.state != models.ConnConnected && w.state != models.ConnConnecting {
			w.log.Info("credentials refreshed, reconnecting")
			w.attempt = 0
			w.connect(ctx)
		}
		cmd.reply <- nil
	case cmdStop:
		w.shutdown()
		cmd.reply <- nil
		return true
	}
	return false
}

func (w *Worker) connect(ctx context.Context) {
	w.stopRetry()
	w.abortDial()

	url, header, err := w.adapter.Endpoint(w.creds)
	if err != nil {
		w.fail(models.EventAuthFailed, err)
		return
	}

	w.setState(models.ConnConnecting)
	dctx, cancel := context.WithTimeout(ctx, w.cfg.DialTimeout)
	w.cancelDial = cancel
	w.dialSeq++
	seq := w.dialSeq

	go func() {
		conn, resp, err := w.dialer.DialContext(dctx, url, header)
		res := dialResult{seq: seq, conn: conn, err: err}
		if err != nil {
			res.auth = isAuthFailure(err, resp)
		}
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		select {
		case w.dialed <- res:
		case <-w.done:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (w *Worker) onDialed(res dialResult) {
	if res.seq != w.dialSeq {
		if res.conn != nil {
			_ = res.conn.Close()
		}
		return
	}
	w.abortDial()

	if res.err != nil {
		if res.auth {
			w.fail(models.EventAuthFailed, fmt.Errorf("%w: %v", ErrAuth, res.err))
			return
		}
		w.log.Warn("dial failed", zap.Int("attempt", w.attempt), zap.Error(res.err))
		w.scheduleRetry(res.err)
		return
	}

	conn := res.conn
	conn.SetReadLimit(readLimit)
	timeout := w.readTimeout()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeout))
	})

	hello, err := w.adapter.Handshake(w.creds)
	if err == nil {
		err = writeAll(conn, hello)
	}
	if err != nil {
		_ = conn.Close()
		w.log.Warn("handshake failed", zap.Error(err))
		w.scheduleRetry(err)
		return
	}

	w.conn = conn
	w.attempt = 0
	w.setState(models.ConnConnected)
	w.emit(models.EventConnected, nil)
	w.log.Info("connected", zap.Int("subscriptions", len(w.subs)))
	go w.read(conn)

	// после переподключения подписки восстанавливаются сами
	if keys := w.subscriptions(); len(keys) > 0 {
		if err := w.sendControl(w.adapter.Subscribe, keys); err != nil {
			w.log.Warn("resubscribe failed", zap.Error(err))
		}
	}
}

func (w *Worker) read(conn Conn) {
	timeout := w.readTimeout()
	for {
		typ, data, err := conn.ReadMessage()
		select {
		case w.frames <- frame{conn: conn, typ: typ, data: data, err: err}:
		case <-w.done:
			return
		}
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}
}

func (w *Worker) onFrame(f frame) {
	if f.conn != w.conn {
		return
	}
	if f.err != nil {
		w.onClosed(f.err)
		return
	}
	if f.typ != websocket.TextMessage && f.typ != websocket.BinaryMessage {
		return
	}

	ticks := codec.Decode(w.adapter.Protocol(), codec.Frame{
		Text:       f.typ == websocket.TextMessage,
		Data:       f.data,
		ReceivedAt: time.Now(),
	})
	if len(ticks) == 0 {
		metrics.FramesEmpty.WithLabelValues(string(w.broker)).Inc()
		return
	}
	for _, t := range ticks {
		t.Broker = w.broker
		select {
		case w.ticks <- t:
			metrics.TicksTotal.WithLabelValues(string(w.broker)).Inc()
		default:
			metrics.TicksDropped.WithLabelValues(string(w.broker)).Inc()
		}
	}
}

func (w *Worker) onClosed(err error) {
	w.closeConn()
	w.setState(models.ConnDisconnected)
	w.emit(models.EventDisconnected, err)

	if isAuthFailure(err, nil) {
		w.fail(models.EventAuthFailed, fmt.Errorf("%w: %v", ErrAuth, err))
		return
	}
	w.log.Warn("connection lost", zap.Error(err))
	w.scheduleRetry(err)
}

func (w *Worker) scheduleRetry(cause error) {
	w.closeConn()
	if w.attempt >= w.cfg.MaxAttempts {
		w.fail(models.EventReconnectFailed, fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, w.attempt, cause))
		return
	}
	delay := backoff(w.cfg.BaseDelay, w.attempt)
	w.attempt++
	w.setState(models.ConnReconnecting)
	w.emit(models.EventReconnecting, cause)
	metrics.Reconnects.WithLabelValues(string(w.broker)).Inc()
	w.log.Info("reconnect scheduled", zap.Int("attempt", w.attempt), zap.Duration("delay", delay))
	w.retry = time.NewTimer(delay)
}

// fail — терминальное состояние, выход только через Refresh.
func (w *Worker) fail(kind models.ConnEventKind, err error) {
	w.stopRetry()
	w.abortDial()
	w.closeConn()
	w.setState(models.ConnFailed)
	w.emit(kind, err)
	w.log.Error("broker failed", zap.String("reason", string(kind)), zap.Error(err))
}

func (w *Worker) healthCheck(ctx context.Context) {
	switch w.state {
	case models.ConnDisconnected, models.ConnReconnecting:
		w.log.Info("health check: not connected, reconnecting now", zap.Int("attempt", w.attempt))
		w.attempt = 0
		w.connect(ctx)
	}
}

func (w *Worker) ping() {
	if w.conn == nil || w.state != models.ConnConnected {
		return
	}
	if hb := w.adapter.Heartbeat(); hb != nil {
		_ = writeAll(w.conn, [][]byte{hb})
		return
	}
	// ошибку увидит читатель
	_ = w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *Worker) shutdown() {
	w.stopRetry()
	w.abortDial()
	w.closeConn()
	w.subs = map[string]struct{}{}
	w.attempt = 0
	w.setState(models.ConnDisconnected)
	w.emit(models.EventStopped, nil)
	w.log.Info("stopped")
}

func (w *Worker) sendControl(build func([]string) ([][]byte, error), keys []string) error {
	msgs, err := build(keys)
	if err != nil {
		return err
	}
	if w.conn == nil {
		return nil
	}
	return writeAll(w.conn, msgs)
}

func writeAll(conn Conn, msgs [][]byte) error {
	if len(msgs) == 0 {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, m); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) readTimeout() time.Duration {
	return 3 * w.cfg.PingInterval
}

func (w *Worker) closeConn() {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
}

func (w *Worker) stopRetry() {
	if w.retry != nil {
		w.retry.Stop()
		w.retry = nil
	}
}

// abortDial отменяет dial в полёте; его результат будет отброшен по seq.
func (w *Worker) abortDial() {
	if w.cancelDial != nil {
		w.cancelDial()
		w.cancelDial = nil
		w.dialSeq++
	}
}

func (w *Worker) subscriptions() []string {
	keys := make([]string, 0, len(w.subs))
	for k := range w.subs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (w *Worker) setState(s models.ConnState) {
	w.state = s
	metrics.ConnState.WithLabelValues(string(w.broker)).Set(float64(s))
	w.publish()
}

func (w *Worker) publish() {
	keys := w.subscriptions()
	w.mu.Lock()
	w.snap = models.Connection{
		Broker:           w.broker,
		State:            w.state,
		Subscriptions:    keys,
		ReconnectAttempt: w.attempt,
	}
	w.mu.Unlock()
}

func (w *Worker) emit(kind models.ConnEventKind, err error) {
	ev := models.ConnEvent{
		Broker:  w.broker,
		Kind:    kind,
		State:   w.state,
		Attempt: w.attempt,
		Err:     err,
		At:      time.Now(),
	}
	// терминальное событие не теряем: ждём читателя или остановки
	if ev.Terminal() {
		select {
		case w.events <- ev:
		case <-w.runCtx.Done():
			w.log.Warn("worker stopped before event delivered", zap.String("event", string(kind)))
		}
		return
	}
	select {
	case w.events <- ev:
	default:
		w.log.Warn("event channel full, dropping", zap.String("event", string(kind)))
	}
}
