package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_engine/internal/metrics"
	"signal_engine/internal/modules/config"
	"signal_engine/internal/modules/health/service"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func NewRouter(state *service.State) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		var lastTick int64
		if t := state.LastTick(); !t.IsZero() {
			lastTick = t.Unix()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ready":        state.Ready(),
			"uptimeSec":    int64(state.Uptime().Seconds()),
			"lastTickUnix": lastTick,
			"brokers":      state.Brokers(),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/brokers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state.Brokers())
	}).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, router *mux.Router, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Health.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Health.Addr)
			if err != nil {
				return err
			}
			log.Info("health server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("health server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewRouter,
		),
		fx.Invoke(RunHTTP),
	)
}
