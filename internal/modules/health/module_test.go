package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_engine/internal/models"
	"signal_engine/internal/modules/health/service"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadinessFollowsWarmupAndBrokers(t *testing.T) {
	state := service.NewState()
	r := NewRouter(state)

	assert.Equal(t, http.StatusOK, get(t, r, "/livez").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/readyz").Code)

	state.SetReady(true)
	assert.Equal(t, http.StatusOK, get(t, r, "/readyz").Code)

	state.ApplyEvent(models.ConnEvent{Broker: models.BrokerZerodha, Kind: models.EventReconnecting, State: models.ConnReconnecting, Attempt: 2})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/readyz").Code)

	state.ApplyEvent(models.ConnEvent{Broker: models.BrokerZerodha, Kind: models.EventConnected, State: models.ConnConnected})
	assert.Equal(t, http.StatusOK, get(t, r, "/readyz").Code)
}

func TestBrokersEndpoint(t *testing.T) {
	state := service.NewState()
	state.ApplyEvent(models.ConnEvent{
		Broker: models.BrokerUpstox, Kind: models.EventAuthFailed, State: models.ConnFailed,
		Err: errors.New("token expired"), At: time.Unix(1700000000, 0),
	})
	state.ApplyEvent(models.ConnEvent{Broker: models.BrokerAngelOne, Kind: models.EventConnected, State: models.ConnConnected})

	rec := get(t, NewRouter(state), "/brokers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []service.BrokerStatus
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, models.BrokerAngelOne, got[0].Broker)
	assert.Equal(t, "CONNECTED", got[0].State)
	assert.Equal(t, models.BrokerUpstox, got[1].Broker)
	assert.Equal(t, "FAILED", got[1].State)
	assert.Equal(t, "token expired", got[1].LastError)
}

func TestHealthzAndMetrics(t *testing.T) {
	state := service.NewState()
	state.TouchTick(time.Unix(1700000000, 0))
	r := NewRouter(state)

	rec := get(t, r, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1700000000, body["lastTickUnix"])
	assert.Equal(t, false, body["ready"])

	rec = get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "signal_engine_")
}
