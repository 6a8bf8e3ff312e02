package service

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"signal_engine/internal/codec"
	"signal_engine/internal/helper"
	"signal_engine/internal/models"
)

const upstoxDefaultURL = "wss://api.upstox.com/v2/feed/market-data-feed"

type upstoxAdapter struct {
	url string
}

type upstoxRequest struct {
	GUID   string `json:"guid"`
	Method string `json:"method"`
	Data   any    `json:"data"`
}

type upstoxAuth struct {
	APIKey      string `json:"apiKey"`
	AccessToken string `json:"accessToken"`
}

type upstoxSub struct {
	Mode           string   `json:"mode"`
	InstrumentKeys []string `json:"instrumentKeys"`
}

func newUpstoxAdapter(baseURL string) *upstoxAdapter {
	return &upstoxAdapter{url: orDefault(baseURL, upstoxDefaultURL)}
}

func (a *upstoxAdapter) Name() models.BrokerName  { return models.BrokerUpstox }
func (a *upstoxAdapter) Protocol() codec.Protocol { return codec.ProtocolJSON }
func (a *upstoxAdapter) Heartbeat() []byte        { return nil }

func (a *upstoxAdapter) Endpoint(c models.BrokerCredentials) (string, http.Header, error) {
	if c.AccessToken == "" {
		return "", nil, fmt.Errorf("%w: upstox needs access_token", ErrMissingCredentials)
	}
	return a.url, nil, nil
}

// креды Upstox уходят первым сообщением после подключения
func (a *upstoxAdapter) Handshake(c models.BrokerCredentials) ([][]byte, error) {
	msg, err := sonic.Marshal(upstoxRequest{
		GUID:   uuid.NewString(),
		Method: "auth",
		Data:   upstoxAuth{APIKey: c.APIKey, AccessToken: c.AccessToken},
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{msg}, nil
}

// ключ Upstox: "SEGMENT|ISIN", например NSE_EQ|INE002A01018
func (a *upstoxAdapter) ValidKey(key string) error {
	_, _, ok := helper.SplitKey(key)
	if !ok {
		return fmt.Errorf("%w: upstox instrument key %q, want segment|isin", ErrInvalidKey, key)
	}
	return nil
}

func (a *upstoxAdapter) Subscribe(keys []string) ([][]byte, error) {
	return a.request("sub", keys)
}

func (a *upstoxAdapter) Unsubscribe(keys []string) ([][]byte, error) {
	return a.request("unsub", keys)
}

func (a *upstoxAdapter) request(method string, keys []string) ([][]byte, error) {
	msg, err := sonic.Marshal(upstoxRequest{
		GUID:   uuid.NewString(),
		Method: method,
		Data:   upstoxSub{Mode: "full", InstrumentKeys: keys},
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{msg}, nil
}
