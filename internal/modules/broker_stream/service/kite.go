package service

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"

	"signal_engine/internal/codec"
	"signal_engine/internal/models"
)

const kiteDefaultURL = "wss://ws.kite.trade"

type kiteAdapter struct {
	url string
}

type kiteMessage struct {
	A string `json:"a"`
	V any    `json:"v"`
}

func newKiteAdapter(baseURL string) *kiteAdapter {
	return &kiteAdapter{url: orDefault(baseURL, kiteDefaultURL)}
}

func (a *kiteAdapter) Name() models.BrokerName  { return models.BrokerZerodha }
func (a *kiteAdapter) Protocol() codec.Protocol { return codec.ProtocolKite }
func (a *kiteAdapter) Heartbeat() []byte        { return nil }

// креды Kite передаются в query
func (a *kiteAdapter) Endpoint(c models.BrokerCredentials) (string, http.Header, error) {
	if c.APIKey == "" || c.AccessToken == "" {
		return "", nil, fmt.Errorf("%w: zerodha needs api_key and access_token", ErrMissingCredentials)
	}
	u, err := url.Parse(a.url)
	if err != nil {
		return "", nil, fmt.Errorf("kite url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.APIKey)
	q.Set("access_token", c.AccessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil, nil
}

func (a *kiteAdapter) Handshake(models.BrokerCredentials) ([][]byte, error) { return nil, nil }

// Subscribe: подписка и затем режим full, иначе Kite шлёт только LTP.
func (a *kiteAdapter) Subscribe(keys []string) ([][]byte, error) {
	tokens, err := kiteTokens(keys)
	if err != nil {
		return nil, err
	}
	sub, err := sonic.Marshal(kiteMessage{A: "subscribe", V: tokens})
	if err != nil {
		return nil, err
	}
	mode, err := sonic.Marshal(kiteMessage{A: "mode", V: []any{"full", tokens}})
	if err != nil {
		return nil, err
	}
	return [][]byte{sub, mode}, nil
}

func (a *kiteAdapter) Unsubscribe(keys []string) ([][]byte, error) {
	tokens, err := kiteTokens(keys)
	if err != nil {
		return nil, err
	}
	msg, err := sonic.Marshal(kiteMessage{A: "unsubscribe", V: tokens})
	if err != nil {
		return nil, err
	}
	return [][]byte{msg}, nil
}

func (a *kiteAdapter) ValidKey(key string) error {
	_, err := kiteToken(key)
	return err
}

func kiteToken(key string) (uint32, error) {
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: kite instrument token %q: %v", ErrInvalidKey, key, err)
	}
	return uint32(n), nil
}

func kiteTokens(keys []string) ([]uint32, error) {
	out := make([]uint32, 0, len(keys))
	for _, k := range keys {
		n, err := kiteToken(k)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
