package service

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"

	"signal_engine/internal/codec"
	"signal_engine/internal/helper"
	"signal_engine/internal/models"
)

const (
	smartDefaultURL = "wss://smartapisocket.angelone.in/smart-stream"

	smartActionUnsubscribe = 0
	smartActionSubscribe   = 1
	smartModeSnapQuote     = 3
)

type smartAdapter struct {
	url string
}

type smartRequest struct {
	CorrelationID string      `json:"correlationID"`
	Action        int         `json:"action"`
	Params        smartParams `json:"params"`
}

type smartParams struct {
	Mode      int           `json:"mode"`
	TokenList []smartTokens `json:"tokenList"`
}

type smartTokens struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

func newSmartAdapter(baseURL string) *smartAdapter {
	return &smartAdapter{url: orDefault(baseURL, smartDefaultURL)}
}

func (a *smartAdapter) Name() models.BrokerName  { return models.BrokerAngelOne }
func (a *smartAdapter) Protocol() codec.Protocol { return codec.ProtocolSmartStream }
func (a *smartAdapter) Heartbeat() []byte        { return []byte("ping") }

// креды SmartStream передаются заголовками
func (a *smartAdapter) Endpoint(c models.BrokerCredentials) (string, http.Header, error) {
	if c.AccessToken == "" || c.APIKey == "" || c.ClientCode == "" || c.FeedToken == "" {
		return "", nil, fmt.Errorf("%w: angelone needs access_token, api_key, client_code and feed_token", ErrMissingCredentials)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.AccessToken)
	h.Set("x-api-key", c.APIKey)
	h.Set("x-client-code", c.ClientCode)
	h.Set("x-feed-token", c.FeedToken)
	return a.url, h, nil
}

func (a *smartAdapter) Handshake(models.BrokerCredentials) ([][]byte, error) { return nil, nil }

func (a *smartAdapter) Subscribe(keys []string) ([][]byte, error) {
	return a.request(smartActionSubscribe, keys)
}

func (a *smartAdapter) Unsubscribe(keys []string) ([][]byte, error) {
	return a.request(smartActionUnsubscribe, keys)
}

func (a *smartAdapter) ValidKey(key string) error {
	_, _, err := smartKey(key)
	return err
}

func smartKey(key string) (int, string, error) {
	exch, token, ok := helper.SplitKey(key)
	if !ok {
		return 0, "", fmt.Errorf("%w: smartstream key %q, want exchangeType|token", ErrInvalidKey, key)
	}
	et, err := strconv.Atoi(exch)
	if err != nil {
		return 0, "", fmt.Errorf("%w: smartstream key %q: %v", ErrInvalidKey, key, err)
	}
	return et, token, nil
}

// ключи вида "exchangeType|token" группируются по бирже
func (a *smartAdapter) request(action int, keys []string) ([][]byte, error) {
	byExchange := map[int][]string{}
	for _, k := range keys {
		et, token, err := smartKey(k)
		if err != nil {
			return nil, err
		}
		byExchange[et] = append(byExchange[et], token)
	}
	exchanges := make([]int, 0, len(byExchange))
	for et := range byExchange {
		exchanges = append(exchanges, et)
	}
	sort.Ints(exchanges)

	req := smartRequest{
		CorrelationID: "signal-engine",
		Action:        action,
		Params:        smartParams{Mode: smartModeSnapQuote},
	}
	for _, et := range exchanges {
		req.Params.TokenList = append(req.Params.TokenList, smartTokens{ExchangeType: et, Tokens: byExchange[et]})
	}
	msg, err := sonic.Marshal(req)
	if err != nil {
		return nil, err
	}
	return [][]byte{msg}, nil
}
