package service

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_engine/internal/codec"
	"signal_engine/internal/models"
)

func TestNewAdapter(t *testing.T) {
	for _, name := range []models.BrokerName{models.BrokerZerodha, models.BrokerAngelOne, models.BrokerUpstox} {
		a, err := NewAdapter(name, "")
		require.NoError(t, err)
		assert.Equal(t, name, a.Name())
	}
	_, err := NewAdapter("fyers", "")
	assert.ErrorIs(t, err, ErrUnknownBroker)
}

func TestKiteAdapter(t *testing.T) {
	a := newKiteAdapter("ws://127.0.0.1:9000/feed")
	assert.Equal(t, codec.ProtocolKite, a.Protocol())

	url, hdr, err := a.Endpoint(models.BrokerCredentials{APIKey: "key", AccessToken: "tok"})
	require.NoError(t, err)
	assert.Nil(t, hdr)
	assert.Equal(t, "ws://127.0.0.1:9000/feed?access_token=tok&api_key=key", url)

	_, _, err = a.Endpoint(models.BrokerCredentials{APIKey: "key"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	msgs, err := a.Subscribe([]string{"408065", "738561"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"a":"subscribe","v":[408065,738561]}`, string(msgs[0]))
	assert.JSONEq(t, `{"a":"mode","v":["full",[408065,738561]]}`, string(msgs[1]))

	msgs, err = a.Unsubscribe([]string{"408065"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"a":"unsubscribe","v":[408065]}`, string(msgs[0]))

	_, err = a.Subscribe([]string{"NSE:INFY"})
	assert.Error(t, err)
}

func TestSmartAdapter(t *testing.T) {
	a := newSmartAdapter("")
	assert.Equal(t, smartDefaultURL, a.url)
	assert.Equal(t, []byte("ping"), a.Heartbeat())

	creds := models.BrokerCredentials{AccessToken: "jwt", APIKey: "key", ClientCode: "C1", FeedToken: "feed"}
	_, hdr, err := a.Endpoint(creds)
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt", hdr.Get("Authorization"))
	assert.Equal(t, "key", hdr.Get("x-api-key"))
	assert.Equal(t, "C1", hdr.Get("x-client-code"))
	assert.Equal(t, "feed", hdr.Get("x-feed-token"))

	creds.FeedToken = ""
	_, _, err = a.Endpoint(creds)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	msgs, err := a.Subscribe([]string{"2|43210", "1|2885", "1|1594"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var req smartRequest
	require.NoError(t, sonic.Unmarshal(msgs[0], &req))
	assert.Equal(t, smartActionSubscribe, req.Action)
	assert.Equal(t, smartModeSnapQuote, req.Params.Mode)
	assert.Equal(t, []smartTokens{
		{ExchangeType: 1, Tokens: []string{"2885", "1594"}},
		{ExchangeType: 2, Tokens: []string{"43210"}},
	}, req.Params.TokenList)

	msgs, err = a.Unsubscribe([]string{"1|2885"})
	require.NoError(t, err)
	require.NoError(t, sonic.Unmarshal(msgs[0], &req))
	assert.Equal(t, smartActionUnsubscribe, req.Action)

	_, err = a.Subscribe([]string{"2885"})
	assert.Error(t, err)
}

func TestUpstoxAdapter(t *testing.T) {
	a := newUpstoxAdapter("")
	assert.Equal(t, codec.ProtocolJSON, a.Protocol())

	_, _, err := a.Endpoint(models.BrokerCredentials{})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	hello, err := a.Handshake(models.BrokerCredentials{APIKey: "k", AccessToken: "t"})
	require.NoError(t, err)
	require.Len(t, hello, 1)
	var auth struct {
		GUID   string     `json:"guid"`
		Method string     `json:"method"`
		Data   upstoxAuth `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(hello[0], &auth))
	assert.Equal(t, "auth", auth.Method)
	assert.NotEmpty(t, auth.GUID)
	assert.Equal(t, upstoxAuth{APIKey: "k", AccessToken: "t"}, auth.Data)

	msgs, err := a.Subscribe([]string{"NSE_EQ|INE002A01018"})
	require.NoError(t, err)
	var sub struct {
		Method string    `json:"method"`
		Data   upstoxSub `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(msgs[0], &sub))
	assert.Equal(t, "sub", sub.Method)
	assert.Equal(t, upstoxSub{Mode: "full", InstrumentKeys: []string{"NSE_EQ|INE002A01018"}}, sub.Data)

	msgs, err = a.Unsubscribe([]string{"NSE_EQ|INE002A01018"})
	require.NoError(t, err)
	require.NoError(t, sonic.Unmarshal(msgs[0], &sub))
	assert.Equal(t, "unsub", sub.Method)
}

func TestAdapterValidKey(t *testing.T) {
	tests := []struct {
		adapter Adapter
		key     string
		valid   bool
	}{
		{newKiteAdapter(""), "408065", true},
		{newKiteAdapter(""), "NSE:INFY", false},
		{newKiteAdapter(""), "", false},
		{newSmartAdapter(""), "1|2885", true},
		{newSmartAdapter(""), "2885", false},
		{newSmartAdapter(""), "nse|2885", false},
		{newUpstoxAdapter(""), "NSE_EQ|INE002A01018", true},
		{newUpstoxAdapter(""), "INE002A01018", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.adapter.Name())+"/"+tt.key, func(t *testing.T) {
			err := tt.adapter.ValidKey(tt.key)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}
