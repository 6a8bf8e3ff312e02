package models

type BrokerName string

const (
	BrokerZerodha  BrokerName = "zerodha"
	BrokerAngelOne BrokerName = "angelone"
	BrokerUpstox   BrokerName = "upstox"
)

type Instrument struct {
	ID              int64
	Symbol          string
	Exchange        string
	Broker          BrokerName
	SubscriptionKey string // ключ подписки у брокера, он же InstrumentKey в тиках
	Enabled         bool
}

type BrokerCredentials struct {
	Broker      BrokerName
	APIKey      string
	AccessToken string
	ClientCode  string
	FeedToken   string
}
