package service

import (
	"fmt"
	"net/http"

	"signal_engine/internal/codec"
	"signal_engine/internal/models"
)

// Adapter — всё брокер-специфичное: адрес, авторизация и форма
// управляющих сообщений. Сообщения уходят текстовыми кадрами.
type Adapter interface {
	Name() models.BrokerName
	Protocol() codec.Protocol
	Endpoint(creds models.BrokerCredentials) (string, http.Header, error)
	// Handshake — сообщения сразу после подключения (например, авторизация).
	Handshake(creds models.BrokerCredentials) ([][]byte, error)
	// ValidKey проверяет ключ до того, как он попадёт в подписки.
	ValidKey(key string) error
	Subscribe(keys []string) ([][]byte, error)
	Unsubscribe(keys []string) ([][]byte, error)
	// Heartbeat — прикладной пинг; nil значит хватает websocket ping.
	Heartbeat() []byte
}

// NewAdapter; baseURL пустой — адрес брокера по умолчанию.
func NewAdapter(name models.BrokerName, baseURL string) (Adapter, error) {
	switch name {
	case models.BrokerZerodha:
		return newKiteAdapter(baseURL), nil
	case models.BrokerAngelOne:
		return newSmartAdapter(baseURL), nil
	case models.BrokerUpstox:
		return newUpstoxAdapter(baseURL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, name)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
