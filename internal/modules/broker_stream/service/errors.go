package service

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	ErrAuth               = errors.New("broker: authentication rejected")
	ErrReconnectExhausted = errors.New("broker: reconnect attempts exhausted")
	ErrStopped            = errors.New("broker: worker stopped")
	ErrMissingCredentials = errors.New("broker: credentials incomplete")
	ErrUnknownBroker      = errors.New("broker: unknown broker")
	ErrInvalidKey         = errors.New("broker: invalid subscription key")
)

// коды закрытия, которыми брокеры отвечают на плохой токен
var authCloseCodes = map[int]bool{
	4001:                           true,
	4003:                           true,
	websocket.ClosePolicyViolation: true,
}

var authHints = []string{"unauthori", "forbidden", "token", "auth", "expired", "invalid api key", "401", "403"}

func authFlavored(msg string) bool {
	msg = strings.ToLower(msg)
	for _, h := range authHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

// isAuthFailure отличает отказ в доступе от обычного обрыва. resp — ответ на
// handshake, есть только при ошибке dial.
func isAuthFailure(err error, resp *http.Response) bool {
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrMissingCredentials) {
		return true
	}
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if authCloseCodes[ce.Code] {
			return true
		}
		if ce.Code == websocket.CloseAbnormalClosure {
			return authFlavored(ce.Text)
		}
	}
	return false
}
