package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn — то, что воркеру нужно от websocket-соединения. *websocket.Conn подходит как есть.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Conn, *http.Response, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

func NewDialer() Dialer {
	return &wsDialer{d: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 << 10,
		WriteBufferSize:  4 << 10,
	}}
}

func (w *wsDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, *http.Response, error) {
	c, resp, err := w.d.DialContext(ctx, url, header)
	if err != nil {
		return nil, resp, err
	}
	return c, resp, nil
}
