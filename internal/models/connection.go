package models

import "time"

type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
	ConnFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "DISCONNECTED"
	case ConnConnecting:
		return "CONNECTING"
	case ConnConnected:
		return "CONNECTED"
	case ConnReconnecting:
		return "RECONNECTING"
	case ConnFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Connection — снимок состояния соединения одного брокера.
type Connection struct {
	Broker           BrokerName
	State            ConnState
	Subscriptions    []string
	ReconnectAttempt int
}

type ConnEventKind string

const (
	EventConnected       ConnEventKind = "connected"
	EventDisconnected    ConnEventKind = "disconnected"
	EventReconnecting    ConnEventKind = "reconnecting"
	EventAuthFailed      ConnEventKind = "auth_failed"
	EventReconnectFailed ConnEventKind = "reconnect_failed"
	EventStopped         ConnEventKind = "stopped"
)

type ConnEvent struct {
	Broker  BrokerName
	Kind    ConnEventKind
	State   ConnState
	Attempt int
	Err     error
	At      time.Time
}

// Terminal — после такого события брокер сам больше не переподключится.
func (e ConnEvent) Terminal() bool {
	return e.Kind == EventAuthFailed || e.Kind == EventReconnectFailed
}
