package connection

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// State identifies a slot's position in its lifecycle.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateShutDown   State = "shutdown"
)

// Sentinel errors.
var (
	ErrNotConnected  = errors.New("websocket not connected")
	ErrAlreadyClosed = errors.New("client already closed")
	ErrMissingToken  = errors.New("no access token configured")
)

// Message is a raw inbound frame with its receive timestamp.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
}

// pingFrame is the heartbeat sent while a connection is open.
var pingFrame = []byte(`{"type":"PING"}`)

// pointsFrame is the subset of server frame fields this core interprets.
// Both fields must be present and numeric for a frame to count as an
// authoritative points update; everything else passes through untouched.
type pointsFrame struct {
	PointsTotal *float64 `json:"pointsTotal"`
	PointsToday *float64 `json:"pointsToday"`
}

// ClientConfig holds per-connection websocket settings.
type ClientConfig struct {
	URL              string        // full ws URL including credentials query
	Proxy            *url.URL      // optional forward proxy tunnel
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	BufferSize       int

	// OnPing is invoked after each successful heartbeat send.
	OnPing func(time.Time)
}

// BuildURL assembles the service connection URL from its parts:
// wss://<host>/websocket?accessToken=<urlencoded token>&version=<version>.
func BuildURL(base, token, version string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse service URL: %w", err)
	}

	u.Path = "/websocket"
	q := url.Values{}
	q.Set("accessToken", token)
	q.Set("version", version)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
