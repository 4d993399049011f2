package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/model"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// LiveClient follows the server's /ws push channel.
type LiveClient struct {
	wsURL  string
	dialer *websocket.Dialer
	log    *zap.SugaredLogger

	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewLiveClient derives the ws(s):// endpoint from an http(s) server URL.
func NewLiveClient(serverURL string) (*LiveClient, error) {
	wsURL, err := WebSocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &LiveClient{
		wsURL:      wsURL,
		dialer:     websocket.DefaultDialer,
		log:        logging.Named("live"),
		MinBackoff: minBackoff,
		MaxBackoff: maxBackoff,
	}, nil
}

// WebSocketURL maps http://host:port to ws://host:port/ws.
func WebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Subscribe streams new_log records. The connection is re-established with
// exponential backoff after failures; the channel closes once ctx is done.
func (c *LiveClient) Subscribe(ctx context.Context) (<-chan model.LogRecord, error) {
	out := make(chan model.LogRecord, 16)
	go c.loop(ctx, out)
	return out, nil
}

func (c *LiveClient) loop(ctx context.Context, out chan<- model.LogRecord) {
	defer close(out)
	backoff := c.MinBackoff
	for {
		connected, err := c.session(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = c.MinBackoff
		}
		c.log.Warnf("Push channel lost (%v), reconnecting in %s", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

// session runs one connection until it fails. connected reports whether the
// dial succeeded.
func (c *LiveClient) session(ctx context.Context, out chan<- model.LogRecord) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return false, err
	}
	c.log.Infof("Connected to %s", c.wsURL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debugf("Ignoring malformed push message: %v", err)
			continue
		}
		if env.Event != model.EventNewLog {
			continue
		}
		var rec model.LogRecord
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &rec); err != nil {
				c.log.Debugf("Ignoring malformed new_log payload: %v", err)
				continue
			}
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}
