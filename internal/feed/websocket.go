package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// WSConfig configures a WSFeed.
type WSConfig struct {
	URL string
	// Subscribe, when set, is sent as a text message after every (re)connect.
	Subscribe []byte
	Header    http.Header
	// ReconnectMin and ReconnectMax bound the exponential reconnect backoff.
	// Defaults: 2s and 60s.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// WSFeed reads order-book messages from one WebSocket endpoint and keeps the
// connection alive, reconnecting with exponential backoff.
type WSFeed struct {
	cfg     WSConfig
	handler Handler
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewWSFeed creates a WSFeed.
func NewWSFeed(cfg WSConfig, handler Handler, logger *slog.Logger) *WSFeed {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 2 * time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(60*time.Second, cfg.ReconnectMin)
	}
	return &WSFeed{
		cfg:     cfg,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:  logger.With(slog.String("component", "ws_feed"), slog.String("url", cfg.URL)),
	}
}

// Run connects and reads until ctx is cancelled. Disconnects are retried
// forever; the delay doubles from ReconnectMin up to ReconnectMax and resets
// once a connection has delivered a message.
func (f *WSFeed) Run(ctx context.Context) error {
	delay := f.cfg.ReconnectMin
	for {
		received, err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			delay = f.cfg.ReconnectMin
		}
		f.logger.Warn("websocket disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = nextDelay(delay, f.cfg.ReconnectMax)
	}
}

// nextDelay doubles d, capped at limit.
func nextDelay(d, limit time.Duration) time.Duration {
	return min(2*d, limit)
}

// runConnection serves one connection and returns how many messages it read.
func (f *WSFeed) runConnection(ctx context.Context) (int, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, f.cfg.Header)
	if err != nil {
		return 0, fmt.Errorf("feed: dial: %w", err)
	}

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, data)
	}

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	// Unblock ReadMessage on shutdown.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if len(f.cfg.Subscribe) > 0 {
		if err := write(websocket.TextMessage, f.cfg.Subscribe); err != nil {
			return 0, fmt.Errorf("feed: subscribe: %w", err)
		}
	}
	f.logger.Info("websocket connected")

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	received := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("feed: read: %w", err)
		}
		received++
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if _, err := dispatch(ctx, f.handler, data); err != nil {
			logRejected(ctx, f.logger, err, len(data))
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
