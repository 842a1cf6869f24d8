package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// ErrNotConnected is returned by Send while the client has no live connection.
var ErrNotConnected = errors.New("presence channel not connected")

// ClientConfig describes how to reach the presence channel.
type ClientConfig struct {
	URL          string
	Origin       string
	Token        string
	RetryDelay   time.Duration
	OnConnect    func(c *Client)
	OnFrame      func(Frame)
	DialDeadline time.Duration
}

// Client is a long-lived presence channel connection that redials with a
// constant delay whenever the server goes away.
type Client struct {
	cfg    ClientConfig
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	enc  *json.Encoder
}

// NewClient prepares a client; nothing is dialled until Run.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if cfg.DialDeadline <= 0 {
		cfg.DialDeadline = 10 * time.Second
	}
	if cfg.Origin == "" {
		cfg.Origin = "http://localhost/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: logger}
}

// Run keeps the connection up until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := c.session(ctx); err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(ctx.Err())
			}
			return struct{}{}, err
		}
		if ctx.Err() != nil {
			return struct{}{}, nil
		}
		return struct{}{}, errors.New("presence channel closed by server")
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.RetryDelay)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("presence channel lost, reconnecting", zap.Error(err), zap.Duration("retry_in", next))
		}),
	)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Client) dial() (*websocket.Conn, error) {
	cfg, err := websocket.NewConfig(c.cfg.URL, c.cfg.Origin)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("presence channel config: %w", err))
	}
	if c.cfg.Token != "" {
		cfg.Header = http.Header{}
		cfg.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial presence channel: %w", err)
	}
	return conn, nil
}

// session runs one connection to completion.
func (c *Client) session(ctx context.Context) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.mu.Unlock()
	c.logger.Info("presence channel connected", zap.String("url", c.cfg.URL))

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.enc = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect(c)
	}

	decoder := json.NewDecoder(conn)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read presence channel: %w", err)
		}
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(frame)
		}
	}
}

// Send writes one message on the current connection.
func (c *Client) Send(requestID string, msg Message) error {
	frame, err := Encode(requestID, msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		return ErrNotConnected
	}
	return c.enc.Encode(frame)
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
