// Package ethereum provides the upstream node adapters for newHeads
// subscriptions.
package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/headlag-exporter/business/blockchain/app"
	"github.com/fd1az/headlag-exporter/internal/apperror"
	"github.com/fd1az/headlag-exporter/internal/logger"
	"github.com/fd1az/headlag-exporter/internal/wsconn"
)

// SourceConfig holds the settings shared by both transports.
type SourceConfig struct {
	URL            string
	DialTimeout    time.Duration
	MaxMessageSize int64
	HTTPClient     *http.Client // websocket handshake client, optional
	HTTPHeader     http.Header  // extra handshake headers, e.g. provider auth
}

// DefaultSourceConfig returns sensible defaults.
func DefaultSourceConfig(url string) SourceConfig {
	return SourceConfig{
		URL:            url,
		DialTimeout:    10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// WSSource speaks raw JSON-RPC over a websocket.
type WSSource struct {
	config SourceConfig
	logger logger.LoggerInterface
}

var _ app.HeadSource = (*WSSource)(nil)

// NewWSSource creates a websocket source.
func NewWSSource(cfg SourceConfig, log logger.LoggerInterface) *WSSource {
	return &WSSource{config: cfg, logger: log}
}

// Name implements app.HeadSource.
func (s *WSSource) Name() string {
	return "ws:" + s.config.URL
}

// Open implements app.HeadSource.
func (s *WSSource) Open(ctx context.Context) (app.Session, error) {
	wsCfg := wsconn.DefaultConfig(s.config.URL, "upstream")
	wsCfg.DialTimeout = s.config.DialTimeout
	wsCfg.MaxMessageSize = s.config.MaxMessageSize
	wsCfg.HTTPClient = s.config.HTTPClient
	wsCfg.HTTPHeader = s.config.HTTPHeader

	client, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, apperror.New(apperror.CodeConnectFailed,
			apperror.WithCause(err),
			apperror.WithContext(s.config.URL))
	}

	client.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			s.logger.Debug(context.Background(), "websocket state", "state", state, "error", err)
			return
		}
		s.logger.Debug(context.Background(), "websocket state", "state", state)
	})

	if err := client.Connect(ctx); err != nil {
		client.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// wsconn already reports CONNECT_FAILED.
		return nil, apperror.Wrap(err, apperror.CodeConnectFailed, s.config.URL)
	}

	return &wsSession{client: client, url: s.config.URL}, nil
}

// wsSession is one websocket connection.
type wsSession struct {
	client    *wsconn.Client
	url       string
	closeOnce sync.Once
}

// Subscribe implements app.Session.
func (s *wsSession) Subscribe(ctx context.Context) (string, error) {
	if err := s.client.SendJSON(ctx, newHeadsSubscribeRequest()); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", subscribeError("send subscribe request", err)
	}

	raw, err := s.client.Read(ctx)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ctx.Err()
		}
		return "", subscribeError("no subscription acknowledgment", err)
	}

	return parseSubscribeAck(raw)
}

// Next implements app.Session. The stall timeout is a deadline on the read;
// the websocket is closed by the library when it expires.
func (s *wsSession) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if !s.client.IsConnected() {
		return nil, apperror.New(apperror.CodeConnectionClosed,
			apperror.WithContext("session no longer connected"))
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := s.client.Read(readCtx)
	if err == nil {
		return raw, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(readCtx.Err(), context.DeadlineExceeded) {
		return nil, apperror.New(apperror.CodeStreamStalled,
			apperror.WithContext(fmt.Sprintf("no message within %s", timeout)))
	}

	msg := "transport terminated"
	if status := websocket.CloseStatus(err); status != -1 {
		msg = fmt.Sprintf("closed by peer with status %d", status)
	}
	return nil, apperror.New(apperror.CodeConnectionClosed,
		apperror.WithCause(err),
		apperror.WithContext(msg))
}

// Close implements app.Session.
func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.client.Close()
	})
	return err
}

func parseSubscribeAck(raw []byte) (string, error) {
	var ack subscribeAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return "", subscribeError("garbled acknowledgment", err)
	}
	if ack.Error != nil {
		return "", subscribeError(fmt.Sprintf("node rejected subscription: %d %s", ack.Error.Code, ack.Error.Message), nil)
	}

	var id int
	if err := json.Unmarshal(ack.ID, &id); err != nil || id != subscribeRequestID {
		return "", subscribeError(fmt.Sprintf("acknowledgment for unexpected id %s", ack.ID), nil)
	}

	var subID string
	if err := json.Unmarshal(ack.Result, &subID); err != nil || subID == "" {
		return "", subscribeError("empty subscription id", err)
	}
	return subID, nil
}

func subscribeError(context string, cause error) error {
	opts := []apperror.Option{apperror.WithContext(context)}
	if cause != nil {
		opts = append(opts, apperror.WithCause(cause))
	}
	return apperror.New(apperror.CodeSubscribeFailed, opts...)
}
