package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/headlag-exporter/business/blockchain/app"
	"github.com/fd1az/headlag-exporter/internal/apperror"
	"github.com/fd1az/headlag-exporter/internal/logger"
)

// managedSubscriptionID stands in for the subscription id, which the
// go-ethereum client keeps private.
const managedSubscriptionID = "rpc-managed"

// RPCSource subscribes through the go-ethereum rpc client.
type RPCSource struct {
	config SourceConfig
	logger logger.LoggerInterface
}

var _ app.HeadSource = (*RPCSource)(nil)

// NewRPCSource creates an rpc-client source.
func NewRPCSource(cfg SourceConfig, log logger.LoggerInterface) *RPCSource {
	return &RPCSource{config: cfg, logger: log}
}

// Name implements app.HeadSource.
func (s *RPCSource) Name() string {
	return "rpc:" + s.config.URL
}

// Open implements app.HeadSource.
func (s *RPCSource) Open(ctx context.Context) (app.Session, error) {
	dialCtx := ctx
	if s.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.config.DialTimeout)
		defer cancel()
	}

	opts := []rpc.ClientOption{}
	if s.config.MaxMessageSize > 0 {
		opts = append(opts, rpc.WithWebsocketMessageSizeLimit(s.config.MaxMessageSize))
	}
	if len(s.config.HTTPHeader) > 0 {
		opts = append(opts, rpc.WithHeaders(s.config.HTTPHeader))
	}

	client, err := rpc.DialOptions(dialCtx, s.config.URL, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.New(apperror.CodeConnectFailed,
			apperror.WithCause(err),
			apperror.WithContext(s.config.URL))
	}

	return &rpcSession{
		client: client,
		heads:  make(chan json.RawMessage, 16),
	}, nil
}

// rpcSession is one rpc client connection with at most one subscription.
type rpcSession struct {
	client    *rpc.Client
	heads     chan json.RawMessage
	sub       *rpc.ClientSubscription
	closeOnce sync.Once
}

// Subscribe implements app.Session.
func (s *rpcSession) Subscribe(ctx context.Context) (string, error) {
	sub, err := s.client.EthSubscribe(ctx, s.heads, "newHeads")
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ctx.Err()
		}
		return "", subscribeError("eth_subscribe", err)
	}
	s.sub = sub
	return managedSubscriptionID, nil
}

// Next implements app.Session. Results are re-wrapped in the notification
// envelope so both transports share one decoder.
func (s *rpcSession) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if s.sub == nil {
		return nil, apperror.New(apperror.CodeConnectionClosed,
			apperror.WithContext("no active subscription"))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-s.heads:
		return wrapNotification(managedSubscriptionID, result)
	case err := <-s.sub.Err():
		return nil, apperror.New(apperror.CodeConnectionClosed,
			apperror.WithCause(err),
			apperror.WithContext("subscription ended"))
	case <-timer.C:
		return nil, apperror.New(apperror.CodeStreamStalled,
			apperror.WithContext(fmt.Sprintf("no message within %s", timeout)))
	}
}

// Close implements app.Session. Closing the client ends the subscription
// without waiting for eth_unsubscribe.
func (s *rpcSession) Close() error {
	s.closeOnce.Do(func() {
		s.client.Close()
	})
	return nil
}
