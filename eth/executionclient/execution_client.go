// Package executionclient connects to an Ethereum execution node and hands
// out the backend used by the contract adapters.
package executionclient

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/logging/fields"
)

var (
	ErrClosed  = errors.New("closed")
	errSyncing = errors.New("syncing")
)

// ExecutionClient wraps an ethclient connection to a single execution node.
type ExecutionClient struct {
	nodeAddr          string
	logger            *zap.Logger
	connectionTimeout time.Duration
	requestTimeout    time.Duration

	client *ethclient.Client
	closed chan struct{}
}

// New connects to the given execution node address.
func New(ctx context.Context, nodeAddr string, opts ...Option) (*ExecutionClient, error) {
	ec := &ExecutionClient{
		nodeAddr:          nodeAddr,
		logger:            zap.NewNop(),
		connectionTimeout: DefaultConnectionTimeout,
		requestTimeout:    DefaultRequestTimeout,
		closed:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ec)
	}
	if err := ec.connect(ctx); err != nil {
		return nil, err
	}
	return ec, nil
}

func (ec *ExecutionClient) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ec.connectionTimeout)
	defer cancel()

	ec.logger.Info("connecting to execution client", fields.Address(ec.nodeAddr))
	client, err := ethclient.DialContext(ctx, ec.nodeAddr)
	if err != nil {
		return errors.Wrapf(err, "could not dial %s", ec.nodeAddr)
	}
	ec.client = client
	return nil
}

// Client returns the underlying ethclient, usable as a bind.ContractBackend.
func (ec *ExecutionClient) Client() *ethclient.Client {
	return ec.client
}

// RequestTimeout returns the configured per-request timeout.
func (ec *ExecutionClient) RequestTimeout() time.Duration {
	return ec.requestTimeout
}

// Healthy reports an error when the node is closed, unreachable or syncing.
func (ec *ExecutionClient) Healthy(ctx context.Context) error {
	select {
	case <-ec.closed:
		return ErrClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, ec.requestTimeout)
	defer cancel()

	progress, err := ec.client.SyncProgress(ctx)
	if err != nil {
		return errors.Wrap(err, "could not read sync progress")
	}
	if progress != nil {
		return errors.Wrapf(errSyncing, "at block %d of %d", progress.CurrentBlock, progress.HighestBlock)
	}
	return nil
}

// Close shuts down the connection.
func (ec *ExecutionClient) Close() error {
	select {
	case <-ec.closed:
	default:
		close(ec.closed)
		ec.client.Close()
	}
	return nil
}
