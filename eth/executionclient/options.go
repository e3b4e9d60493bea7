package executionclient

import (
	"time"

	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/logging"
)

// Option defines an ExecutionClient configuration option.
type Option func(*ExecutionClient)

// WithLogger enables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(ec *ExecutionClient) {
		ec.logger = logger.Named(logging.NameExecutionClient)
	}
}

// WithConnectionTimeout sets the timeout for connecting to the execution node.
func WithConnectionTimeout(timeout time.Duration) Option {
	return func(ec *ExecutionClient) {
		if timeout > 0 {
			ec.connectionTimeout = timeout
		}
	}
}

// WithRequestTimeout sets the per-request timeout for contract calls issued
// without a caller-scoped deadline.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(ec *ExecutionClient) {
		if timeout > 0 {
			ec.requestTimeout = timeout
		}
	}
}
