package stakingnode

import "errors"

var (
	// ErrNotWithdrawalRouter rejects ETH pushed by anyone other than the
	// delayed-withdrawal router.
	ErrNotWithdrawalRouter = errors.New("eth depositor is not the delayed withdrawal router")

	// ErrNoBalanceToProcess rejects withdrawal processing with a zero balance.
	ErrNoBalanceToProcess = errors.New("no balance to process")

	// ErrNoPod means the node's validator-registry account was never created.
	ErrNoPod = errors.New("node has no validator registry account")

	// ErrOperationInProgress rejects re-entry into an exclusive operation.
	ErrOperationInProgress = errors.New("operation already in progress")

	// ErrBadTemplate rejects templates with non-ascending initializer versions.
	ErrBadTemplate = errors.New("template initializer versions must be ascending")

	// ErrNonPositiveAmount rejects zero or negative allocation amounts.
	ErrNonPositiveAmount = errors.New("amount must be positive")
)
