package manager

import "errors"

var (
	// ErrValidatorRegistrationPaused gates registration while paused.
	ErrValidatorRegistrationPaused = errors.New("validator registration is paused")

	// ErrNoValidatorsProvided rejects empty registration batches.
	ErrNoValidatorsProvided = errors.New("no validators provided")

	// ErrInvalidNodeID rejects references beyond the node arena.
	ErrInvalidNodeID = errors.New("invalid node id")

	// ErrValidatorAlreadyUsed rejects a public key already consumed,
	// including duplicates within the same batch.
	ErrValidatorAlreadyUsed = errors.New("validator public key already used")

	// ErrDepositDataRootMismatch rejects a caller-supplied commitment that
	// does not match the recomputed deposit-data root.
	ErrDepositDataRootMismatch = errors.New("deposit data root mismatch")

	// ErrTooManyStakingNodes rejects node creation at the configured cap.
	ErrTooManyStakingNodes = errors.New("too many staking nodes")

	// ErrImplementationAlreadyExists rejects a second template registration.
	ErrImplementationAlreadyExists = errors.New("node implementation already registered")

	// ErrNoImplementationExists rejects upgrades and node creation before a
	// template is registered.
	ErrNoImplementationExists = errors.New("no node implementation registered")

	// ErrInvalidRewardsType rejects unknown rewards tags.
	ErrInvalidRewardsType = errors.New("invalid rewards type")

	// ErrTransferFailed wraps a receiver rejecting a rewards forward.
	ErrTransferFailed = errors.New("rewards transfer failed")

	// ErrCallerNotStakingNode rejects rewards processing from anything but
	// the staking node registered at the given id.
	ErrCallerNotStakingNode = errors.New("caller is not the staking node")
)
