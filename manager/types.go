package manager

import (
	"context"
	"math/big"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
)

// StakeUnitGwei is the fixed deposit amount per validator.
const StakeUnitGwei = phase0.Gwei(32_000_000_000)

var stakeUnitWei = new(big.Int).Mul(big.NewInt(32), big.NewInt(1e18))

// StakeUnitWei returns the fixed deposit amount per validator in wei.
func StakeUnitWei() *big.Int {
	return new(big.Int).Set(stakeUnitWei)
}

// ValidatorData is one registration request entry. DepositDataRoot is the
// caller-supplied commitment and must match the independently recomputed one.
type ValidatorData struct {
	PublicKey       phase0.BLSPubKey
	Signature       phase0.BLSSignature
	DepositDataRoot phase0.Root
	NodeID          uint64
}

// LiquidityPool supplies ETH for deposits. Withdraw fails loudly on
// insufficient funds; Deposit returns unspent funds after an aborted batch.
type LiquidityPool interface {
	Withdraw(ctx context.Context, amount *big.Int) error
	Deposit(ctx context.Context, amount *big.Int) error
}

// DepositContract is the external validator registry. Deposits are
// irreversible; the registry re-verifies the deposit-data root on its own.
type DepositContract interface {
	Deposit(
		ctx context.Context,
		pubkey phase0.BLSPubKey,
		withdrawalCredentials [32]byte,
		signature phase0.BLSSignature,
		depositDataRoot phase0.Root,
		amount phase0.Gwei,
	) error
}

// RewardsReceiver is one of the distribution fan-out endpoints.
type RewardsReceiver interface {
	Address() common.Address
	Receive(ctx context.Context, from common.Address, amount *big.Int) error
}

// RewardsDistributor exposes the two configured receiver accounts.
type RewardsDistributor interface {
	ConsensusLayerReceiver() RewardsReceiver
	ExecutionLayerReceiver() RewardsReceiver
}
