package contracts

import (
	"context"
	"math/big"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/pkg/errors"
)

var gweiInWei = big.NewInt(1e9)

// DepositContract adapts the validator registry's deposit contract.
type DepositContract struct {
	contract *bind.BoundContract
	signer   *bind.TransactOpts
}

// Deposit submits one 32 ETH validator deposit. The registry re-verifies the
// deposit-data root on its own and the transfer is irreversible.
func (d *DepositContract) Deposit(
	ctx context.Context,
	pubkey phase0.BLSPubKey,
	withdrawalCredentials [32]byte,
	signature phase0.BLSSignature,
	depositDataRoot phase0.Root,
	amount phase0.Gwei,
) error {
	opts := transactOpts(d.signer)
	opts.Context = ctx
	opts.Value = new(big.Int).Mul(big.NewInt(int64(amount)), gweiInWei)

	var root [32]byte = depositDataRoot
	_, err := d.contract.Transact(opts, "deposit",
		pubkey[:], withdrawalCredentials[:], signature[:], root)
	if err != nil {
		return errors.Wrap(err, "registry deposit")
	}
	return nil
}
