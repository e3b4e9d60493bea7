package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/pkg/errors"
)

// LiquidityPool adapts the on-chain pool funding validator deposits.
type LiquidityPool struct {
	contract *bind.BoundContract
	signer   *bind.TransactOpts
}

// Withdraw pulls the given amount of wei out of the pool.
func (p *LiquidityPool) Withdraw(ctx context.Context, amount *big.Int) error {
	opts := transactOpts(p.signer)
	opts.Context = ctx
	if _, err := p.contract.Transact(opts, "withdraw", amount); err != nil {
		return errors.Wrap(err, "pool withdraw")
	}
	return nil
}

// Deposit returns the given amount of wei to the pool.
func (p *LiquidityPool) Deposit(ctx context.Context, amount *big.Int) error {
	opts := transactOpts(p.signer)
	opts.Context = ctx
	opts.Value = amount
	if _, err := p.contract.Transact(opts, "deposit"); err != nil {
		return errors.Wrap(err, "pool deposit")
	}
	return nil
}
