package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// DelegationRegistry adapts the external restaking delegation registry.
type DelegationRegistry struct {
	contract *bind.BoundContract
	signer   *bind.TransactOpts
}

func (d *DelegationRegistry) DelegateTo(ctx context.Context, staker, operator common.Address, approverSignature []byte, salt [32]byte) error {
	opts := transactOpts(d.signer)
	opts.Context = ctx
	if _, err := d.contract.Transact(opts, "delegateTo", staker, operator, approverSignature, salt); err != nil {
		return errors.Wrap(err, "delegate")
	}
	return nil
}

func (d *DelegationRegistry) Undelegate(ctx context.Context, staker common.Address) error {
	opts := transactOpts(d.signer)
	opts.Context = ctx
	if _, err := d.contract.Transact(opts, "undelegate", staker); err != nil {
		return errors.Wrap(err, "undelegate")
	}
	return nil
}

func (d *DelegationRegistry) DelegatedTo(ctx context.Context, staker common.Address) (common.Address, error) {
	var out []interface{}
	if err := d.contract.Call(&bind.CallOpts{Context: ctx}, &out, "delegatedTo", staker); err != nil {
		return common.Address{}, errors.Wrap(err, "delegated to")
	}
	operator, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New("unexpected delegatedTo result")
	}
	return operator, nil
}
