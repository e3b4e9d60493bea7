package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/fleetstake/fleetstake/manager"
)

// Distributor exposes the two configured rewards receiver accounts.
type Distributor struct {
	cl *Receiver
	el *Receiver
}

func (d *Distributor) ConsensusLayerReceiver() manager.RewardsReceiver { return d.cl }
func (d *Distributor) ExecutionLayerReceiver() manager.RewardsReceiver { return d.el }

// Receiver is a plain value-transfer target for processed rewards.
type Receiver struct {
	addr     common.Address
	contract *bind.BoundContract
	signer   *bind.TransactOpts
}

func newReceiver(addr common.Address, backend bind.ContractBackend, signer *bind.TransactOpts) *Receiver {
	return &Receiver{
		addr:     addr,
		contract: bind.NewBoundContract(addr, abi.ABI{}, backend, backend, backend),
		signer:   signer,
	}
}

func (r *Receiver) Address() common.Address {
	return r.addr
}

// Receive forwards the amount as a plain transfer to the receiver account.
func (r *Receiver) Receive(ctx context.Context, _ common.Address, amount *big.Int) error {
	opts := transactOpts(r.signer)
	opts.Context = ctx
	opts.Value = amount
	if _, err := r.contract.RawTransact(opts, nil); err != nil {
		return errors.Wrap(err, "rewards transfer")
	}
	return nil
}
