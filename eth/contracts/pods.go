package contracts

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/logging/fields"
	"github.com/fleetstake/fleetstake/stakingnode"
)

// PodFactory adapts the on-chain factory creating validator-registry pods.
type PodFactory struct {
	logger         *zap.Logger
	contract       *bind.BoundContract
	podABI         abi.ABI
	backend        bind.ContractBackend
	signer         *bind.TransactOpts
	requestTimeout time.Duration
}

// CreatePod deploys a pod for the given owner and returns its handle. The pod
// address is deterministic per owner, so it resolves right after the call.
func (f *PodFactory) CreatePod(ctx context.Context, owner common.Address) (stakingnode.Pod, error) {
	opts := transactOpts(f.signer)
	opts.Context = ctx
	if _, err := f.contract.Transact(opts, "createPod", owner); err != nil {
		return nil, errors.Wrap(err, "create pod")
	}

	addr, err := f.podAddress(ctx, owner)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("created pod", fields.Pod(addr))
	return f.bindPod(addr), nil
}

// GetPod resolves the pod owned by the given address, if one exists.
func (f *PodFactory) GetPod(owner common.Address) (stakingnode.Pod, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), f.requestTimeout)
	defer cancel()

	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "hasPod", owner); err != nil {
		f.logger.Warn("could not check pod existence", zap.Error(err))
		return nil, false
	}
	if exists, ok := out[0].(bool); !ok || !exists {
		return nil, false
	}

	addr, err := f.podAddress(ctx, owner)
	if err != nil {
		f.logger.Warn("could not resolve pod address", zap.Error(err))
		return nil, false
	}
	return f.bindPod(addr), true
}

func (f *PodFactory) podAddress(ctx context.Context, owner common.Address) (common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPod", owner); err != nil {
		return common.Address{}, errors.Wrap(err, "get pod")
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New("unexpected getPod result")
	}
	return addr, nil
}

func (f *PodFactory) bindPod(addr common.Address) *Pod {
	return &Pod{
		addr:     addr,
		contract: bind.NewBoundContract(addr, f.podABI, f.backend, f.backend, f.backend),
		signer:   f.signer,
	}
}

// Pod adapts one deployed validator-registry pod.
type Pod struct {
	addr     common.Address
	contract *bind.BoundContract
	signer   *bind.TransactOpts
}

func (p *Pod) Address() common.Address {
	return p.addr
}

// NonBeaconChainETHBalance reads the pod's balance that did not originate
// from beacon chain withdrawals.
func (p *Pod) NonBeaconChainETHBalance(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "nonBeaconChainETHBalance"); err != nil {
		return nil, errors.Wrap(err, "pod balance")
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected balance result")
	}
	return balance, nil
}

// WithdrawNonBeaconChainETHBalance moves non-principal funds to the recipient.
func (p *Pod) WithdrawNonBeaconChainETHBalance(ctx context.Context, recipient common.Address, amount *big.Int) error {
	opts := transactOpts(p.signer)
	opts.Context = ctx
	if _, err := p.contract.Transact(opts, "withdrawNonBeaconChainETHBalance", recipient, amount); err != nil {
		return errors.Wrap(err, "pod withdraw")
	}
	return nil
}
