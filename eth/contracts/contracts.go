// Package contracts binds the external on-chain collaborators: the liquidity
// pool, the validator registry deposit contract, the pod factory, the
// restaking delegation registry and the rewards receivers.
package contracts

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const poolABI = `[
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]}
]`

const depositContractABI = `[
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[
		{"name":"pubkey","type":"bytes"},
		{"name":"withdrawal_credentials","type":"bytes"},
		{"name":"signature","type":"bytes"},
		{"name":"deposit_data_root","type":"bytes32"}
	],"outputs":[]}
]`

const podFactoryABI = `[
	{"type":"function","name":"createPod","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getPod","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"hasPod","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

const podABI = `[
	{"type":"function","name":"nonBeaconChainETHBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"withdrawNonBeaconChainETHBalance","stateMutability":"nonpayable","inputs":[
		{"name":"recipient","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[]}
]`

const delegationABI = `[
	{"type":"function","name":"delegateTo","stateMutability":"nonpayable","inputs":[
		{"name":"staker","type":"address"},
		{"name":"operator","type":"address"},
		{"name":"approverSignature","type":"bytes"},
		{"name":"salt","type":"bytes32"}
	],"outputs":[]},
	{"type":"function","name":"undelegate","stateMutability":"nonpayable","inputs":[{"name":"staker","type":"address"}],"outputs":[]},
	{"type":"function","name":"delegatedTo","stateMutability":"view","inputs":[{"name":"staker","type":"address"}],"outputs":[{"name":"","type":"address"}]}
]`

// Addresses locates the deployed collaborator contracts.
type Addresses struct {
	Pool            common.Address
	DepositContract common.Address
	PodFactory      common.Address
	Delegation      common.Address
	CLReceiver      common.Address
	ELReceiver      common.Address
}

// Contracts holds the bound collaborator adapters.
type Contracts struct {
	Pool            *LiquidityPool
	DepositContract *DepositContract
	PodFactory      *PodFactory
	Delegation      *DelegationRegistry
	Distributor     *Distributor
}

// New binds every collaborator contract against the given backend. The signer
// is used for all state-changing calls.
func New(
	logger *zap.Logger,
	backend bind.ContractBackend,
	signer *bind.TransactOpts,
	addresses Addresses,
	requestTimeout time.Duration,
) (*Contracts, error) {
	parsedPool, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse pool ABI")
	}
	parsedDeposit, err := abi.JSON(strings.NewReader(depositContractABI))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse deposit contract ABI")
	}
	parsedFactory, err := abi.JSON(strings.NewReader(podFactoryABI))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse pod factory ABI")
	}
	parsedPod, err := abi.JSON(strings.NewReader(podABI))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse pod ABI")
	}
	parsedDelegation, err := abi.JSON(strings.NewReader(delegationABI))
	if err != nil {
		return nil, errors.Wrap(err, "could not parse delegation ABI")
	}

	return &Contracts{
		Pool: &LiquidityPool{
			contract: bind.NewBoundContract(addresses.Pool, parsedPool, backend, backend, backend),
			signer:   signer,
		},
		DepositContract: &DepositContract{
			contract: bind.NewBoundContract(addresses.DepositContract, parsedDeposit, backend, backend, backend),
			signer:   signer,
		},
		PodFactory: &PodFactory{
			logger:         logger,
			contract:       bind.NewBoundContract(addresses.PodFactory, parsedFactory, backend, backend, backend),
			podABI:         parsedPod,
			backend:        backend,
			signer:         signer,
			requestTimeout: requestTimeout,
		},
		Delegation: &DelegationRegistry{
			contract: bind.NewBoundContract(addresses.Delegation, parsedDelegation, backend, backend, backend),
			signer:   signer,
		},
		Distributor: &Distributor{
			cl: newReceiver(addresses.CLReceiver, backend, signer),
			el: newReceiver(addresses.ELReceiver, backend, signer),
		},
	}, nil
}

func transactOpts(signer *bind.TransactOpts) *bind.TransactOpts {
	opts := *signer
	return &opts
}
