package stakingnode

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fleetstake/fleetstake/registry/storage"
	"github.com/fleetstake/fleetstake/storage/basedb"
)

// RewardsType tags the origin of rewards forwarded to the manager.
type RewardsType uint8

const (
	ConsensusLayerRewards RewardsType = iota
	ExecutionLayerRewards
)

func (rt RewardsType) String() string {
	switch rt {
	case ConsensusLayerRewards:
		return "consensus_layer"
	case ExecutionLayerRewards:
		return "execution_layer"
	default:
		return "unknown"
	}
}

// Pod is the node's account at the external validator registry.
type Pod interface {
	Address() common.Address
	NonBeaconChainETHBalance(ctx context.Context) (*big.Int, error)
	WithdrawNonBeaconChainETHBalance(ctx context.Context, recipient common.Address, amount *big.Int) error
}

// PodFactory creates and resolves validator-registry accounts.
type PodFactory interface {
	CreatePod(ctx context.Context, owner common.Address) (Pod, error)
	GetPod(owner common.Address) (Pod, bool)
}

// DelegationRegistry is the external restaking delegation registry.
type DelegationRegistry interface {
	DelegateTo(ctx context.Context, staker common.Address, operator common.Address, approverSignature []byte, salt [32]byte) error
	Undelegate(ctx context.Context, staker common.Address) error
	DelegatedTo(ctx context.Context, staker common.Address) (common.Address, error)
}

// RewardsProcessor receives a node's accumulated balance. Implemented by the
// staking nodes manager; the caller argument lets it verify node identity.
type RewardsProcessor interface {
	ProcessRewards(ctx context.Context, nodeID uint64, rewardsType RewardsType, amount *big.Int, caller *Node) error
}

// Store persists node records.
type Store interface {
	SaveNode(rw basedb.ReadWriter, record *storage.NodeRecord) error
}

// EventSink records observable events, optionally inside a transaction.
type EventSink interface {
	Append(rw basedb.ReadWriter, eventType string, data interface{}) error
}

// Initializer is one versioned initialization step of a node template.
type Initializer struct {
	Version uint64
	Name    string
	Run     func(ctx context.Context, n *Node) error
}

// Template is the implementation template nodes are bound to. Upgrades
// replace the template and re-run any initializer steps a node has not
// seen yet, keyed by its initialized-version counter.
type Template struct {
	Version      uint64
	Initializers []Initializer
}

// NewTemplate builds a template, requiring strictly ascending initializer
// versions so the idempotency guard is well defined.
func NewTemplate(version uint64, initializers []Initializer) (*Template, error) {
	var last uint64
	for _, init := range initializers {
		if init.Version == 0 || init.Version <= last {
			return nil, ErrBadTemplate
		}
		if init.Version > version {
			return nil, ErrBadTemplate
		}
		last = init.Version
	}
	return &Template{
		Version:      version,
		Initializers: initializers,
	}, nil
}
