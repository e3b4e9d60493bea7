// Package manager orchestrates the staking node fleet: node creation under a
// capacity cap, the validator deposit-registration protocol and rewards
// routing back to the distribution fan-out.
package manager

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/access"
	"github.com/fleetstake/fleetstake/logging/fields"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
	"github.com/fleetstake/fleetstake/stakingnode"
	"github.com/fleetstake/fleetstake/storage/basedb"
)

// Options holds the manager's stores and external collaborators.
type Options struct {
	Logger           *zap.Logger
	DB               basedb.Database
	Nodes            *registrystorage.Nodes
	Validators       *registrystorage.Validators
	Settings         *registrystorage.Settings
	Events           *registrystorage.Events
	Access           access.Controller
	Pool             LiquidityPool
	DepositContract  DepositContract
	PodFactory       stakingnode.PodFactory
	Delegation       stakingnode.DelegationRegistry
	Distributor      RewardsDistributor
	WithdrawalRouter common.Address

	// Address identifies the manager and seeds node address derivation.
	Address common.Address

	// MaxNodeCount is the initial cap, used when none is persisted yet.
	MaxNodeCount uint64 `yaml:"MaxNodeCount" env:"MAX_NODE_COUNT" env-default:"10" env-description:"Upper bound on the number of staking nodes"`
}

// StakingNodesManager coordinates the fleet of staking node sub-accounts.
type StakingNodesManager struct {
	logger *zap.Logger
	opts   Options

	mu          sync.Mutex
	regGuard    sync.Mutex
	createGuard sync.Mutex

	nodes        []*stakingnode.Node
	template     *stakingnode.Template
	maxNodeCount uint64
	paused       bool
}

// New builds a manager, restoring settings and the node arena from storage.
func New(opts Options) (*StakingNodesManager, error) {
	m := &StakingNodesManager{
		logger:       opts.Logger,
		opts:         opts,
		maxNodeCount: opts.MaxNodeCount,
	}

	maxCount, found, err := opts.Settings.GetMaxNodeCount()
	if err != nil {
		return nil, errors.Wrap(err, "could not load max node count")
	}
	if found {
		m.maxNodeCount = maxCount
	} else if err := opts.Settings.SetMaxNodeCount(nil, m.maxNodeCount); err != nil {
		return nil, errors.Wrap(err, "could not persist max node count")
	}

	paused, err := opts.Settings.GetRegistrationPaused()
	if err != nil {
		return nil, errors.Wrap(err, "could not load pause flag")
	}
	m.paused = paused

	records, err := opts.Nodes.ListNodes()
	if err != nil {
		return nil, errors.Wrap(err, "could not load node records")
	}
	for i := range records {
		node, err := stakingnode.New(m.nodeOptions(), records[i].Clone())
		if err != nil {
			return nil, errors.Wrapf(err, "could not restore node %d", records[i].Index)
		}
		m.nodes = append(m.nodes, node)
	}

	metricStakingNodes.Set(float64(len(m.nodes)))
	setPausedMetric(m.paused)

	m.logger.Info("staking nodes manager ready",
		fields.Count(len(m.nodes)),
		fields.MaxNodeCount(m.maxNodeCount),
	)
	return m, nil
}

func (m *StakingNodesManager) nodeOptions() stakingnode.Options {
	return stakingnode.Options{
		Logger:           m.opts.Logger,
		DB:               m.opts.DB,
		Store:            m.opts.Nodes,
		Events:           m.opts.Events,
		Access:           m.opts.Access,
		PodFactory:       m.opts.PodFactory,
		Delegation:       m.opts.Delegation,
		Rewards:          m,
		WithdrawalRouter: m.opts.WithdrawalRouter,
	}
}

// RegisterStakingNodeImplementation registers the node implementation
// template. Fails when one is already registered.
func (m *StakingNodesManager) RegisterStakingNodeImplementation(caller common.Address, template *stakingnode.Template) error {
	if !m.opts.Access.HasCapability(caller, access.CapabilityAdmin) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.template != nil {
		return ErrImplementationAlreadyExists
	}
	m.template = template
	if err := m.opts.Settings.SetTemplateVersion(nil, template.Version); err != nil {
		return errors.Wrap(err, "could not persist template version")
	}
	if err := m.opts.Events.Append(nil, registrystorage.EventTypeImplementationRegistered, struct {
		Version uint64 `json:"version"`
	}{template.Version}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	m.logger.Info("registered node implementation", fields.TemplateVersion(template.Version))
	return nil
}

// UpgradeStakingNodeImplementation swaps the template and re-runs the
// idempotent initialization sweep over every existing node.
func (m *StakingNodesManager) UpgradeStakingNodeImplementation(ctx context.Context, caller common.Address, template *stakingnode.Template) error {
	if !m.opts.Access.HasCapability(caller, access.CapabilityAdmin) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.template == nil {
		return ErrNoImplementationExists
	}

	err := m.opts.DB.Update(func(txn basedb.Txn) error {
		for _, node := range m.nodes {
			if err := node.Initialize(ctx, txn, template); err != nil {
				return errors.Wrapf(err, "could not reinitialize node %d", node.Index())
			}
		}
		if err := m.opts.Settings.SetTemplateVersion(txn, template.Version); err != nil {
			return errors.Wrap(err, "could not persist template version")
		}
		return m.opts.Events.Append(txn, registrystorage.EventTypeImplementationUpgraded, struct {
			Version uint64 `json:"version"`
		}{template.Version})
	})
	if err != nil {
		return err
	}
	m.template = template

	m.logger.Info("upgraded node implementation", fields.TemplateVersion(template.Version))
	return nil
}

// CreateStakingNode instantiates the next staking node under the capacity
// cap, initializes it once and creates its validator-registry account.
func (m *StakingNodesManager) CreateStakingNode(ctx context.Context, caller common.Address) (*stakingnode.Node, error) {
	if !m.opts.Access.HasCapability(caller, access.CapabilityStakingNodeCreator) {
		return nil, errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}
	if !m.createGuard.TryLock() {
		return nil, stakingnode.ErrOperationInProgress
	}
	defer m.createGuard.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.template == nil {
		return nil, ErrNoImplementationExists
	}
	if uint64(len(m.nodes)) >= m.maxNodeCount {
		return nil, ErrTooManyStakingNodes
	}

	nodeID := uint64(len(m.nodes))
	record := &registrystorage.NodeRecord{
		Index:        nodeID,
		Address:      m.deriveNodeAddress(nodeID),
		AllocatedETH: new(big.Int),
		Balance:      new(big.Int),
	}
	node, err := stakingnode.New(m.nodeOptions(), record)
	if err != nil {
		return nil, err
	}

	err = m.opts.DB.Update(func(txn basedb.Txn) error {
		if err := m.opts.Nodes.SaveNode(txn, node.Record()); err != nil {
			return errors.Wrap(err, "could not save node")
		}
		if err := node.Initialize(ctx, txn, m.template); err != nil {
			return err
		}
		pod, err := node.CreatePod(ctx, txn)
		if err != nil {
			return err
		}
		return m.opts.Events.Append(txn, registrystorage.EventTypeNodeCreated, struct {
			NodeID  uint64         `json:"node_id"`
			Address common.Address `json:"address"`
			Pod     common.Address `json:"pod"`
		}{nodeID, node.Address(), pod.Address()})
	})
	if err != nil {
		return nil, err
	}

	m.nodes = append(m.nodes, node)
	metricStakingNodes.Set(float64(len(m.nodes)))

	m.logger.Info("created staking node",
		fields.NodeID(nodeID),
		fields.Account(node.Address()),
	)
	return node, nil
}

// SetMaxNodeCount updates the capacity cap. Lowering it below the current
// arena length only blocks further creation.
func (m *StakingNodesManager) SetMaxNodeCount(caller common.Address, count uint64) error {
	if !m.opts.Access.HasCapability(caller, access.CapabilityAdmin) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.opts.Settings.SetMaxNodeCount(nil, count); err != nil {
		return errors.Wrap(err, "could not persist max node count")
	}
	m.maxNodeCount = count
	if err := m.opts.Events.Append(nil, registrystorage.EventTypeMaxNodeCountUpdated, struct {
		MaxNodeCount uint64 `json:"max_node_count"`
	}{count}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	m.logger.Info("updated max node count", fields.MaxNodeCount(count))
	return nil
}

// SetValidatorRegistrationPaused toggles the registration gate.
func (m *StakingNodesManager) SetValidatorRegistrationPaused(caller common.Address, paused bool) error {
	if !m.opts.Access.HasCapability(caller, access.CapabilityPauser) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.opts.Settings.SetRegistrationPaused(nil, paused); err != nil {
		return errors.Wrap(err, "could not persist pause flag")
	}
	m.paused = paused
	setPausedMetric(paused)
	if err := m.opts.Events.Append(nil, registrystorage.EventTypePauseStateChanged, struct {
		Paused bool `json:"paused"`
	}{paused}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	m.logger.Info("updated registration pause state", zap.Bool("paused", paused))
	return nil
}

// ProcessRewards forwards a node's accumulated balance to the configured
// receiver for the given rewards type. Only the node registered at nodeID
// may call this, checked by instance identity rather than capability.
func (m *StakingNodesManager) ProcessRewards(ctx context.Context, nodeID uint64, rewardsType stakingnode.RewardsType, amount *big.Int, caller *stakingnode.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nodeID >= uint64(len(m.nodes)) || m.nodes[nodeID] != caller {
		return errors.Wrapf(ErrCallerNotStakingNode, "node id %d", nodeID)
	}

	var receiver RewardsReceiver
	switch rewardsType {
	case stakingnode.ConsensusLayerRewards:
		receiver = m.opts.Distributor.ConsensusLayerReceiver()
	case stakingnode.ExecutionLayerRewards:
		receiver = m.opts.Distributor.ExecutionLayerReceiver()
	default:
		return errors.Wrapf(ErrInvalidRewardsType, "type %d", rewardsType)
	}

	if err := receiver.Receive(ctx, caller.Address(), amount); err != nil {
		return errors.Wrapf(ErrTransferFailed, "receiver %s: %v", receiver.Address(), err)
	}

	if err := m.opts.Events.Append(nil, registrystorage.EventTypeRewardsProcessed, struct {
		NodeID      uint64         `json:"node_id"`
		RewardsType string         `json:"rewards_type"`
		Amount      *big.Int       `json:"amount"`
		Receiver    common.Address `json:"receiver"`
	}{nodeID, rewardsType.String(), amount, receiver.Address()}); err != nil {
		return errors.Wrap(err, "could not append event")
	}
	addRewardsMetric(rewardsType, amount)

	m.logger.Info("processed rewards",
		fields.NodeID(nodeID),
		fields.RewardsType(rewardsType.String()),
		fields.Amount(amount),
	)
	return nil
}

// Node returns the staking node at the given id.
func (m *StakingNodesManager) Node(nodeID uint64) (*stakingnode.Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nodeID >= uint64(len(m.nodes)) {
		return nil, false
	}
	return m.nodes[nodeID], true
}

// Nodes returns the node arena in creation order.
func (m *StakingNodesManager) Nodes() []*stakingnode.Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := make([]*stakingnode.Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// NodeCount returns the current arena length.
func (m *StakingNodesManager) NodeCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.nodes))
}

// MaxNodeCount returns the capacity cap.
func (m *StakingNodesManager) MaxNodeCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxNodeCount
}

// IsValidatorRegistrationPaused reports the registration gate state.
func (m *StakingNodesManager) IsValidatorRegistrationPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *StakingNodesManager) deriveNodeAddress(nodeID uint64) common.Address {
	seed := make([]byte, 0, 20+8+12)
	seed = append(seed, m.opts.Address.Bytes()...)
	seed = append(seed, byte(nodeID>>56), byte(nodeID>>48), byte(nodeID>>40), byte(nodeID>>32),
		byte(nodeID>>24), byte(nodeID>>16), byte(nodeID>>8), byte(nodeID))
	seed = append(seed, []byte("staking-node")...)
	return common.BytesToAddress(crypto.Keccak256(seed)[12:])
}
