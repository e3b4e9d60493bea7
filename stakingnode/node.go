// Package stakingnode implements one slot of the staking fleet: a sub-account
// owning a single validator-registry pod, an allocated-ETH ledger and the
// reward forwarding path back to the manager.
package stakingnode

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/access"
	"github.com/fleetstake/fleetstake/deposit"
	"github.com/fleetstake/fleetstake/logging/fields"
	"github.com/fleetstake/fleetstake/registry/storage"
	"github.com/fleetstake/fleetstake/storage/basedb"
)

// Options holds the node's collaborators.
type Options struct {
	Logger           *zap.Logger
	DB               basedb.Database
	Store            Store
	Events           EventSink
	Access           access.Controller
	PodFactory       PodFactory
	Delegation       DelegationRegistry
	Rewards          RewardsProcessor
	WithdrawalRouter common.Address
}

// Node is a single staking sub-account. All mutating methods are safe for
// concurrent use; exclusive operations reject re-entry instead of queueing.
type Node struct {
	logger *zap.Logger
	opts   Options

	mu           sync.Mutex
	processGuard sync.Mutex
	record       *storage.NodeRecord
	pod          Pod
}

// New builds a node around a persisted record. The pod handle is resolved
// from the factory when the record already references one.
func New(opts Options, record *storage.NodeRecord) (*Node, error) {
	if record.AllocatedETH == nil {
		record.AllocatedETH = new(big.Int)
	}
	if record.Balance == nil {
		record.Balance = new(big.Int)
	}
	n := &Node{
		logger: opts.Logger.With(fields.NodeID(record.Index)),
		opts:   opts,
		record: record,
	}
	if record.PodAddress != nil {
		pod, found := opts.PodFactory.GetPod(record.Address)
		if !found {
			return nil, errors.Wrapf(ErrNoPod, "pod %s not resolvable", record.PodAddress)
		}
		n.pod = pod
	}
	return n, nil
}

// Index returns the node's position in the manager's arena.
func (n *Node) Index() uint64 {
	return n.record.Index
}

// Address returns the node's account address.
func (n *Node) Address() common.Address {
	return n.record.Address
}

// Record returns a copy of the persisted state.
func (n *Node) Record() *storage.NodeRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.record.Clone()
}

// InitializedVersion returns the highest initializer version the node ran.
func (n *Node) InitializedVersion() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.record.InitializedVersion
}

// AllocatedETH returns the one-way allocation counter in wei.
func (n *Node) AllocatedETH() *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.record.AllocatedETH)
}

// Balance returns the node's current ETH balance in wei.
func (n *Node) Balance() *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.record.Balance)
}

// Initialize runs any template initializer steps above the node's current
// initialized version. Re-invocation with the same template is a no-op, so
// upgrades can sweep every node unconditionally. Manager-only.
func (n *Node) Initialize(ctx context.Context, rw basedb.ReadWriter, template *Template) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	before := n.record.InitializedVersion
	for _, init := range template.Initializers {
		if init.Version <= n.record.InitializedVersion {
			continue
		}
		if init.Run != nil {
			if err := init.Run(ctx, n); err != nil {
				return errors.Wrapf(err, "initializer %q failed", init.Name)
			}
		}
		n.record.InitializedVersion = init.Version
	}
	if template.Version > n.record.InitializedVersion {
		n.record.InitializedVersion = template.Version
	}
	if n.record.InitializedVersion == before {
		return nil
	}

	if err := n.opts.Store.SaveNode(rw, n.record); err != nil {
		n.record.InitializedVersion = before
		return errors.Wrap(err, "could not save node")
	}
	if err := n.opts.Events.Append(rw, storage.EventTypeNodeInitialized, struct {
		NodeID  uint64 `json:"node_id"`
		Version uint64 `json:"version"`
	}{n.record.Index, n.record.InitializedVersion}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	n.logger.Debug("node initialized", fields.TemplateVersion(n.record.InitializedVersion))
	return nil
}

// CreatePod creates the node's validator-registry account. Creation happens
// at most once; later calls return the existing handle.
func (n *Node) CreatePod(ctx context.Context, rw basedb.ReadWriter) (Pod, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pod != nil {
		return n.pod, nil
	}
	if n.record.PodAddress != nil {
		pod, found := n.opts.PodFactory.GetPod(n.record.Address)
		if !found {
			return nil, errors.Wrapf(ErrNoPod, "pod %s not resolvable", n.record.PodAddress)
		}
		n.pod = pod
		return pod, nil
	}

	pod, err := n.opts.PodFactory.CreatePod(ctx, n.record.Address)
	if err != nil {
		return nil, errors.Wrap(err, "could not create pod")
	}
	podAddr := pod.Address()
	n.record.PodAddress = &podAddr
	n.pod = pod

	if err := n.opts.Store.SaveNode(rw, n.record); err != nil {
		return nil, errors.Wrap(err, "could not save node")
	}
	if err := n.opts.Events.Append(rw, storage.EventTypePodCreated, struct {
		NodeID uint64         `json:"node_id"`
		Pod    common.Address `json:"pod"`
	}{n.record.Index, podAddr}); err != nil {
		return nil, errors.Wrap(err, "could not append event")
	}

	n.logger.Info("created validator registry account", fields.Pod(podAddr))
	return pod, nil
}

// WithdrawalCredentials derives the credentials binding validator exits to
// the node's pod. Fails until the pod exists.
func (n *Node) WithdrawalCredentials() ([32]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pod == nil {
		return [32]byte{}, ErrNoPod
	}
	return deposit.GenerateWithdrawalCredentials(n.pod.Address()), nil
}

// ReceiveETH accepts ETH pushed by the delayed-withdrawal router.
// Any other sender is rejected.
func (n *Node) ReceiveETH(sender common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sender != n.opts.WithdrawalRouter {
		return errors.Wrapf(ErrNotWithdrawalRouter, "sender %s", sender)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	updated := new(big.Int).Add(n.record.Balance, amount)
	previous := n.record.Balance
	n.record.Balance = updated
	if err := n.opts.Store.SaveNode(nil, n.record); err != nil {
		n.record.Balance = previous
		return errors.Wrap(err, "could not save node")
	}

	n.logger.Debug("received delayed withdrawal", fields.Amount(amount))
	return nil
}

// WithdrawNonBeaconChainETH pulls the pod's full non-principal balance
// toward the node. Gated by the staking-nodes-admin capability.
func (n *Node) WithdrawNonBeaconChainETH(ctx context.Context, caller common.Address) error {
	if !n.opts.Access.HasCapability(caller, access.CapabilityStakingNodesAdmin) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pod == nil {
		return ErrNoPod
	}
	available, err := n.pod.NonBeaconChainETHBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "could not read pod balance")
	}
	if available.Sign() == 0 {
		n.logger.Debug("no non-beacon-chain balance to withdraw")
		return nil
	}
	if err := n.pod.WithdrawNonBeaconChainETHBalance(ctx, n.record.Address, available); err != nil {
		return errors.Wrap(err, "could not withdraw from pod")
	}
	if err := n.opts.Events.Append(nil, storage.EventTypeNonBeaconETHWithdrawn, struct {
		NodeID uint64   `json:"node_id"`
		Amount *big.Int `json:"amount"`
	}{n.record.Index, available}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	n.logger.Info("withdrew non-beacon-chain balance", fields.Amount(available))
	return nil
}

// ProcessDelayedWithdrawals forwards the node's entire balance to the manager
// as consensus-layer rewards. Gated by the staking-nodes-admin capability and
// guarded against re-entry.
func (n *Node) ProcessDelayedWithdrawals(ctx context.Context, caller common.Address) error {
	if !n.opts.Access.HasCapability(caller, access.CapabilityStakingNodesAdmin) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}
	if !n.processGuard.TryLock() {
		return ErrOperationInProgress
	}
	defer n.processGuard.Unlock()

	n.mu.Lock()
	amount := new(big.Int).Set(n.record.Balance)
	n.mu.Unlock()

	if amount.Sign() == 0 {
		return ErrNoBalanceToProcess
	}

	// The balance is cleared only after the manager's forward succeeds, so a
	// rejected transfer leaves the funds here for a later retry.
	if err := n.opts.Rewards.ProcessRewards(ctx, n.record.Index, ConsensusLayerRewards, amount, n); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.record.Balance = new(big.Int).Sub(n.record.Balance, amount)
	if err := n.opts.Store.SaveNode(nil, n.record); err != nil {
		return errors.Wrap(err, "could not save node")
	}
	if err := n.opts.Events.Append(nil, storage.EventTypeWithdrawalsProcessed, struct {
		NodeID uint64   `json:"node_id"`
		Amount *big.Int `json:"amount"`
	}{n.record.Index, amount}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	n.logger.Info("processed delayed withdrawals", fields.Amount(amount))
	return nil
}

// Delegate binds the node's restaked value to an operator. The delegation
// event follows the external call, mirroring when the binding takes effect.
func (n *Node) Delegate(ctx context.Context, caller common.Address, operator common.Address, approverSignature []byte, salt [32]byte) error {
	if !n.opts.Access.HasCapability(caller, access.CapabilityDelegator) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.opts.Delegation.DelegateTo(ctx, n.record.Address, operator, approverSignature, salt); err != nil {
		return errors.Wrap(err, "could not delegate")
	}
	n.record.DelegatedTo = &operator
	if err := n.opts.Store.SaveNode(nil, n.record); err != nil {
		return errors.Wrap(err, "could not save node")
	}
	if err := n.opts.Events.Append(nil, storage.EventTypeNodeDelegated, struct {
		NodeID   uint64         `json:"node_id"`
		Operator common.Address `json:"operator"`
	}{n.record.Index, operator}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	n.logger.Info("delegated", fields.Operator(operator))
	return nil
}

// Undelegate unbinds the node from its operator. The undelegation event is
// recorded ahead of the external call; both land atomically.
func (n *Node) Undelegate(ctx context.Context, caller common.Address) error {
	if !n.opts.Access.HasCapability(caller, access.CapabilityDelegator) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	operator := n.record.DelegatedTo

	txn := n.opts.DB.Begin()
	defer txn.Discard()

	payload := struct {
		NodeID   uint64          `json:"node_id"`
		Operator *common.Address `json:"operator,omitempty"`
	}{n.record.Index, operator}
	if err := n.opts.Events.Append(txn, storage.EventTypeNodeUndelegated, payload); err != nil {
		return errors.Wrap(err, "could not append event")
	}
	if err := n.opts.Delegation.Undelegate(ctx, n.record.Address); err != nil {
		return errors.Wrap(err, "could not undelegate")
	}
	n.record.DelegatedTo = nil
	if err := n.opts.Store.SaveNode(txn, n.record); err != nil {
		return errors.Wrap(err, "could not save node")
	}
	if err := txn.Commit(); err != nil {
		return errors.Wrap(err, "could not commit")
	}

	n.logger.Info("undelegated")
	return nil
}

// AllocateStakedETH strictly increases the node's one-way allocation counter.
// Manager-only; the persisted snapshot is written by the manager inside its
// registration transaction before this memory commit.
func (n *Node) AllocateStakedETH(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.record.AllocatedETH = new(big.Int).Add(n.record.AllocatedETH, amount)
	return nil
}
