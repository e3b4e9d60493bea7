package manager

import (
	"context"
	"math/big"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/access"
	"github.com/fleetstake/fleetstake/deposit"
	"github.com/fleetstake/fleetstake/logging/fields"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
	"github.com/fleetstake/fleetstake/stakingnode"
	"github.com/fleetstake/fleetstake/storage/basedb"
)

type preparedValidator struct {
	data                  ValidatorData
	withdrawalCredentials [32]byte
}

// RegisterValidators runs the deposit-registration protocol over a batch.
//
// The batch is fully validated before any external effect: node ids, duplicate
// credentials (against the committed set and within the batch itself) and the
// recomputed deposit-data roots. Only then is the pool debited once for the
// whole batch and the per-entry registry deposits performed, with every ledger
// write riding a single transaction that is discarded wholesale on failure.
func (m *StakingNodesManager) RegisterValidators(ctx context.Context, caller common.Address, batch []ValidatorData) error {
	if !m.opts.Access.HasCapability(caller, access.CapabilityValidatorManager) {
		return errors.Wrapf(access.ErrUnauthorized, "caller %s", caller)
	}
	if !m.regGuard.TryLock() {
		return stakingnode.ErrOperationInProgress
	}
	defer m.regGuard.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return ErrValidatorRegistrationPaused
	}
	if len(batch) == 0 {
		return ErrNoValidatorsProvided
	}
	for _, entry := range batch {
		if entry.NodeID >= uint64(len(m.nodes)) {
			return errors.Wrapf(ErrInvalidNodeID, "node id %d", entry.NodeID)
		}
	}

	prepared, err := m.prepareBatch(batch)
	if err != nil {
		return err
	}

	total := new(big.Int).Mul(stakeUnitWei, big.NewInt(int64(len(batch))))
	if err := m.opts.Pool.Withdraw(ctx, total); err != nil {
		return errors.Wrap(err, "could not withdraw from liquidity pool")
	}

	deposited := 0
	deltas := make(map[uint64]*big.Int)
	err = m.opts.DB.Update(func(txn basedb.Txn) error {
		for _, p := range prepared {
			if err := m.registerValidator(ctx, txn, p, deltas); err != nil {
				return err
			}
			deposited++
		}
		return nil
	})
	if err != nil {
		m.refundUnspent(ctx, total, deposited)
		return err
	}

	for nodeID, delta := range deltas {
		if err := m.nodes[nodeID].AllocateStakedETH(delta); err != nil {
			return errors.Wrapf(err, "could not allocate to node %d", nodeID)
		}
	}
	metricValidatorsRegistered.Add(float64(len(batch)))

	m.logger.Info("registered validators",
		fields.BatchSize(len(batch)),
		fields.Amount(total),
	)
	return nil
}

// prepareBatch checks every entry before any value moves: duplicate
// credentials, pod presence and the commitment integrity gate.
func (m *StakingNodesManager) prepareBatch(batch []ValidatorData) ([]preparedValidator, error) {
	seen := make(map[phase0.BLSPubKey]struct{}, len(batch))
	prepared := make([]preparedValidator, 0, len(batch))
	for _, entry := range batch {
		if _, dup := seen[entry.PublicKey]; dup {
			return nil, errors.Wrapf(ErrValidatorAlreadyUsed, "public key %s", entry.PublicKey)
		}
		used, err := m.opts.Validators.IsCredentialUsed(entry.PublicKey)
		if err != nil {
			return nil, errors.Wrap(err, "could not check used credentials")
		}
		if used {
			return nil, errors.Wrapf(ErrValidatorAlreadyUsed, "public key %s", entry.PublicKey)
		}
		seen[entry.PublicKey] = struct{}{}

		wc, err := m.nodes[entry.NodeID].WithdrawalCredentials()
		if err != nil {
			return nil, errors.Wrapf(err, "node %d", entry.NodeID)
		}
		root := deposit.GenerateDepositRoot(entry.PublicKey, entry.Signature, wc, StakeUnitGwei)
		if root != entry.DepositDataRoot {
			return nil, errors.Wrapf(ErrDepositDataRootMismatch,
				"public key %s: expected %s, got %s", entry.PublicKey, root, entry.DepositDataRoot)
		}
		prepared = append(prepared, preparedValidator{
			data:                  entry,
			withdrawalCredentials: wc,
		})
	}
	return prepared, nil
}

// registerValidator commits one entry: consume the credential, perform the
// irreversible registry deposit, append the ledger entry and stage the node's
// allocation. The integrity checks already ran in prepareBatch, preserving
// the check-before-transfer ordering.
func (m *StakingNodesManager) registerValidator(ctx context.Context, txn basedb.Txn, p preparedValidator, deltas map[uint64]*big.Int) error {
	entry := p.data
	if err := m.opts.Validators.MarkCredentialUsed(txn, entry.PublicKey, entry.NodeID); err != nil {
		return errors.Wrap(err, "could not mark credential used")
	}
	if err := m.opts.DepositContract.Deposit(ctx, entry.PublicKey, p.withdrawalCredentials, entry.Signature, entry.DepositDataRoot, StakeUnitGwei); err != nil {
		return errors.Wrap(err, "could not deposit to validator registry")
	}
	if _, err := m.opts.Validators.AppendValidator(txn, entry.PublicKey, entry.NodeID); err != nil {
		return err
	}

	node := m.nodes[entry.NodeID]
	delta, ok := deltas[entry.NodeID]
	if !ok {
		delta = new(big.Int)
		deltas[entry.NodeID] = delta
	}
	delta.Add(delta, stakeUnitWei)

	staged := node.Record()
	staged.AllocatedETH = new(big.Int).Add(staged.AllocatedETH, delta)
	if err := m.opts.Nodes.SaveNode(txn, staged); err != nil {
		return errors.Wrap(err, "could not save node")
	}

	if err := m.opts.Events.Append(txn, registrystorage.EventTypeValidatorRegistered, struct {
		NodeID                uint64              `json:"node_id"`
		PublicKey             phase0.BLSPubKey    `json:"public_key"`
		Signature             phase0.BLSSignature `json:"signature"`
		DepositDataRoot       phase0.Root         `json:"deposit_data_root"`
		WithdrawalCredentials string              `json:"withdrawal_credentials"`
	}{entry.NodeID, entry.PublicKey, entry.Signature, entry.DepositDataRoot,
		hexutil.Encode(p.withdrawalCredentials[:])}); err != nil {
		return errors.Wrap(err, "could not append event")
	}

	m.logger.Debug("registered validator",
		fields.NodeID(entry.NodeID),
		fields.PubKey(entry.PublicKey),
		fields.DepositRoot(entry.DepositDataRoot),
	)
	return nil
}

// refundUnspent returns withdrawn but undeposited funds to the pool after an
// aborted batch. Deposits already sent are irreversible; they are surfaced
// for reconciliation since their ledger entries were rolled back.
func (m *StakingNodesManager) refundUnspent(ctx context.Context, total *big.Int, deposited int) {
	spent := new(big.Int).Mul(stakeUnitWei, big.NewInt(int64(deposited)))
	unspent := new(big.Int).Sub(total, spent)
	if unspent.Sign() > 0 {
		if err := m.opts.Pool.Deposit(ctx, unspent); err != nil {
			m.logger.Error("could not return unspent funds to pool",
				fields.Amount(unspent), zap.Error(err))
		}
	}
	if deposited > 0 {
		m.logger.Error("batch aborted after irreversible deposits",
			fields.Count(deposited), fields.Amount(spent))
	}
}
