package storage

import (
	"encoding/binary"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/storage/basedb"
)

var nodesPrefix = []byte("nodes/")

// NodeRecord is the persisted state of a staking node. The index is assigned
// at creation and doubles as the node's position in the manager's arena.
type NodeRecord struct {
	Index              uint64          `json:"index"`
	Address            common.Address  `json:"address"`
	PodAddress         *common.Address `json:"pod_address,omitempty"`
	AllocatedETH       *big.Int        `json:"allocated_eth"`
	Balance            *big.Int        `json:"balance"`
	InitializedVersion uint64          `json:"initialized_version"`
	DelegatedTo        *common.Address `json:"delegated_to,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *NodeRecord) Clone() *NodeRecord {
	clone := *r
	if r.PodAddress != nil {
		pod := *r.PodAddress
		clone.PodAddress = &pod
	}
	if r.AllocatedETH != nil {
		clone.AllocatedETH = new(big.Int).Set(r.AllocatedETH)
	}
	if r.Balance != nil {
		clone.Balance = new(big.Int).Set(r.Balance)
	}
	if r.DelegatedTo != nil {
		op := *r.DelegatedTo
		clone.DelegatedTo = &op
	}
	return &clone
}

// Nodes persists staking node records, keyed by index in creation order.
type Nodes struct {
	db     basedb.Database
	logger *zap.Logger
	lock   sync.RWMutex
}

// NewNodes creates a new node record store.
func NewNodes(logger *zap.Logger, db basedb.Database) *Nodes {
	return &Nodes{
		db:     db,
		logger: logger,
	}
}

// SaveNode writes the record, optionally inside a given transaction.
func (s *Nodes) SaveNode(rw basedb.ReadWriter, record *NodeRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "could not marshal node record")
	}
	return s.db.Using(rw).Set(nodesPrefix, uint64Key(record.Index), raw)
}

// GetNode returns the record at the given index.
func (s *Nodes) GetNode(index uint64) (*NodeRecord, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	obj, found, err := s.db.Get(nodesPrefix, uint64Key(index))
	if err != nil {
		return nil, found, errors.Wrap(err, "could not get node record")
	}
	if !found {
		return nil, false, nil
	}
	var record NodeRecord
	if err := json.Unmarshal(obj.Value, &record); err != nil {
		return nil, true, errors.Wrap(err, "could not unmarshal node record")
	}
	return &record, true, nil
}

// ListNodes returns all records in index order.
func (s *Nodes) ListNodes() ([]NodeRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var records []NodeRecord
	err := s.db.GetAll(nodesPrefix, func(_ int, obj basedb.Obj) error {
		var record NodeRecord
		if err := json.Unmarshal(obj.Value, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list node records")
	}
	return records, nil
}

func uint64Key(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}
