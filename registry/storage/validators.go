package storage

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/storage/basedb"
)

var (
	validatorsPrefix    = []byte("validators/")
	usedCredsPrefix     = []byte("usedcreds/")
	validatorsSeqPrefix = []byte("validators_seq/")
	validatorsSeqKey    = []byte("next")
)

// ValidatorRecord is one committed entry of the validator ledger.
// The ledger is append-only; records are never removed.
type ValidatorRecord struct {
	Index     uint64           `json:"index"`
	PublicKey phase0.BLSPubKey `json:"public_key"`
	NodeID    uint64           `json:"node_id"`
}

// Validators persists the committed-validator ledger and the used-credential
// membership set. Writes normally ride the caller's transaction so a failed
// registration batch leaves both untouched.
type Validators struct {
	db     basedb.Database
	logger *zap.Logger
	lock   sync.RWMutex
}

// NewValidators creates a new validator ledger store.
func NewValidators(logger *zap.Logger, db basedb.Database) *Validators {
	return &Validators{
		db:     db,
		logger: logger,
	}
}

// AppendValidator appends a ledger entry, assigning the next sequence index.
func (s *Validators) AppendValidator(rw basedb.ReadWriter, publicKey phase0.BLSPubKey, nodeID uint64) (*ValidatorRecord, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	accessor := s.db.Using(rw)

	next := uint64(0)
	obj, found, err := accessor.Get(validatorsSeqPrefix, validatorsSeqKey)
	if err != nil {
		return nil, errors.Wrap(err, "could not read validator sequence")
	}
	if found {
		next = binary.BigEndian.Uint64(obj.Value)
	}

	record := &ValidatorRecord{
		Index:     next,
		PublicKey: publicKey,
		NodeID:    nodeID,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal validator record")
	}
	if err := accessor.Set(validatorsPrefix, uint64Key(next), raw); err != nil {
		return nil, errors.Wrap(err, "could not append validator record")
	}
	if err := accessor.Set(validatorsSeqPrefix, validatorsSeqKey, uint64Key(next+1)); err != nil {
		return nil, errors.Wrap(err, "could not bump validator sequence")
	}
	return record, nil
}

// MarkCredentialUsed inserts the public key into the used set.
func (s *Validators) MarkCredentialUsed(rw basedb.ReadWriter, publicKey phase0.BLSPubKey, nodeID uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.db.Using(rw).Set(usedCredsPrefix, publicKey[:], uint64Key(nodeID))
}

// IsCredentialUsed reports membership of the public key in the used set.
func (s *Validators) IsCredentialUsed(publicKey phase0.BLSPubKey) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, found, err := s.db.Get(usedCredsPrefix, publicKey[:])
	if err != nil {
		return false, errors.Wrap(err, "could not read used credential")
	}
	return found, nil
}

// ListValidators returns the full ledger in append order.
func (s *Validators) ListValidators() ([]ValidatorRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var records []ValidatorRecord
	err := s.db.GetAll(validatorsPrefix, func(_ int, obj basedb.Obj) error {
		var record ValidatorRecord
		if err := json.Unmarshal(obj.Value, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list validator records")
	}
	return records, nil
}

// CountValidators returns the ledger length.
func (s *Validators) CountValidators() (int64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.db.CountPrefix(validatorsPrefix)
}
