package access

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/storage/basedb"
)

var grantsPrefix = []byte("grants/")

// Grants is a Controller persisting capability grants in the database.
type Grants struct {
	db     basedb.Database
	logger *zap.Logger
	lock   sync.RWMutex
}

type grantRecord struct {
	Capabilities []Capability `json:"capabilities"`
}

// NewGrants creates a store-backed capability controller.
func NewGrants(logger *zap.Logger, db basedb.Database) *Grants {
	return &Grants{
		db:     db,
		logger: logger,
	}
}

// HasCapability implements Controller.
func (g *Grants) HasCapability(account common.Address, capability Capability) bool {
	g.lock.RLock()
	defer g.lock.RUnlock()

	record, found, err := g.get(account)
	if err != nil {
		g.logger.Error("could not read capability grants", zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	for _, c := range record.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Grant adds a capability to the account. Granting twice is a no-op.
func (g *Grants) Grant(account common.Address, capability Capability) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	record, _, err := g.get(account)
	if err != nil {
		return err
	}
	if record == nil {
		record = &grantRecord{}
	}
	for _, c := range record.Capabilities {
		if c == capability {
			return nil
		}
	}
	record.Capabilities = append(record.Capabilities, capability)
	return g.save(account, record)
}

// Revoke removes a capability from the account.
func (g *Grants) Revoke(account common.Address, capability Capability) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	record, found, err := g.get(account)
	if err != nil || !found {
		return err
	}
	kept := record.Capabilities[:0]
	for _, c := range record.Capabilities {
		if c != capability {
			kept = append(kept, c)
		}
	}
	record.Capabilities = kept
	return g.save(account, record)
}

// List returns the capabilities granted to the account.
func (g *Grants) List(account common.Address) ([]Capability, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()

	record, found, err := g.get(account)
	if err != nil || !found {
		return nil, err
	}
	return record.Capabilities, nil
}

func (g *Grants) get(account common.Address) (*grantRecord, bool, error) {
	obj, found, err := g.db.Get(grantsPrefix, account.Bytes())
	if err != nil {
		return nil, found, errors.Wrap(err, "could not get grants")
	}
	if !found {
		return nil, false, nil
	}
	var record grantRecord
	if err := json.Unmarshal(obj.Value, &record); err != nil {
		return nil, true, errors.Wrap(err, "could not unmarshal grants")
	}
	return &record, true, nil
}

func (g *Grants) save(account common.Address, record *grantRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "could not marshal grants")
	}
	return g.db.Set(grantsPrefix, account.Bytes(), raw)
}
