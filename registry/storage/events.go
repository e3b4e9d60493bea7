package storage

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/storage/basedb"
)

var (
	eventsPrefix    = []byte("events/")
	eventsSeqPrefix = []byte("events_seq/")
	eventsSeqKey    = []byte("next")
)

// Event types recorded in the observable log.
const (
	EventTypeNodeCreated              = "node_created"
	EventTypeNodeInitialized          = "node_initialized"
	EventTypePodCreated               = "pod_created"
	EventTypeValidatorRegistered      = "validator_registered"
	EventTypeMaxNodeCountUpdated      = "max_node_count_updated"
	EventTypePauseStateChanged        = "registration_pause_updated"
	EventTypeRewardsProcessed         = "rewards_processed"
	EventTypeImplementationRegistered = "implementation_registered"
	EventTypeImplementationUpgraded   = "implementation_upgraded"
	EventTypeNodeDelegated            = "node_delegated"
	EventTypeNodeUndelegated          = "node_undelegated"
	EventTypeWithdrawalsProcessed     = "delayed_withdrawals_processed"
	EventTypeNonBeaconETHWithdrawn    = "non_beacon_eth_withdrawn"
)

// Event is one entry of the append-only observable log.
type Event struct {
	Seq  uint64          `json:"seq"`
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Events is the append-only event log. Appends ride the caller's transaction
// so events from an aborted operation never become observable.
type Events struct {
	db     basedb.Database
	logger *zap.Logger
	lock   sync.Mutex
}

// NewEvents creates a new event log store.
func NewEvents(logger *zap.Logger, db basedb.Database) *Events {
	return &Events{
		db:     db,
		logger: logger,
	}
}

// Append records an event of the given type with a JSON payload.
func (s *Events) Append(rw basedb.ReadWriter, eventType string, data interface{}) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	accessor := s.db.Using(rw)

	next := uint64(0)
	obj, found, err := accessor.Get(eventsSeqPrefix, eventsSeqKey)
	if err != nil {
		return errors.Wrap(err, "could not read event sequence")
	}
	if found {
		next = binary.BigEndian.Uint64(obj.Value)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "could not marshal event payload")
	}
	event := Event{
		Seq:  next,
		Type: eventType,
		Time: time.Now().UTC(),
		Data: raw,
	}
	encoded, err := json.Marshal(&event)
	if err != nil {
		return errors.Wrap(err, "could not marshal event")
	}
	if err := accessor.Set(eventsPrefix, uint64Key(next), encoded); err != nil {
		return errors.Wrap(err, "could not append event")
	}
	return accessor.Set(eventsSeqPrefix, eventsSeqKey, uint64Key(next+1))
}

// List returns all events in append order.
func (s *Events) List() ([]Event, error) {
	var events []Event
	err := s.db.GetAll(eventsPrefix, func(_ int, obj basedb.Obj) error {
		var event Event
		if err := json.Unmarshal(obj.Value, &event); err != nil {
			return err
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list events")
	}
	return events, nil
}
