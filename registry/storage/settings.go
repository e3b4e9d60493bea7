package storage

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/storage/basedb"
)

var (
	settingsPrefix = []byte("settings/")

	maxNodeCountKey    = []byte("max_node_count")
	pausedKey          = []byte("registration_paused")
	templateVersionKey = []byte("template_version")
)

// Settings persists the manager's scalar configuration state.
type Settings struct {
	db     basedb.Database
	logger *zap.Logger
	lock   sync.RWMutex
}

// NewSettings creates a new settings store.
func NewSettings(logger *zap.Logger, db basedb.Database) *Settings {
	return &Settings{
		db:     db,
		logger: logger,
	}
}

// GetMaxNodeCount returns the persisted node cap.
func (s *Settings) GetMaxNodeCount() (uint64, bool, error) {
	return s.getUint64(maxNodeCountKey)
}

// SetMaxNodeCount persists the node cap.
func (s *Settings) SetMaxNodeCount(rw basedb.ReadWriter, count uint64) error {
	return s.setUint64(rw, maxNodeCountKey, count)
}

// GetRegistrationPaused returns the persisted pause flag.
func (s *Settings) GetRegistrationPaused() (bool, error) {
	v, found, err := s.getUint64(pausedKey)
	return found && v != 0, err
}

// SetRegistrationPaused persists the pause flag.
func (s *Settings) SetRegistrationPaused(rw basedb.ReadWriter, paused bool) error {
	v := uint64(0)
	if paused {
		v = 1
	}
	return s.setUint64(rw, pausedKey, v)
}

// GetTemplateVersion returns the registered implementation template version.
func (s *Settings) GetTemplateVersion() (uint64, bool, error) {
	return s.getUint64(templateVersionKey)
}

// SetTemplateVersion persists the implementation template version.
func (s *Settings) SetTemplateVersion(rw basedb.ReadWriter, version uint64) error {
	return s.setUint64(rw, templateVersionKey, version)
}

func (s *Settings) getUint64(key []byte) (uint64, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	obj, found, err := s.db.Get(settingsPrefix, key)
	if err != nil {
		return 0, found, errors.Wrapf(err, "could not get setting %s", key)
	}
	if !found || len(obj.Value) != 8 {
		return 0, found, nil
	}
	return binary.BigEndian.Uint64(obj.Value), true, nil
}

func (s *Settings) setUint64(rw basedb.ReadWriter, key []byte, v uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.db.Using(rw).Set(settingsPrefix, key, uint64Key(v))
}
