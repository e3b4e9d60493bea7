package kv

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/logging"
	"github.com/fleetstake/fleetstake/storage/basedb"
)

// BadgerDB struct
type BadgerDB struct {
	db     *badger.DB
	logger *zap.Logger
}

// New creates a persistent DB instance.
func New(logger *zap.Logger, options basedb.Options) (*BadgerDB, error) {
	return createDB(logger, options, options.InMemory)
}

// NewInMemory creates an in-memory DB instance.
func NewInMemory(logger *zap.Logger, options basedb.Options) (*BadgerDB, error) {
	return createDB(logger, options, true)
}

func createDB(logger *zap.Logger, options basedb.Options, inMemory bool) (*BadgerDB, error) {
	opt := badger.DefaultOptions(options.Path)
	if inMemory {
		opt.InMemory = true
		opt.Dir = ""
		opt.ValueDir = ""
	}
	opt.ValueLogFileSize = 1024 * 1024 * 100 // TODO: tune
	opt.Logger = newLogger(logger.Named(logging.NameBadgerDBLog))

	db, err := badger.Open(opt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger")
	}

	badgerDB := BadgerDB{
		db:     db,
		logger: logger,
	}

	logger.Info("Badger db initialized")
	return &badgerDB, nil
}

// Begin creates a read-write transaction.
func (b *BadgerDB) Begin() basedb.Txn {
	txn := b.db.NewTransaction(true)
	return newTxn(txn, b)
}

// Using returns the given ReadWriter, falling back to the database itself.
func (b *BadgerDB) Using(rw basedb.ReadWriter) basedb.ReadWriter {
	if rw == nil {
		return b
	}
	return rw
}

// Set save value with key to storage
func (b *BadgerDB) Set(prefix []byte, key []byte, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(prefix, key...), value)
	})
}

// Get return value for specified key
func (b *BadgerDB) Get(prefix []byte, key []byte) (basedb.Obj, bool, error) {
	var resValue []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(append(prefix, key...))
		if err != nil {
			return err
		}
		resValue, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return basedb.Obj{}, false, nil
	}
	if err != nil {
		return basedb.Obj{}, true, err
	}
	return basedb.Obj{
		Key:   key,
		Value: resValue,
	}, true, nil
}

// GetAll returns all objects under the given prefix, in key order.
func (b *BadgerDB) GetAll(prefix []byte, handler func(int, basedb.Obj) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return getAll(txn, prefix, handler)
	})
}

// Delete removes the given key.
func (b *BadgerDB) Delete(prefix []byte, key []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(append(prefix, key...))
	})
}

// CountPrefix returns the number of keys under the given prefix.
func (b *BadgerDB) CountPrefix(prefix []byte) (int64, error) {
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.Prefix = prefix
		opt.PrefetchValues = false
		it := txn.NewIterator(opt)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Update runs fn inside a single read-write transaction,
// committing on success and discarding on any error.
func (b *BadgerDB) Update(fn func(basedb.Txn) error) error {
	txn := b.Begin()
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	if err := b.db.Close(); err != nil {
		b.logger.Fatal("failed to close db", zap.Error(err))
	}
	return nil
}

func getAll(txn *badger.Txn, prefix []byte, handler func(int, basedb.Obj) error) error {
	opt := badger.DefaultIteratorOptions
	opt.Prefix = prefix
	it := txn.NewIterator(opt)
	defer it.Close()

	i := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		trimmedKey := bytes.TrimPrefix(item.KeyCopy(nil), prefix)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := handler(i, basedb.Obj{Key: trimmedKey, Value: val}); err != nil {
			return err
		}
		i++
	}
	return nil
}
