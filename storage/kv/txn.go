package kv

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/fleetstake/fleetstake/storage/basedb"
)

type badgerTxn struct {
	txn *badger.Txn
	db  *BadgerDB
}

func newTxn(txn *badger.Txn, db *BadgerDB) basedb.Txn {
	return &badgerTxn{
		txn: txn,
		db:  db,
	}
}

func (t badgerTxn) Commit() error {
	return t.txn.Commit()
}

func (t badgerTxn) Discard() {
	t.txn.Discard()
}

func (t badgerTxn) Set(prefix []byte, key []byte, value []byte) error {
	return t.txn.Set(append(prefix, key...), value)
}

func (t badgerTxn) Get(prefix []byte, key []byte) (basedb.Obj, bool, error) {
	item, err := t.txn.Get(append(prefix, key...))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return basedb.Obj{}, false, nil
		}
		return basedb.Obj{}, true, err
	}
	resValue, err := item.ValueCopy(nil)
	if err != nil {
		return basedb.Obj{}, true, err
	}
	return basedb.Obj{
		Key:   key,
		Value: resValue,
	}, true, nil
}

func (t badgerTxn) GetAll(prefix []byte, handler func(int, basedb.Obj) error) error {
	return getAll(t.txn, prefix, handler)
}

func (t badgerTxn) Delete(prefix []byte, key []byte) error {
	return t.txn.Delete(append(prefix, key...))
}
