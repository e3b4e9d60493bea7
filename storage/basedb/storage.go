package basedb

import (
	"context"
)

// Options for creating all db type
type Options struct {
	Ctx      context.Context
	Path     string `yaml:"Path" env:"DB_PATH" env-default:"./data/db" env-description:"Database storage directory path"`
	InMemory bool   `yaml:"InMemory" env:"DB_IN_MEMORY" env-default:"false" env-description:"Keep the database in memory (testing only)"`
}

// Reader is a read-only accessor to the database.
type Reader interface {
	Get(prefix []byte, key []byte) (Obj, bool, error)
	GetAll(prefix []byte, handler func(int, Obj) error) error
}

// ReadWriter is a read-write accessor to the database.
type ReadWriter interface {
	Reader
	Set(prefix []byte, key []byte, value []byte) error
	Delete(prefix []byte, key []byte) error
}

// Txn is a read-write transaction.
type Txn interface {
	ReadWriter
	Commit() error
	Discard()
}

// Database is the interface for key-value stores.
type Database interface {
	ReadWriter

	Begin() Txn
	Using(rw ReadWriter) ReadWriter

	CountPrefix(prefix []byte) (int64, error)
	Update(fn func(Txn) error) error
	Close() error
}

// Obj struct for getting key/value from storage
type Obj struct {
	Key   []byte
	Value []byte
}
