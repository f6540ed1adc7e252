package database

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var badgerDriver = Driver{
	DbType: "badger",
	Open:   openBadger,
	UseLogger: func(logger *logrus.Entry) {
		badgerLog = logger
	},
}

// badgerLog receives badger's own warnings. logrus.Entry satisfies
// badger.Logger.
var badgerLog badger.Logger

type badgerBackend struct {
	db *badger.DB
}

func openBadger(path string) (Backend, error) {
	opts := badger.DefaultOptions(path).
		WithDir(path).WithValueDir(path).
		WithLoggingLevel(badger.WARNING)
	if badgerLog != nil {
		opts = opts.WithLogger(badgerLog)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerBackend{db: db}, nil
}

func (b *badgerBackend) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (b *badgerBackend) Scan(prefix, start []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		if len(start) == 0 {
			start = prefix
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Write goes through a WriteBatch, which is not atomic across transaction
// boundaries. The Vec flush protocol does not rely on atomicity.
func (b *badgerBackend) Write(ops []Op) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, op := range ops {
		var err error
		if op.Delete {
			err = wb.Delete(op.Key)
		} else {
			err = wb.Set(op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *badgerBackend) Compact() error {
	for {
		err := b.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		return err
	}
}

func (b *badgerBackend) Close() error {
	return b.db.Close()
}
