package database

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var leveldbDriver = Driver{
	DbType: "leveldb",
	Open:   openLevelDB,
}

type leveldbBackend struct {
	db *leveldb.DB
}

func openLevelDB(path string) (Backend, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
	})
	if err != nil {
		return nil, err
	}
	return &leveldbBackend{db: db}, nil
}

func (l *leveldbBackend) Get(key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (l *leveldbBackend) Scan(prefix, start []byte, fn func(key, value []byte) error) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	if len(start) == 0 {
		start = prefix
	}
	for ok := it.Seek(start); ok; ok = it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return it.Error()
}

func (l *leveldbBackend) Write(ops []Op) error {
	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Delete {
			batch.Delete(op.Key)
		} else {
			batch.Put(op.Key, op.Value)
		}
	}
	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (l *leveldbBackend) Compact() error {
	return l.db.CompactRange(util.Range{})
}

func (l *leveldbBackend) Close() error {
	return l.db.Close()
}
