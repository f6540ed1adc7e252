package database

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltDriver = Driver{
	DbType: "bolt",
	Open:   openBolt,
}

var boltBucket = []byte("cohortd")

const boltFileName = "data.bolt"

type boltBackend struct {
	db *bolt.DB
}

func openBolt(path string) (Backend, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(path, boltFileName), 0600,
		&bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltBackend{db: db}, nil
}

func (b *boltBackend) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		value = bytes.Clone(v)
		return nil
	})
	return value, err
}

func (b *boltBackend) Scan(prefix, start []byte, fn func(key, value []byte) error) error {
	if len(start) == 0 {
		start = prefix
	}
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(bytes.Clone(k), bytes.Clone(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBackend) Write(ops []Op) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		for _, op := range ops {
			var err error
			if op.Delete {
				err = bucket.Delete(op.Key)
			} else {
				err = bucket.Put(op.Key, op.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBackend) Compact() error {
	return nil
}

func (b *boltBackend) Close() error {
	return b.db.Close()
}
