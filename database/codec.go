package database

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
)

// Uint64Key encodes i big-endian so keys sort numerically.
func Uint64Key(i uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, i)
	return key
}

// KeyToUint64 is the inverse of Uint64Key.
func KeyToUint64(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

func EncodeValue[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeValue[T any](data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}

// GetValue reads and decodes key from vec.
func GetValue[T any](vec *Vec, key []byte, policy ReadPolicy) (T, error) {
	data, err := vec.Get(key, policy)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeValue[T](data)
}

// PutValue encodes v and buffers it under key.
func PutValue[T any](vec *Vec, key []byte, v T) error {
	data, err := EncodeValue(v)
	if err != nil {
		return err
	}
	vec.Put(key, data)
	return nil
}
