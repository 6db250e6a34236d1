package session

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("portal")

// BoltBackend persists tab storage in a bbolt file so it survives restarts.
// bbolt holds an exclusive file lock while open, so every operation opens
// and closes the file; that lets several portalctl processes share it.
type BoltBackend struct {
	path string
}

func OpenBolt(path string) (*BoltBackend, error) {
	b := &BoltBackend{path: path}
	err := b.update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open state file %s: %w", path, err)
	}
	return b, nil
}

func (b *BoltBackend) open(readOnly bool) (*bbolt.DB, error) {
	return bbolt.Open(b.path, 0o600, &bbolt.Options{Timeout: 2 * time.Second, ReadOnly: readOnly})
}

func (b *BoltBackend) view(fn func(tx *bbolt.Tx) error) error {
	db, err := b.open(true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.View(fn)
}

func (b *BoltBackend) update(fn func(tx *bbolt.Tx) error) error {
	db, err := b.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.Update(fn)
}

func (b *BoltBackend) Get(key string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	err := b.view(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			val, ok = string(v), true
		}
		return nil
	})
	return val, ok, err
}

func (b *BoltBackend) Put(key, value string) error {
	return b.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

func (b *BoltBackend) Delete(key string) error {
	return b.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (b *BoltBackend) Keys(prefix string) ([]string, error) {
	var out []string
	p := []byte(prefix)
	err := b.view(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}
