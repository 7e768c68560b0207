package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	SizeBucket     = "SizeSnapshots"
	DisabledBucket = "DisabledEntries"
)

// DB wraps a bbolt database.
type DB struct {
	conn *bbolt.DB
}

// NewBoltDB opens (or creates) the database and makes sure the buckets exist.
func NewBoltDB(dbPath string) (*DB, error) {
	// Timeout keeps a second process from blocking forever on the file lock
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{SizeBucket, DisabledBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &DB{conn: db}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// GetSize returns the cached size of path, or nil if there is none.
func (d *DB) GetSize(path string) (*SizeRecord, error) {
	var rec *SizeRecord
	err := d.conn.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(SizeBucket)).Get([]byte(path))
		if v == nil {
			return nil
		}
		rec = &SizeRecord{}
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// PutSize saves rec, stamping CalculatedAt if unset.
func (d *DB) PutSize(rec *SizeRecord) error {
	if rec.CalculatedAt == 0 {
		rec.CalculatedAt = time.Now().UnixNano()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal size record: %w", err)
	}
	return d.conn.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(SizeBucket)).Put([]byte(rec.Path), data)
	})
}

func (d *DB) DeleteSize(path string) error {
	return d.conn.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(SizeBucket)).Delete([]byte(path))
	})
}

// ListSizes returns every cached size keyed by path.
func (d *DB) ListSizes() (map[string]*SizeRecord, error) {
	result := make(map[string]*SizeRecord)
	err := d.conn.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(SizeBucket)).ForEach(func(k, v []byte) error {
			var rec SizeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode size record %s: %w", string(k), err)
			}
			result[string(k)] = &rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetDisabled adds or removes path from the disabled set.
func (d *DB) SetDisabled(path string, disabled bool) error {
	return d.conn.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(DisabledBucket))
		if !disabled {
			return b.Delete([]byte(path))
		}
		return b.Put([]byte(path), []byte(strconv.FormatInt(time.Now().Unix(), 10)))
	})
}

// ListDisabled returns every disabled path.
func (d *DB) ListDisabled() ([]string, error) {
	var paths []string
	err := d.conn.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(DisabledBucket)).ForEach(func(k, _ []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	return paths, err
}
