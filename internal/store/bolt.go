package store

import (
	"encoding/json"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// BoltStore keeps one bucket per resource kind; inside it documents are
// keyed "{scope}/{name}". Watchers are in-memory, so only mutations made
// through this process are observed.
type BoltStore struct {
	watchHub

	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// splitKey maps "/{kind}/{rest}" to its bucket and in-bucket key.
func splitKey(key string) (bucket, rest []byte, err error) {
	kind, tail, ok := strings.Cut(strings.TrimPrefix(key, "/"), "/")
	if !ok || kind == "" {
		return nil, nil, fmt.Errorf("malformed key %q", key)
	}
	return []byte(kind), []byte(tail), nil
}

func (b *BoltStore) Create(key string, value interface{}) error {
	return b.put(key, value, putCreate)
}

func (b *BoltStore) Update(key string, value interface{}) error {
	return b.put(key, value, putUpdate)
}

func (b *BoltStore) put(key string, value interface{}, mode putMode) error {
	bucket, rest, err := splitKey(key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		if err := mode.check(bkt.Get(rest) != nil); err != nil {
			return err
		}
		return bkt.Put(rest, raw)
	})
	if err != nil {
		return err
	}
	b.notify(mode.event(), key, value)
	return nil
}

func (b *BoltStore) Get(key string, target interface{}) error {
	bucket, rest, err := splitKey(key)
	if err != nil {
		return err
	}
	return b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return ErrNotFound
		}
		raw := bkt.Get(rest)
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, target)
	})
}

// Modify runs inside a single read-write transaction; bolt allows only one
// writer at a time, so the read and the write cannot interleave with others.
func (b *BoltStore) Modify(key string, target interface{}, mutate func() error) error {
	bucket, rest, err := splitKey(key)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return ErrNotFound
		}
		raw := bkt.Get(rest)
		if raw == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return err
		}
		if err := mutate(); err != nil {
			return err
		}
		next, err := json.Marshal(target)
		if err != nil {
			return err
		}
		return bkt.Put(rest, next)
	})
	if err != nil {
		return err
	}
	b.notify(v1alpha1.EventModified, key, target)
	return nil
}

func (b *BoltStore) Delete(key string) error {
	bucket, rest, err := splitKey(key)
	if err != nil {
		return err
	}

	var last interface{}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return ErrNotFound
		}
		raw := bkt.Get(rest)
		if raw == nil {
			return ErrNotFound
		}
		_ = json.Unmarshal(raw, &last)
		return bkt.Delete(rest)
	})
	if err != nil {
		return err
	}
	b.notify(v1alpha1.EventDeleted, key, last)
	return nil
}

// List visits buckets in name order and seeks within each, so results come
// out sorted by full key.
func (b *BoltStore) List(prefix string, factory func() interface{}) ([]interface{}, error) {
	out := []interface{}{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, bkt *bolt.Bucket) error {
			base := "/" + string(name) + "/"
			if !strings.HasPrefix(base, prefix) && !strings.HasPrefix(prefix, base) {
				return nil
			}
			inner := strings.TrimPrefix(prefix, base)
			if len(prefix) < len(base) {
				inner = ""
			}
			c := bkt.Cursor()
			for k, v := c.Seek([]byte(inner)); k != nil && strings.HasPrefix(string(k), inner); k, v = c.Next() {
				target := factory()
				if err := json.Unmarshal(v, target); err != nil {
					return fmt.Errorf("decoding %s%s: %w", base, k, err)
				}
				out = append(out, target)
			}
			return nil
		})
	})
	return out, err
}

func (b *BoltStore) Close() error {
	b.closeAll()
	return b.db.Close()
}
