package cache

import (
	badger "github.com/dgraph-io/badger/v4"
)

// PersistentCache satisfies Cache on top of a badger key/value store,
// for hosts that want kernel RPC cache entries to survive a satellite
// process restart. Subkernel images themselves are never persisted
// here — only cache entries (see DESIGN.md).
type PersistentCache struct {
	db *badger.DB
}

// OpenPersistentCache opens (creating if necessary) a badger database
// at dir.
func OpenPersistentCache(dir string) (*PersistentCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &PersistentCache{db: db}, nil
}

func (c *PersistentCache) Get(key string) ([]byte, bool) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return value, true
}

func (c *PersistentCache) Put(key string, value []byte) bool {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return err == nil
}

func (c *PersistentCache) Close() error {
	return c.db.Close()
}

var _ Cache = (*PersistentCache)(nil)
