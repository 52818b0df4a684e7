package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var (
	groupsKey = []byte("snapshot:groups")
	boardsKey = []byte("snapshot:boards")
)

// BadgerStore persists snapshots in a BadgerDB instance under two fixed keys.
// The values hold the same JSON documents the file backend writes, so the two
// backends stay interchangeable.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens an ephemeral in-memory instance, used in tests.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Load reads the snapshot keys inside one read transaction. Missing keys
// leave the corresponding part of the snapshot empty.
func (s *BadgerStore) Load() (Snapshot, error) {
	snap := EmptySnapshot()

	err := s.db.View(func(txn *badger.Txn) error {
		if err := readKey(txn, groupsKey, &snap.Groups); err != nil {
			return err
		}
		return readKey(txn, boardsKey, &snap.Boards)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// Save writes both snapshot keys in one transaction.
func (s *BadgerStore) Save(snap Snapshot) error {
	groups, err := json.Marshal(snap.Groups)
	if err != nil {
		return fmt.Errorf("encode groups: %w", err)
	}
	boards, err := json.Marshal(snap.Boards)
	if err != nil {
		return fmt.Errorf("encode boards: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(groupsKey, groups); err != nil {
			return err
		}
		return txn.Set(boardsKey, boards)
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readKey(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
