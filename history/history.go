// Package history keeps completed dictations in a local badger database so
// they can be listed and pasted again later.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"murmur/dictation"
	"murmur/log"
)

var ErrNotFound = errors.New("history entry not found")

var (
	entryPrefix = []byte("entry/")
	idPrefix    = []byte("id/")
)

type Entry struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Result    dictation.Result `json:"result"`
}

type Store struct {
	db *badger.DB

	mu   sync.Mutex
	last time.Time
}

// Open opens (or creates) the store in dir. An empty dir keeps everything in
// memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{}).WithNumVersionsToKeep(1)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// entry/<unix nanos, big endian>/<id> sorts oldest first.
func entryKey(at time.Time, id string) []byte {
	k := make([]byte, 0, len(entryPrefix)+9+len(id))
	k = append(k, entryPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(at.UnixNano()))
	k = append(k, '/')
	return append(k, id...)
}

func idKey(id string) []byte {
	return append(append([]byte(nil), idPrefix...), id...)
}

// Add stores r and returns the new entry.
func (s *Store) Add(r dictation.Result) (Entry, error) {
	e := Entry{ID: uuid.NewString(), CreatedAt: s.now(), Result: r}
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	key := entryKey(e.CreatedAt, e.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idKey(e.ID), key)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("saving history entry: %w", err)
	}
	return e, nil
}

// now is strictly increasing so entries keep their insertion order.
func (s *Store) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		return eachNewest(txn, func(item *badger.Item) (bool, error) {
			var e Entry
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return false, err
			}
			out = append(out, e)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return out, nil
}

func (s *Store) Get(id string) (Entry, error) {
	var e Entry
	err := s.db.View(func(txn *badger.Txn) error {
		key, err := lookup(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &e) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (s *Store) Delete(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key, err := lookup(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// Prune deletes all but the newest keep entries and reports how many went.
func (s *Store) Prune(keep int) (int, error) {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		seen := 0
		return eachNewest(txn, func(item *badger.Item) (bool, error) {
			seen++
			if seen > keep {
				stale = append(stale, item.KeyCopy(nil))
			}
			return true, nil
		})
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		id := key[len(entryPrefix)+9:]
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
		if err := wb.Delete(idKey(string(id))); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	if len(stale) > 0 {
		log.Infof("history_pruned: %d", len(stale))
	}
	return len(stale), nil
}

func lookup(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// eachNewest walks entries newest first until fn returns false.
func eachNewest(txn *badger.Txn, fn func(*badger.Item) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = entryPrefix
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte(nil), entryPrefix...), 0xff)
	for it.Seek(seek); it.ValidForPrefix(entryPrefix); it.Next() {
		more, err := fn(it.Item())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// badgerLogger routes badger's own logging into the diagnostics log.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, a ...any)   { log.Errorf("badger: "+f, a...) }
func (badgerLogger) Warningf(f string, a ...any) { log.Warnf("badger: "+f, a...) }
func (badgerLogger) Infof(f string, a ...any)    { log.Debugf("badger: "+f, a...) }
func (badgerLogger) Debugf(f string, a ...any)   { log.Debugf("badger: "+f, a...) }
