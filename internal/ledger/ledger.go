// Package ledger keeps a local record of every message id this installation
// has issued, so ids are never handed out twice and decoded messages can be
// matched to the encode that produced them. It never stores text or
// passphrases.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "msg/"

var (
	ErrExists   = errors.New("ledger: message id already issued")
	ErrNotFound = errors.New("ledger: message id not found")
	ErrNoPath   = errors.New("ledger: no path configured")
)

// Entry describes one issued message.
type Entry struct {
	MessageID   string    `json:"message_id"`
	TotalChunks int       `json:"total_chunks"`
	ChunkSize   int       `json:"chunk_size"`
	Digest      string    `json:"sha256"`
	Encrypted   bool      `json:"encrypted"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
}

type Config struct {
	// Path is the badger directory. It is created when missing.
	Path string
	// InMemory keeps the ledger in memory only; Path is ignored.
	InMemory bool
	Logger   *slog.Logger
}

// Ledger is a badger-backed set of issued message ids. It is safe for
// concurrent use.
type Ledger struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens or creates the ledger described by conf.
func Open(conf Config) (*Ledger, error) { // A
	if conf.Logger == nil {
		conf.Logger = slog.Default()
	}

	var opts badger.Options
	if conf.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if conf.Path == "" {
			return nil, ErrNoPath
		}
		if err := os.MkdirAll(conf.Path, 0o700); err != nil {
			return nil, fmt.Errorf("ledger: create %s: %w", conf.Path, err)
		}
		opts = badger.DefaultOptions(conf.Path)
		opts.ValueLogFileSize = 16 << 20
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	conf.Logger.Debug("ledger opened", "path", conf.Path, "inMemory", conf.InMemory)
	return &Ledger{db: db, log: conf.Logger}, nil
}

// Reserve records e if its message id has never been issued, and fails with
// ErrExists otherwise. The check and the write are one transaction.
func (l *Ledger) Reserve(e Entry) error { // A
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: encode entry: %w", err)
	}
	key := []byte(keyPrefix + e.MessageID)

	err = l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return ErrExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return fmt.Errorf("%w: %s", ErrExists, e.MessageID)
		}
		return fmt.Errorf("ledger: reserve: %w", err)
	}
	return nil
}

// Release forgets id, for reservations whose sheet was never produced.
// Releasing an unknown id is not an error.
func (l *Ledger) Release(id string) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("ledger: release: %w", err)
	}
	return nil
}

// Lookup returns the entry issued for id.
func (l *Ledger) Lookup(id string) (Entry, error) {
	var e Entry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: lookup: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (l *Ledger) List(limit int) ([]Entry, error) {
	var entries []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].MessageID < entries[j].MessageID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close flushes and closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}
