// Package journal records watcher recovery cycles for post-mortem
// inspection.
//
// A degraded backend never surfaces to callers as an error; the only trace
// of a dropped-events rescan or a stale-watcher restart is this journal.
// The BoltDB implementation persists across process restarts; the memory
// implementation backs tests.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketReinits = []byte("reinits") // seq -> Entry

// Entry describes one watcher reinitialization.
type Entry struct {
	// Root is the canonical project root that was reinitialized.
	Root string `json:"root"`

	// Reason describes what triggered the reinitialization.
	Reason string `json:"reason"`

	// Time is when the reinitialization was scheduled.
	Time time.Time `json:"time"`
}

// Journal records watcher reinitializations.
type Journal interface {
	// Record appends one entry. Failures are returned but callers treat
	// journaling as best effort.
	Record(entry Entry) error

	// Entries returns recorded entries for root, oldest first. An empty
	// root returns everything.
	Entries(root string) ([]Entry, error)

	// Close releases underlying resources.
	Close() error
}

// boltJournal implements Journal using BoltDB.
type boltJournal struct {
	db *bolt.DB
	mu sync.Mutex
}

// NewBoltJournal opens (or creates) a BoltDB journal at path.
//
// Parameters:
//   - path: database file path
//
// Returns:
//   - Configured Journal
//   - Error if the database cannot be opened
func NewBoltJournal(path string) (Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketReinits)
		return createErr
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &boltJournal{db: db}, nil
}

// Record implements Journal.Record.
func (j *boltJournal) Record(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReinits)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal journal entry: %w", err)
		}

		if putErr := b.Put(key, data); putErr != nil {
			return fmt.Errorf("failed to store journal entry: %w", putErr)
		}

		return nil
	})
}

// Entries implements Journal.Entries.
func (j *boltJournal) Entries(root string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var entries []Entry

	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReinits).ForEach(func(_, data []byte) error {
			var entry Entry
			if unmarshalErr := json.Unmarshal(data, &entry); unmarshalErr != nil {
				return fmt.Errorf("failed to unmarshal journal entry: %w", unmarshalErr)
			}
			if root == "" || entry.Root == root {
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Close implements Journal.Close.
func (j *boltJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

// memoryJournal implements Journal using an in-memory slice.
// Useful for testing.
type memoryJournal struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryJournal creates an in-memory journal.
//
// Returns a configured Journal. Useful for testing or when persistence is
// not needed.
func NewMemoryJournal() Journal {
	return &memoryJournal{}
}

// Record implements Journal.Record.
func (j *memoryJournal) Record(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, entry)
	return nil
}

// Entries implements Journal.Entries.
func (j *memoryJournal) Entries(root string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Entry
	for _, entry := range j.entries {
		if root == "" || entry.Root == root {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Close implements Journal.Close.
func (j *memoryJournal) Close() error {
	return nil
}
