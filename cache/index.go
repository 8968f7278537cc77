package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// IndexEntry describes one persisted record for listing purposes.
type IndexEntry struct {
	Fingerprint string
	TargetURL   string
	Method      string
	Path        string
	Status      int
	StoredAt    time.Time
}

// RecordIndex is a sqlite table of persisted records, keyed by fingerprint.
// It exists so that tooling can enumerate recordings without walking the
// shard tree; the JSON files remain the source of truth.
type RecordIndex struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// OpenRecordIndex opens (and if needed creates) the index db at filename.
// An empty filename opens a new in-memory db.
func OpenRecordIndex(filename string) (*RecordIndex, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS records (
		fingerprint TEXT PRIMARY KEY,
		target_url TEXT,
		method TEXT,
		path TEXT,
		status INTEGER,
		stored_at INTEGER
	)`)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	return &RecordIndex{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

// Put inserts or replaces the entry for its fingerprint.
func (i *RecordIndex) Put(entry IndexEntry) error {
	i.writeMutex.Lock()
	defer i.writeMutex.Unlock()
	_, err := i.db.Exec(`INSERT OR REPLACE INTO records
		(fingerprint, target_url, method, path, status, stored_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Fingerprint, entry.TargetURL, entry.Method, entry.Path, entry.Status, entry.StoredAt.Unix())
	return err
}

// All returns every indexed record, most recent first.
func (i *RecordIndex) All() ([]IndexEntry, error) {
	entries := make([]IndexEntry, 0)
	rows, err := i.db.Query(`SELECT fingerprint, target_url, method, path, status, stored_at
		FROM records ORDER BY stored_at DESC`)
	if err != nil {
		return entries, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry IndexEntry
		var storedAt int64
		if err := rows.Scan(&entry.Fingerprint, &entry.TargetURL, &entry.Method,
			&entry.Path, &entry.Status, &storedAt); err != nil {
			return entries, err
		}
		entry.StoredAt = time.Unix(storedAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Has checks if the given fingerprint is indexed.
func (i *RecordIndex) Has(fingerprint string) bool {
	var one int
	err := i.db.QueryRow("SELECT 1 FROM records WHERE fingerprint = ?", fingerprint).Scan(&one)
	return err == nil
}

func (i *RecordIndex) Close() error {
	return i.db.Close()
}
