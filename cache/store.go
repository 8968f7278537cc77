package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Store reads and writes cache records as JSON files under a fixed root
// directory. Paths are produced by the fingerprint computer and shard records
// into two-level directories. There is no expiry and no size cap: once
// written, a record is replayed until the file is removed out of band.
//
// There is also no locking: concurrent writes to the same path are
// last-writer-wins, and a crash mid-write may leave a truncated record.
type Store struct {
	// Root directory of the cache.
	Dir string

	index *RecordIndex
}

// NewStore creates a store rooted at dir. The index may be nil, in which case
// no record index is maintained.
func NewStore(dir string, index *RecordIndex) *Store {
	return &Store{Dir: dir, index: index}
}

// Get returns the response side of the record at path.
// A missing file returns (nil, nil). A file that exists but cannot be parsed
// is surfaced as an error, never treated as a miss.
func (s *Store) Get(path string) (*ResponseRecord, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache record: %w", err)
	}
	var record CacheRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("parsing cache record %s: %w", path, err)
	}
	return &record.Response, nil
}

// Put persists {request, response} at path, masking the request's
// authorization header in the stored copy and creating the shard directory if
// needed. The whole file is written in one go; partial writes are not
// recovered. The record index, if any, is updated best-effort.
func (s *Store) Put(path string, req RequestRecord, res ResponseRecord) error {
	req.Headers = maskAuth(req.Headers)
	record := CacheRecord{Request: req, Response: res}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("serializing cache record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache shard: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing cache record: %w", err)
	}
	if s.index != nil {
		entry := IndexEntry{
			Fingerprint: Fingerprint(path),
			TargetURL:   req.TargetURL,
			Method:      req.Method,
			Path:        req.Path,
			Status:      res.StatusCode,
			StoredAt:    time.Now(),
		}
		if err := s.index.Put(entry); err != nil {
			// the record file is already on disk, an index failure only
			// degrades listing
			log.Warn().Err(err).Str("fingerprint", entry.Fingerprint).
				Msg("Could not update record index")
		}
	}
	return nil
}

// Fingerprint extracts the fingerprint from a record path.
func Fingerprint(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}
