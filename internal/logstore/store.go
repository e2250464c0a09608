// Package logstore keeps a bounded, append-only status log in a single XML
// file.
//
// Every request runs Load, Append and Save against the backing file. By
// default nothing serializes that sequence: two overlapping requests can load
// the same state and the later Save discards the earlier record without any
// error. Config.SerializeWrites holds a per-path mutex across the whole
// sequence to close that gap within one process.
package logstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/displaylog/internal/model"
	"github.com/tinytelemetry/displaylog/internal/record"
)

// ErrPersistence wraps any failure to write the backing file.
var ErrPersistence = errors.New("logstore: persistence failed")

// Config holds store parameters.
type Config struct {
	Path            string
	MaxEntries      int
	SerializeWrites bool
}

// Store owns the backing file. It keeps no document state between calls.
type Store struct {
	path       string
	maxEntries int
	lock       *sync.Mutex
}

var _ model.LogStore = (*Store)(nil)

var pathLocks sync.Map // cleaned path -> *sync.Mutex

// New creates a store for cfg.Path. MaxEntries defaults to model.DefaultMaxEntries.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("logstore: path is empty")
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = model.DefaultMaxEntries
	}
	s := &Store{
		path:       cfg.Path,
		maxEntries: maxEntries,
	}
	if cfg.SerializeWrites {
		s.lock = lockFor(cfg.Path)
	}
	return s, nil
}

func lockFor(path string) *sync.Mutex {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	mu, _ := pathLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// MaxEntries returns the record bound.
func (s *Store) MaxEntries() int { return s.maxEntries }

// Load reads the backing file. A missing, unreadable or malformed file yields
// an empty document; ingestion is never blocked by a bad log.
func (s *Store) Load() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", s.path).Msg("logstore: no backing file, starting empty")
		} else {
			log.Warn().Err(err).Str("path", s.path).Msg("logstore: read failed, starting empty")
		}
		return NewDocument()
	}
	doc, err := Parse(data)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("logstore: discarding unreadable log, starting empty")
		return NewDocument()
	}
	return doc
}

// Append adds one record built from fields to doc and returns doc.
// When doc is at capacity exactly one oldest record is evicted first. A
// document already above capacity is trimmed so the bound holds afterwards.
// Append does not touch the backing file.
func (s *Store) Append(doc *Document, fields model.Fields, addr string, now time.Time) *Document {
	if doc == nil {
		doc = NewDocument()
	}
	if over := doc.Len() - (s.maxEntries - 1); over > 0 {
		if over > 1 {
			log.Warn().Int("records", doc.Len()).Int("max_entries", s.maxEntries).Msg("logstore: log above capacity, trimming oldest")
		}
		doc.evictOldest(over)
	}
	doc.push(record.Encode(model.NewLogRecord(now, addr, fields)))
	return doc
}

// Save replaces the backing file with doc. The bytes go to a temporary file
// in the same directory which is renamed into place.
func (s *Store) Save(doc *Document) error {
	if doc == nil {
		doc = NewDocument()
	}
	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// Ingest runs one request: load, append, save. It returns the appended record.
func (s *Store) Ingest(fields model.Fields, addr string, now time.Time) (model.LogRecord, error) {
	if s.lock != nil {
		s.lock.Lock()
		defer s.lock.Unlock()
	}

	doc := s.Append(s.Load(), fields, addr, now)
	if err := s.Save(doc); err != nil {
		return model.LogRecord{}, err
	}
	rec, _ := doc.Last()
	return rec, nil
}

// Records returns the full log, oldest first.
func (s *Store) Records() ([]model.LogRecord, error) {
	return s.Load().Records(), nil
}

// RecordCount returns the number of stored records.
func (s *Store) RecordCount() (int, error) {
	return s.Load().Len(), nil
}

// SnapshotTo writes the current normalized document to dstPath.
func (s *Store) SnapshotTo(dstPath string) error {
	if s.lock != nil {
		s.lock.Lock()
		defer s.lock.Unlock()
	}
	data, err := s.Load().Marshal()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(dstPath, data); err != nil {
		return fmt.Errorf("logstore: snapshot: %w", err)
	}
	return nil
}
