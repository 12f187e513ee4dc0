// Package storage persists each named collection as a single JSON array file.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Collection names a persisted record set.
type Collection string

const (
	CollectionUsers    Collection = "users"
	CollectionPosts    Collection = "posts"
	CollectionComments Collection = "comments"
	CollectionLikes    Collection = "likes"
)

// ErrUnavailable indicates the backing file could not be read or written for
// a reason other than absence. Callers may retry; absence is not an error.
var ErrUnavailable = errors.New("storage: backing file unavailable")

var errMissingDataDir = errors.New("storage: data directory is required")

// SaveRecorder receives timing for persisted writes. Implemented by the
// metrics collector; a nil recorder disables reporting.
type SaveRecorder interface {
	RecordStoreSave(collection string, duration time.Duration, failed bool)
}

// StoreConfig describes the dependencies for a Store.
type StoreConfig struct {
	DataDir string
	Logger  *zap.Logger
	Metrics SaveRecorder
}

// Store owns the collection files under a single data directory. One mutex
// per collection serializes file access; cross-collection ordering is the
// caller's concern.
type Store struct {
	dir      string
	logger   *zap.Logger
	metrics  SaveRecorder
	locks    map[Collection]*sync.Mutex
	fallback sync.Mutex
}

// NewStore creates the data directory if needed and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, errMissingDataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrUnavailable, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	locks := make(map[Collection]*sync.Mutex, 4)
	for _, c := range []Collection{CollectionUsers, CollectionPosts, CollectionComments, CollectionLikes} {
		locks[c] = &sync.Mutex{}
	}

	return &Store{
		dir:     cfg.DataDir,
		logger:  logger,
		metrics: cfg.Metrics,
		locks:   locks,
	}, nil
}

// Path returns the backing file for a collection.
func (s *Store) Path(collection Collection) string {
	return filepath.Join(s.dir, string(collection)+".json")
}

func (s *Store) locker(collection Collection) *sync.Mutex {
	if lock, ok := s.locks[collection]; ok {
		return lock
	}
	// Only the four fixed collections get their own lock.
	return &s.fallback
}

// Load reads an entire collection. An absent, empty, or corrupt file yields
// an empty slice: historical data loss is treated as "no data", never as a
// fatal condition.
func Load[T any](s *Store, collection Collection) ([]T, error) {
	lock := s.locker(collection)
	lock.Lock()
	defer lock.Unlock()

	raw, err := os.ReadFile(s.Path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, collection, err)
	}
	if len(raw) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Warn("collection file corrupt, treating as empty",
			zap.String("collection", string(collection)),
			zap.Error(err))
		return []T{}, nil
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Save overwrites a collection with the provided records. The write lands in
// a temp file first and is renamed over the target, so readers never observe
// a truncated array.
func Save[T any](s *Store, collection Collection, records []T) error {
	start := time.Now()
	err := s.save(collection, records)
	if s.metrics != nil {
		s.metrics.RecordStoreSave(string(collection), time.Since(start), err != nil)
	}
	return err
}

func (s *Store) save(collection Collection, records any) error {
	lock := s.locker(collection)
	lock.Lock()
	defer lock.Unlock()

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrUnavailable, collection, err)
	}

	tmp, err := os.CreateTemp(s.dir, string(collection)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: temp file for %s: %v", ErrUnavailable, collection, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, collection, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrUnavailable, collection, err)
	}
	if err := os.Rename(tmpName, s.Path(collection)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", ErrUnavailable, collection, err)
	}
	return nil
}
