// Package checkpoint persists run progress in a bbolt file so an interrupted
// run can continue where its last committed chunk ended.
package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"
)

const (
	bucketName = "rsort"
	stateKey   = "state"

	// Version is bumped when State changes incompatibly.
	Version = 1
)

// ErrMismatch is returned by State.Check when a checkpoint belongs to a
// different input or chunking.
var ErrMismatch = errors.New("checkpoint does not match this run")

// Identity pins a checkpoint to an input file and chunk plan.
type Identity struct {
	InputPath    string `json:"input_path"`
	InputSize    int64  `json:"input_size"`
	InputModTime int64  `json:"input_mtime_ns"`
	ChunkSize    int64  `json:"chunk_size"`
}

// State is what survives between runs.
type State struct {
	Version int `json:"version"`
	Identity
	ChunksDone        int    `json:"chunks_done"`
	OutputBytes       int64  `json:"output_bytes"`
	LinesProcessed    uint64 `json:"lines_processed"`
	DuplicatesRemoved uint64 `json:"duplicates_removed"`
	InvalidLines      uint64 `json:"invalid_lines"`
	// ElapsedNanos accumulates wall time across resumed runs.
	ElapsedNanos int64     `json:"elapsed_ns"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Check returns ErrMismatch, wrapped with the differing field, unless s was
// written for id.
func (s *State) Check(id Identity) error {
	switch {
	case s.Version != Version:
		return fmt.Errorf("%w: version %d, want %d", ErrMismatch, s.Version, Version)
	case s.InputPath != id.InputPath:
		return fmt.Errorf("%w: input %q, want %q", ErrMismatch, s.InputPath, id.InputPath)
	case s.InputSize != id.InputSize:
		return fmt.Errorf("%w: input size %d, want %d", ErrMismatch, s.InputSize, id.InputSize)
	case s.InputModTime != id.InputModTime:
		return fmt.Errorf("%w: input modified since checkpoint", ErrMismatch)
	case s.ChunkSize != id.ChunkSize:
		return fmt.Errorf("%w: chunk size %d, want %d", ErrMismatch, s.ChunkSize, id.ChunkSize)
	}
	return nil
}

// Store is a single-run checkpoint file.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the checkpoint file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s (locked by another run?): %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint bucket: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Load returns the saved state. ok is false when nothing was saved.
func (s *Store) Load() (*State, bool, error) {
	var st *State
	err := s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket([]byte(bucketName)).Get([]byte(stateKey))
		if val == nil {
			return nil
		}
		st = new(State)
		return json.Unmarshal(val, st)
	})
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return st, st != nil, nil
}

// Save replaces the saved state. Version and UpdatedAt are filled in.
func (s *Store) Save(st State) error {
	st.Version = Version
	st.UpdatedAt = time.Now().UTC()
	val, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(stateKey), val)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear removes the saved state.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(stateKey))
	})
	if err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
