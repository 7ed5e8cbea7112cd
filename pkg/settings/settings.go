// Package settings persists calibration breakpoints and effect configuration
// as a versioned, checksummed record. A record that fails validation is
// reported as ErrCorrupt so the caller can fall back to defaults.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/charlie0129/afterfire/pkg/effect"
	"github.com/charlie0129/afterfire/pkg/throttle"
)

// Version is bumped whenever Settings changes shape.
const Version = 1

var (
	ErrNotFound = errors.New("no persisted settings")
	ErrCorrupt  = errors.New("persisted settings failed validation")
)

// Settings is everything that survives a restart.
type Settings struct {
	Breakpoints throttle.Breakpoints `json:"breakpoints"`
	Effects     effect.Config        `json:"effects"`
}

func Defaults() Settings {
	return Settings{
		Breakpoints: throttle.DefaultBreakpoints(),
		Effects:     effect.DefaultConfig(),
	}
}

// Record is the on-disk form.
type Record struct {
	Version  int      `json:"version"`
	Checksum uint64   `json:"checksum"`
	Settings Settings `json:"settings"`
}

// Checksum hashes the canonical JSON encoding of s.
func Checksum(s Settings) (uint64, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(b), nil
}

// Persister accepts durable write requests without blocking the caller.
type Persister interface {
	Persist(Settings)
}

// Store reads and writes the record file. Persist hands the latest
// settings to a background writer; intermediate values may be skipped.
type Store struct {
	path string

	mu      sync.Mutex
	pending *Settings
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

var _ Persister = &Store{}

// NewStore starts the background writer for path.
func NewStore(path string) *Store {
	s := &Store{
		path: path,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.writer()
	return s
}

func (s *Store) Path() string {
	return s.path
}

// Load reads and validates the record.
func (s *Store) Load() (Settings, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, ErrNotFound
		}
		return Settings{}, pkgerrors.Wrapf(err, "failed to read settings file %s", s.path)
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Settings{}, pkgerrors.Wrapf(ErrCorrupt, "failed to unmarshal settings file %s: %v", s.path, err)
	}
	if rec.Version != Version {
		return Settings{}, pkgerrors.Wrapf(ErrCorrupt, "settings version %d, want %d", rec.Version, Version)
	}
	sum, err := Checksum(rec.Settings)
	if err != nil {
		return Settings{}, pkgerrors.Wrap(err, "failed to checksum settings")
	}
	if sum != rec.Checksum {
		return Settings{}, pkgerrors.Wrapf(ErrCorrupt, "settings checksum %x, want %x", rec.Checksum, sum)
	}

	return rec.Settings, nil
}

// LoadOrDefaults never fails: anything unusable yields Defaults().
func (s *Store) LoadOrDefaults() Settings {
	st, err := s.Load()
	switch {
	case err == nil:
		logrus.WithField("path", s.path).Info("settings loaded")
		return st
	case errors.Is(err, ErrNotFound):
		logrus.WithField("path", s.path).Info("no saved settings, using defaults")
	default:
		logrus.WithError(err).Warn("saved settings are unusable, using defaults")
	}
	return Defaults()
}

// Save writes the record synchronously (temp file + rename).
func (s *Store) Save(st Settings) error {
	sum, err := Checksum(st)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to checksum settings")
	}
	b, err := json.MarshalIndent(Record{Version: Version, Checksum: sum, Settings: st}, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal settings")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", s.path)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return pkgerrors.Wrapf(err, "failed to rename %s to %s", tmp, s.path)
	}
	return nil
}

// Persist queues st for writing and returns immediately.
func (s *Store) Persist(st Settings) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logrus.Warn("settings store closed, dropping persist request")
		return
	}
	s.pending = &st
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

// Close flushes a pending write and stops the writer.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.wake)
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *Store) writer() {
	defer close(s.done)
	for range s.wake {
		s.flush()
	}
	s.flush()
}

func (s *Store) flush() {
	s.mu.Lock()
	st := s.pending
	s.pending = nil
	s.mu.Unlock()

	if st == nil {
		return
	}
	if err := s.Save(*st); err != nil {
		logrus.WithError(err).Error("failed to persist settings")
		return
	}
	logrus.WithField("path", s.path).Debug("settings persisted")
}
