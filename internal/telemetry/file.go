package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Record is the on-disk form of an event, one JSON object per line.
type Record struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Provider string    `json:"provider"`
	At       time.Time `json:"at"`
}

// FileSink appends events to a JSON Lines file.
type FileSink struct {
	Path string
	// StrictPerms, when true, creates the parent directory with 0700 and the
	// file with 0600.
	StrictPerms bool

	mu sync.Mutex
	f  *os.File
}

func (s *FileSink) open() error {
	if s.f != nil {
		return nil
	}
	if s.Path == "" {
		return errors.New("event file path not configured")
	}
	dirPerm, filePerm := os.FileMode(0o755), os.FileMode(0o644)
	if s.StrictPerms {
		dirPerm, filePerm = 0o700, 0o600
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return err
	}
	if s.StrictPerms {
		if err := tightenPerms(f); err != nil {
			_ = f.Close()
			return err
		}
	}
	s.f = f
	return nil
}

// tightenPerms enforces 0600 on an event file that already existed with
// broader permissions.
func tightenPerms(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat event file: %w", err)
	}
	if info.Mode().Perm() == 0o600 {
		return nil
	}
	if err := f.Chmod(0o600); err != nil {
		return fmt.Errorf("restrict event file permissions: %w", err)
	}
	return nil
}

// Write appends ev and reports any I/O error.
func (s *FileSink) Write(ev Event) error {
	rec := Record{ID: uuid.NewString(), Kind: ev.Kind, Provider: ev.Provider, At: ev.Time}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return err
	}
	_, err = s.f.Write(b)
	return err
}

// Track implements Sink. Write errors are logged and dropped.
func (s *FileSink) Track(ev Event) {
	if err := s.Write(ev); err != nil {
		log.Warn().Err(err).Str("path", s.Path).Msg("event write failed")
	}
}

// Close closes the underlying file if it was opened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadRecords loads every record from a JSON Lines event file.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
