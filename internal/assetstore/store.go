// Package assetstore implements the durable filesystem area holding
// generated audio and video artifacts.
//
// The store exists to close a race that plagues progressive delivery:
// browsers parallelise aggressively, and a video request that wins the race
// against the writer sees a truncated or zero-byte file. Every write
// therefore ends with an explicit fsync, and readers can demand proof of
// stability — the file size unchanged across two samples at least 100 ms
// apart — before the first byte is served.
//
// Artifacts are immutable once Put returns: they are never modified, only
// evicted. Paths are process-unique (UUID-based), so concurrent writers can
// never collide.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultStablePoll is the interval between size samples in ConfirmStable.
	DefaultStablePoll = 100 * time.Millisecond

	// DefaultStableBudget is the total time ConfirmStable may spend before
	// giving up.
	DefaultStableBudget = 2 * time.Second
)

// ErrStorageFull is returned by Put when the underlying filesystem rejects
// the write for lack of space. Callers must treat the artifact as absent.
var ErrStorageFull = errors.New("assetstore: storage full")

// ErrNotFound is returned when an artifact ID is unknown or already evicted.
var ErrNotFound = errors.New("assetstore: artifact not found")

// ErrNotStable is returned by ConfirmStable when the stability budget
// elapses before two consecutive equal size samples are observed.
var ErrNotStable = errors.New("assetstore: artifact size did not stabilise")

// Kind distinguishes the two artifact classes.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ext returns the file extension for artifacts of this kind.
func (k Kind) ext() string {
	if k == KindAudio {
		return ".wav"
	}
	return ".mp4"
}

// Artifact describes one immutable file owned by the store.
type Artifact struct {
	// ID is the opaque, process-unique artifact identifier.
	ID string

	// Kind is audio or video.
	Kind Kind

	// Path is the absolute path of the backing file.
	Path string

	// ByteSize is the authoritative at-write-time size.
	ByteSize int64

	// MTime is the backing file's modification time after the write.
	MTime time.Time

	// FsyncCompleted reports that the file descriptor was fsynced before
	// Put returned. Always true for artifacts created by this store; kept
	// explicit because readiness checks assert on it.
	FsyncCompleted bool

	// CreatedAt is when Put returned.
	CreatedAt time.Time
}

// Config holds tuning knobs for a [Store]. Zero-value fields are replaced
// with the package defaults.
type Config struct {
	// Dir is the root directory for artifact files. Created if missing.
	Dir string

	// StablePoll is the interval between size samples in ConfirmStable.
	StablePoll time.Duration

	// StableBudget is the default total budget for ConfirmStable.
	StableBudget time.Duration
}

// Store is a filesystem-backed artifact store. It is safe for concurrent
// use.
type Store struct {
	dir          string
	stablePoll   time.Duration
	stableBudget time.Duration

	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

// New creates a Store rooted at cfg.Dir, creating the directory if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("assetstore: dir must not be empty")
	}
	if cfg.StablePoll <= 0 {
		cfg.StablePoll = DefaultStablePoll
	}
	if cfg.StableBudget <= 0 {
		cfg.StableBudget = DefaultStableBudget
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("assetstore: create dir %q: %w", cfg.Dir, err)
	}
	return &Store{
		dir:          cfg.Dir,
		stablePoll:   cfg.StablePoll,
		stableBudget: cfg.StableBudget,
		artifacts:    make(map[string]*Artifact),
	}, nil
}

// Put writes data to a unique path, flushes and fsyncs the file descriptor,
// and returns the resulting artifact. Once Put returns, any later reader
// sees the complete file.
func (s *Store) Put(ctx context.Context, data []byte, kind Kind) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+kind.ext())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, wrapIOErr("create", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, wrapIOErr("write", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, wrapIOErr("fsync", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, wrapIOErr("close", path, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, wrapIOErr("stat", path, err)
	}

	art := &Artifact{
		ID:             id,
		Kind:           kind,
		Path:           path,
		ByteSize:       fi.Size(),
		MTime:          fi.ModTime(),
		FsyncCompleted: true,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.artifacts[id] = art
	s.mu.Unlock()

	slog.Debug("artifact stored",
		"artifact_id", id, "kind", kind, "bytes", art.ByteSize)
	return art, nil
}

// Get returns the artifact with the given ID, or ErrNotFound.
func (s *Store) Get(id string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.artifacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return art, nil
}

// ConfirmStable blocks until the write-time fsync has completed and the
// artifact's on-disk size either matches the at-write-time size or is
// unchanged across two consecutive samples taken StablePoll apart. It
// fails with ErrNotStable when budget elapses first. A zero budget uses
// the store default.
func (s *Store) ConfirmStable(ctx context.Context, art *Artifact, budget time.Duration) error {
	if budget <= 0 {
		budget = s.stableBudget
	}
	deadline := time.Now().Add(budget)

	prev := int64(-1)
	for {
		fi, err := os.Stat(art.Path)
		if err != nil {
			return wrapIOErr("stat", art.Path, err)
		}
		size := fi.Size()
		// Fast path: the on-disk size already matches the authoritative
		// at-write-time size, no second sample needed.
		if art.FsyncCompleted && (size == art.ByteSize || size == prev) {
			return nil
		}
		prev = size

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrNotStable, art.ID, budget)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.stablePoll):
		}
	}
}

// OpenRange opens a read handle positioned at start and limited to
// end-start+1 bytes. The at-write-time ByteSize is authoritative: end is
// clamped to it. Callers must close the returned reader.
func (s *Store) OpenRange(art *Artifact, start, end int64) (io.ReadCloser, error) {
	if end >= art.ByteSize {
		end = art.ByteSize - 1
	}
	if start < 0 || start > end {
		return nil, fmt.Errorf("assetstore: invalid range %d-%d of %d bytes", start, end, art.ByteSize)
	}

	f, err := os.Open(art.Path)
	if err != nil {
		return nil, wrapIOErr("open", art.Path, err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, wrapIOErr("seek", art.Path, err)
	}
	return &rangeReader{f: f, remaining: end - start + 1}, nil
}

// Evict removes every artifact matching pred and deletes its backing file.
// It returns the number of artifacts removed.
func (s *Store) Evict(pred func(*Artifact) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, art := range s.artifacts {
		if !pred(art) {
			continue
		}
		if err := os.Remove(art.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("artifact file removal failed", "artifact_id", id, "err", err)
		}
		delete(s.artifacts, id)
		removed++
	}
	return removed
}

// EvictBefore removes all artifacts created before t. Used by the grace
// period sweeper: artifacts outlive their turn's completion by a
// configurable grace period and are then collected.
func (s *Store) EvictBefore(t time.Time) int {
	return s.Evict(func(a *Artifact) bool { return a.CreatedAt.Before(t) })
}

// rangeReader reads at most remaining bytes from f and closes it.
type rangeReader struct {
	f         *os.File
	remaining int64
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.f.Read(p)
	r.remaining -= int64(n)
	return n, err
}

func (r *rangeReader) Close() error { return r.f.Close() }

// wrapIOErr maps filesystem errors into the store's error taxonomy.
func wrapIOErr(op, path string, err error) error {
	if isNoSpace(err) {
		return fmt.Errorf("%w: %s %q: %v", ErrStorageFull, op, path, err)
	}
	return fmt.Errorf("assetstore: %s %q: %w", op, path, err)
}
