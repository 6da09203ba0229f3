// Package store implements the content-addressed Local Store: on-disk
// blobs keyed by a 32-byte content hash, one file per packet, plus an
// in-memory index for existence/size/age checks (spec.md §4.2).
//
// Grounded on routing.DHTStore / DHT.SaveState in
// kernel/core/mesh/routing/dht.go, which already separates an
// in-memory sync.Map of values from a pluggable persistence interface;
// this package folds that split into a single component because spec.md
// §4.2 specifies put/get/delete/maintenance directly against disk, not
// through a caller-supplied persistence plugin.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meshmail/dhtnode/internal/wire"
)

// Key is a 32-byte content hash.
type Key = [wire.KeySize]byte

type indexKey struct {
	kind wire.Kind
	key  Key
}

type entryMeta struct {
	size     int64
	storedAt time.Time
}

// Store is the content-addressed Local Store.
type Store struct {
	dir    string
	ttl    map[wire.Kind]time.Duration
	logger *slog.Logger

	mu    sync.RWMutex // protects index; put/get/delete on the same key are serialized through it
	index map[indexKey]entryMeta
}

// New opens (creating if absent) a store rooted at dir and rebuilds its
// in-memory index by scanning the per-kind subdirectories on disk.
func New(dir string, ttl map[wire.Kind]time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dir:    dir,
		ttl:    ttl,
		logger: logger.With("component", "store"),
		index:  make(map[indexKey]entryMeta),
	}

	for _, kind := range []wire.Kind{wire.KindIndex, wire.KindEmail, wire.KindContact} {
		kindDir := s.kindDir(kind)
		if err := os.MkdirAll(kindDir, 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		entries, err := os.ReadDir(kindDir)
		if err != nil {
			return nil, fmt.Errorf("scan store directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			var key Key
			raw, err := hex.DecodeString(e.Name())
			if err != nil || len(raw) != wire.KeySize {
				continue
			}
			copy(key[:], raw)
			info, err := e.Info()
			if err != nil {
				continue
			}
			s.index[indexKey{kind, key}] = entryMeta{size: info.Size(), storedAt: info.ModTime()}
		}
	}
	return s, nil
}

func (s *Store) kindDir(kind wire.Kind) string {
	return filepath.Join(s.dir, string(rune(kind)))
}

func (s *Store) path(kind wire.Kind, key Key) string {
	return filepath.Join(s.kindDir(kind), hex.EncodeToString(key[:]))
}

// ContentHash computes the content-addressed key for a packet's bytes.
func ContentHash(body []byte) Key {
	return sha256.Sum256(body)
}

// Put checks that the body has a (kind, version) prefix with a known
// kind, writes the bytes atomically under content-hash(bytes), and
// reports success (spec.md §4.2). The version byte is not checked.
func (s *Store) Put(body []byte) (key Key, ok bool, err error) {
	kind, _, err := wire.BodyKindVersion(body)
	if err != nil {
		return Key{}, false, err
	}

	key = ContentHash(body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(s.path(kind, key), body); err != nil {
		return Key{}, false, fmt.Errorf("store put: %w", err)
	}
	s.index[indexKey{kind, key}] = entryMeta{size: int64(len(body)), storedAt: time.Now()}
	return key, true, nil
}

// PutIndexBody stores a parsed Index body, used by the index-delete path
// to atomically replace a trimmed packet (spec.md §3, §4.6): old deleted,
// new written.
func (s *Store) PutIndexBody(key Key, body wire.IndexBody) error {
	encoded := wire.EncodeIndexBody(body)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(s.path(wire.KindIndex, key), encoded); err != nil {
		return fmt.Errorf("store put index body: %w", err)
	}
	s.index[indexKey{wire.KindIndex, key}] = entryMeta{size: int64(len(encoded)), storedAt: time.Now()}
	return nil
}

func (s *Store) writeAtomic(path string, body []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get returns the stored bytes for (kind, key), or ok=false if absent.
func (s *Store) Get(kind wire.Kind, key Key) (body []byte, ok bool) {
	s.mu.RLock()
	_, known := s.index[indexKey{kind, key}]
	s.mu.RUnlock()
	if !known {
		return nil, false
	}

	body, err := os.ReadFile(s.path(kind, key))
	if err != nil {
		return nil, false
	}
	return body, true
}

// Delete removes the packet at (kind, key), reporting whether it existed.
func (s *Store) Delete(kind wire.Kind, key Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ik := indexKey{kind, key}
	if _, known := s.index[ik]; !known {
		return false, nil
	}
	if err := os.Remove(s.path(kind, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("store delete: %w", err)
	}
	delete(s.index, ik)
	return true, nil
}

// Maintenance removes packets past their per-kind TTL (spec.md §4.2).
// Errors for individual entries are logged and skipped so one bad file
// never stops the sweep.
func (s *Store) Maintenance() {
	now := time.Now()

	s.mu.Lock()
	var expired []indexKey
	for ik, meta := range s.index {
		ttl, hasTTL := s.ttl[ik.kind]
		if !hasTTL || ttl <= 0 {
			continue
		}
		if now.Sub(meta.storedAt) > ttl {
			expired = append(expired, ik)
		}
	}
	s.mu.Unlock()

	for _, ik := range expired {
		if _, err := s.Delete(ik.kind, ik.key); err != nil {
			s.logger.Warn("maintenance delete failed", "kind", ik.kind, "err", err)
		}
	}
	if len(expired) > 0 {
		s.logger.Info("maintenance reclaimed expired packets", "count", len(expired))
	}
}

// Count returns the number of packets currently indexed for a kind.
func (s *Store) Count(kind wire.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for ik := range s.index {
		if ik.kind == kind {
			n++
		}
	}
	return n
}
