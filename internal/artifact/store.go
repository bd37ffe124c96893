// Package artifact provides content-addressed, immutable blob storage for
// stage outputs. Objects are keyed by the SHA-256 of their canonical JSON
// bytes; storing the same bytes twice is a no-op. A per-stage namespace of
// `<itemID>.<stage>.json` files points at the latest artifact for browsing
// and downstream tooling.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"xaio/internal/config"
)

// Ref identifies a stored artifact.
type Ref struct {
	Hash string
	Path string
}

// Store is a filesystem-backed artifact store rooted in the data directory.
type Store struct {
	root string
}

// Open prepares the artifact directories under the configured data dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	root := filepath.Join(cfg.Paths.DataDir, "artifacts")
	for _, dir := range []string{root, filepath.Join(root, "objects"), filepath.Join(root, "stages")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact directory %q: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the artifact store root directory.
func (s *Store) Root() string {
	return s.root
}

// Put canonicalizes and stores a document produced by a stage, returning its
// content hash. Writing an object that already exists is a no-op, which makes
// concurrent writes of identical content safe without locking.
func (s *Store) Put(itemID, stage string, doc any) (Ref, error) {
	data, err := Marshal(doc)
	if err != nil {
		return Ref{}, err
	}
	return s.putCanonical(itemID, stage, data)
}

// PutBytes canonicalizes raw JSON bytes and stores them like Put.
func (s *Store) PutBytes(itemID, stage string, raw []byte) (Ref, error) {
	data, err := Canonicalize(raw)
	if err != nil {
		return Ref{}, err
	}
	return s.putCanonical(itemID, stage, data)
}

func (s *Store) putCanonical(itemID, stage string, data []byte) (Ref, error) {
	hash := HashBytes(data)
	objectPath := s.objectPath(hash)

	if _, err := os.Stat(objectPath); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
			return Ref{}, fmt.Errorf("create object directory: %w", err)
		}
		if err := writeAtomic(objectPath, data); err != nil {
			return Ref{}, fmt.Errorf("write artifact object: %w", err)
		}
	} else if err != nil {
		return Ref{}, fmt.Errorf("stat artifact object: %w", err)
	}

	// Stage namespace pointer: latest artifact per (item, stage). The object
	// itself is immutable; only this pointer moves.
	stageDir := filepath.Join(s.root, "stages", stage)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return Ref{}, fmt.Errorf("create stage directory: %w", err)
	}
	stagePath := filepath.Join(stageDir, fmt.Sprintf("%s.%s.json", itemID, stage))
	if err := writeAtomic(stagePath, data); err != nil {
		return Ref{}, fmt.Errorf("write stage artifact: %w", err)
	}

	return Ref{Hash: hash, Path: objectPath}, nil
}

// Get returns the canonical bytes of an artifact by content hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if hash == "" {
		return nil, errors.New("artifact hash is required")
	}
	data, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", hash, err)
	}
	return data, nil
}

// Exists reports whether an artifact with the given hash is stored.
func (s *Store) Exists(hash string) bool {
	if hash == "" {
		return false
	}
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

func (s *Store) objectPath(hash string) string {
	prefix := hash
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(s.root, "objects", prefix, hash+".json")
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
