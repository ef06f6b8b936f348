package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
)

// ext is the on-disk file extension for record files.
const ext = ".md"

// Store reads and writes records as individual files under a root
// directory. Each type (content or relation) gets its own subdirectory;
// each record is one file named by its ID.
//
// Filenames carry type-prefixed UUIDv7 IDs, so a sorted directory listing
// is creation order. Filtering is a linear scan over the type directory;
// this is an accepted scaling limit, and an indexed store could be
// substituted behind the same contract.
type Store struct {
	root string
	gen  record.IDGenerator
	log  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the production UUIDv7 generator.
// Tests use a deterministic sequence generator.
func WithIDGenerator(gen record.IDGenerator) Option {
	return func(s *Store) { s.gen = gen }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open creates or opens a store rooted at the given directory.
// The root is created if it does not exist. Idempotent.
func Open(root string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{
		root: root,
		gen:  record.PrefixedGenerator{},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// NewID generates a fresh ID with the given type prefix.
func (s *Store) NewID(prefix string) string { return s.gen.NewID(prefix) }

// path returns the file path for a record.
func (s *Store) path(typ, id string) string {
	return filepath.Join(s.root, typ, id+ext)
}

// Save writes the record to its type directory, replacing any existing
// file. The write goes to a temp file first and is renamed into place so
// a crash cannot leave a half-written record visible.
func (s *Store) Save(r *record.Record) error {
	if r.ID == "" || r.Type == "" {
		return fmt.Errorf("save record: missing type or id")
	}
	dir := filepath.Join(s.root, r.Type)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save %s/%s: %w", r.Type, r.ID, err)
	}

	data, err := record.Marshal(r)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", r.Type, r.ID, err)
	}

	tmp, err := os.CreateTemp(dir, r.ID+".tmp")
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", r.Type, r.ID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s/%s: %w", r.Type, r.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s/%s: %w", r.Type, r.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(r.Type, r.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s/%s: %w", r.Type, r.ID, err)
	}

	s.log.Debug("record saved", "type", r.Type, "id", r.ID)
	return nil
}

// Load reads one record by type and ID.
// Returns a NotFound fault if the file does not exist.
func (s *Store) Load(typ, id string) (*record.Record, error) {
	data, err := os.ReadFile(s.path(typ, id))
	if os.IsNotExist(err) {
		return nil, fault.NotFound(typ + "/" + id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", typ, id, err)
	}
	r, err := record.Unmarshal(typ, data)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", typ, id, err)
	}
	return r, nil
}

// Exists reports whether a record file exists for type and ID.
func (s *Store) Exists(typ, id string) bool {
	_, err := os.Stat(s.path(typ, id))
	return err == nil
}

// List returns all records of a type in creation order.
// Returns an empty slice (not nil) for a missing or empty directory.
func (s *Store) List(typ string) ([]*record.Record, error) {
	dir := filepath.Join(s.root, typ)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []*record.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", typ, err)
	}

	// ReadDir sorts by filename; IDs are time-sortable, so this is
	// creation order.
	records := make([]*record.Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		r, err := s.Load(typ, strings.TrimSuffix(name, ext))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Delete removes a record file permanently.
// Returns a NotFound fault if the file does not exist.
func (s *Store) Delete(typ, id string) error {
	err := os.Remove(s.path(typ, id))
	if os.IsNotExist(err) {
		return fault.NotFound(typ + "/" + id)
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", typ, id, err)
	}
	s.log.Debug("record deleted", "type", typ, "id", id)
	return nil
}

// Types returns the type directories present under the root, sorted.
func (s *Store) Types() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	var types []string
	for _, entry := range entries {
		if entry.IsDir() {
			types = append(types, entry.Name())
		}
	}
	return types, nil
}
