package configmanager

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Francois284Modz/ConfigurationManager/streams"
)

// Exported error categories returned by this package. These are used with
// wrapping so callers can detect error classes using errors.Is/As.
//   - ErrNotFound: the configuration file does not exist (also wraps os.ErrNotExist).
//   - ErrParse: file content is not valid JSON/YAML, or the top level is not an object mapping.
//   - ErrKeyNotFound: a requested top-level key or sub-key is absent, or the value
//     at a top-level key is not an object when a sub-key lookup is requested.
//   - ErrEmptyKey: an empty string was passed where a non-empty key is required.
//   - ErrConvert: a stored value cannot be decoded into the requested type.
//   - ErrFormat: a value cannot be serialized (e.g. contains a func or a cycle).
//   - ErrWrite: writing the updated file failed (permissions, disk full, rename).
//   - ErrEnsureConfigDir: failure to create parent directories for the file.
var (
	ErrNotFound        = errors.New("config file not found")
	ErrParse           = errors.New("parse config file")
	ErrKeyNotFound     = errors.New("key not found")
	ErrEmptyKey        = errors.New("empty key")
	ErrConvert         = errors.New("convert config value")
	ErrFormat          = errors.New("format config value")
	ErrWrite           = errors.New("write config file")
	ErrEnsureConfigDir = errors.New("ensure config dir")
)

// Store is a file-backed configuration document.
//
// A Store eagerly loads the file at construction time and serves all reads
// from the in-memory snapshot. Every mutation re-reads the file fresh,
// applies the change, rewrites the whole file, and installs the result as the
// new snapshot, so the snapshot never goes stale behind the Store's own
// writes. Edits made to the file by other processes become visible after the
// next mutation or an explicit [Store.Reload].
//
// Reads take a shared lock and mutations an exclusive lock for the full
// read-modify-write, so a Store is safe for concurrent use by multiple
// goroutines. Concurrent writers in separate processes are not coordinated;
// the last whole-file rewrite wins.
type Store struct {
	mu       sync.RWMutex
	path     string
	document Document

	streams       streams.IOStreams
	createMissing bool
	expandEnv     bool
	created       bool
}

// Option configures a Store at construction time. Options are composable and
// can be passed to New in any order.
type Option func(*Store)

// WithCreateMissing makes New start from an empty document and create the
// file (with its parent directories) when the path does not exist, instead of
// failing with ErrNotFound.
func WithCreateMissing() Option {
	return func(s *Store) {
		s.createMissing = true
	}
}

// WithStreams wires user-facing message streams for "created new config file"
// and "loaded from" notices. Pass adapters from the companion streams package
// to route output to buffers, structured loggers, or io.Discard. Without this
// option the Store is silent.
func WithStreams(st streams.IOStreams) Option {
	return func(s *Store) {
		s.streams = st
	}
}

// WithExpandEnv expands $VAR and ${VAR} references inside string values when
// the document is loaded into the snapshot. References to unset variables are
// left verbatim. Expansion is read-side only: the file always keeps the
// original, unexpanded text.
func WithExpandEnv() Option {
	return func(s *Store) {
		s.expandEnv = true
	}
}

// New constructs a Store over the JSON (or YAML, selected by file extension)
// document at path and loads it into memory.
//
// It fails with ErrNotFound if the path does not exist, unless
// WithCreateMissing is set, in which case the file is created with an empty
// document. It fails with ErrParse if the content is malformed or the top
// level is not an object mapping.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}

	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := loadDocument(path)
	switch {
	case err != nil && errors.Is(err, ErrNotFound) && s.createMissing:
		doc = Document{}
		if pe := EnsurePath(path); pe != nil {
			return nil, errors.Join(ErrEnsureConfigDir, pe)
		}
		if we := writeDocument(path, doc); we != nil {
			return nil, we
		}
		s.created = true
		if s.streams != nil && s.streams.Out() != nil {
			fmt.Fprintf(s.streams.Out(), "configmanager: created new config file at %s\n", path)
		}

	case err != nil:
		return nil, err

	default:
		if s.streams != nil && s.streams.Out() != nil {
			fmt.Fprintf(s.streams.Out(), "configmanager: loaded from %s\n", path)
		}
	}

	s.install(doc)
	return s, nil
}

// Reload re-reads the file into the snapshot. It fails with ErrNotFound if
// the file no longer exists and with ErrParse on malformed content; the
// previous snapshot is kept on failure.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := loadDocument(s.path)
	if err != nil {
		return err
	}
	s.install(doc)
	return nil
}

// Path returns the file path this Store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Created reports whether New created the file because it was missing and
// WithCreateMissing was set.
func (s *Store) Created() bool {
	return s.created
}

// install replaces the snapshot with doc, applying env expansion when
// enabled. Callers mutating the Store must hold the write lock; New calls it
// before the Store is shared.
func (s *Store) install(doc Document) {
	if s.expandEnv {
		doc = expandDocument(doc)
	}
	s.document = doc
}

// readForUpdate re-reads the file for a read-modify-write. A missing file
// yields an empty document after ensuring the parent directories exist; any
// other load failure aborts the mutation. Callers must hold the write lock.
func (s *Store) readForUpdate() (Document, error) {
	doc, err := loadDocument(s.path)
	switch {
	case err != nil && errors.Is(err, ErrNotFound):
		if pe := EnsurePath(s.path); pe != nil {
			return nil, errors.Join(ErrEnsureConfigDir, pe)
		}
		return Document{}, nil
	case err != nil:
		return nil, err
	}
	return doc, nil
}
