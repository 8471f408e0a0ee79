package configmanager

import (
	"fmt"

	"dario.cat/mergo"
)

// Set stores value under a top-level key: the file is re-read fresh (a
// missing file starts an empty document), the key is set, and the whole
// document is rewritten as indented text. The value is normalized through a
// JSON round-trip, so structs and maps are persisted as nested object
// mappings.
//
// It fails with ErrFormat if the value cannot be serialized, ErrParse if the
// file on disk has become malformed, and ErrWrite if the rewrite fails. The
// file is left unmodified on any failure.
func (s *Store) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	norm, err := normalize(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readForUpdate()
	if err != nil {
		return err
	}
	doc[key] = norm
	if err := writeDocument(s.path, doc); err != nil {
		return err
	}
	s.install(doc)
	return nil
}

// SetNested stores value under subKey inside the object mapping at a
// top-level key, following the same read-modify-write cycle as Set. A
// missing top-level key creates a new object; a present value that is not an
// object mapping fails with ErrKeyNotFound.
func (s *Store) SetNested(key, subKey string, value any) error {
	if key == "" || subKey == "" {
		return ErrEmptyKey
	}
	norm, err := normalize(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readForUpdate()
	if err != nil {
		return err
	}
	if existing, ok := doc[key]; ok {
		obj, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: value at %q is not an object", ErrKeyNotFound, key)
		}
		obj[subKey] = norm
	} else {
		doc[key] = map[string]any{subKey: norm}
	}
	if err := writeDocument(s.path, doc); err != nil {
		return err
	}
	s.install(doc)
	return nil
}

// Delete removes a top-level key and rewrites the file. It fails with
// ErrKeyNotFound if the key is absent from the document on disk.
func (s *Store) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readForUpdate()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	delete(doc, key)
	if err := writeDocument(s.path, doc); err != nil {
		return err
	}
	s.install(doc)
	return nil
}

// Merge folds values into the document in one read-modify-write: keys present
// in values override those in the document, and nested object mappings are
// merged recursively rather than replaced wholesale. Every value is
// normalized first; an empty values map is a no-op.
func (s *Store) Merge(values Document) error {
	if len(values) == 0 {
		return nil
	}
	normalized := make(Document, len(values))
	for k, v := range values {
		if k == "" {
			return ErrEmptyKey
		}
		norm, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[k] = norm
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readForUpdate()
	if err != nil {
		return err
	}
	if err := mergo.Merge(&doc, normalized, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge values: %w", err)
	}
	if err := writeDocument(s.path, doc); err != nil {
		return err
	}
	s.install(doc)
	return nil
}
