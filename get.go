package configmanager

import (
	"fmt"
	"sort"
	"time"
)

// Get retrieves the value stored under a top-level key and decodes it into T.
//
// It fails with ErrEmptyKey for an empty key, ErrKeyNotFound if the key is
// absent, and ErrConvert if the value cannot be decoded into T.
func Get[T any](s *Store, key string) (T, error) {
	var zero T
	value, err := s.value(key)
	if err != nil {
		return zero, err
	}
	return convert[T](value)
}

// GetNested retrieves the value stored under subKey inside the object mapping
// at a top-level key and decodes it into T.
//
// It fails with ErrKeyNotFound if key is absent, if the value at key is not
// an object mapping, or if subKey is absent within it.
func GetNested[T any](s *Store, key, subKey string) (T, error) {
	var zero T
	if key == "" || subKey == "" {
		return zero, ErrEmptyKey
	}

	s.mu.RLock()
	value, ok := s.document[key]
	s.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return zero, fmt.Errorf("%w: value at %q is not an object", ErrKeyNotFound, key)
	}
	sub, ok := obj[subKey]
	if !ok {
		return zero, fmt.Errorf("%w: %q in %q", ErrKeyNotFound, subKey, key)
	}
	return convert[T](sub)
}

// value returns the raw snapshot value for key.
func (s *Store) value(key string) (any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s.mu.RLock()
	value, ok := s.document[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return value, nil
}

// String returns the string value stored under a top-level key.
func (s *Store) String(key string) (string, error) { return Get[string](s, key) }

// Int returns the integer value stored under a top-level key.
func (s *Store) Int(key string) (int, error) { return Get[int](s, key) }

// Float64 returns the float value stored under a top-level key.
func (s *Store) Float64(key string) (float64, error) { return Get[float64](s, key) }

// Bool returns the boolean value stored under a top-level key.
func (s *Store) Bool(key string) (bool, error) { return Get[bool](s, key) }

// Duration returns the duration stored under a top-level key. String values
// are parsed with time.ParseDuration ("1h30m"); numeric values are taken as
// nanoseconds.
func (s *Store) Duration(key string) (time.Duration, error) {
	value, err := s.value(key)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrConvert, err)
		}
		return d, nil
	case float64:
		return time.Duration(v), nil
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	default:
		return 0, fmt.Errorf("%w: %q holds %T, want a duration string or a number", ErrConvert, key, value)
	}
}

// Has reports whether a top-level key is present.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.document[key]
	return ok
}

// Keys returns the top-level keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.document))
	for k := range s.document {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of top-level keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.document)
}

// Document returns a deep copy of the current snapshot. Mutating the returned
// document does not affect the Store.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDocument(s.document)
}
