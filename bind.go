package configmanager

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	modellib "github.com/ygrebnov/model"
)

// ModelInit is a constructor hook that binds a model.Model[T] to the
// Binder-managed *T. It allows the Binder to call SetDefaults() before the
// document and environment overrides are applied and Validate() afterwards.
// Return the constructed model.Model[T] or an error.
type ModelInit[T any] func(*T) (*modellib.Model[T], error)

// Binder decodes a Store's document onto a typed configuration struct.
//
// A Binder[T] performs the following steps exactly once (it is safe to call
// Bind from multiple goroutines):
//  1. Construct a new *T using the factory set via WithDefaultFn (or a
//     zero-value fallback).
//  2. If WithModel is set, bind a model.Model[T] to the same *T and call
//     SetDefaults() to populate zero values using `default` struct tags.
//  3. Decode the Store's snapshot into *T; only keys present in the document
//     overwrite fields.
//  4. Apply environment overrides using `env` struct tags, honoring the
//     prefix set via WithEnvPrefix.
//  5. If WithModel was set, validate the final object using model.Validate().
//
// Subsequent calls to Bind return the same pointer, or the same error.
type Binder[T any] struct {
	store     *Store
	initOnce  sync.Once
	cfg       *T
	defaultFn func() *T
	envPrefix string
	modelInit ModelInit[T]
	model     *modellib.Model[T]
	initErr   error
}

// BindOption configures a Binder at construction time. Options are
// composable and can be passed to NewBinder in any order.
type BindOption[T any] func(*Binder[T])

// NewBinder constructs a Binder[T] over store and applies all given options.
// If no WithDefaultFn is provided, NewBinder uses a zero-value factory that
// returns a new *T with all fields zeroed. Panics if store is nil.
func NewBinder[T any](store *Store, opts ...BindOption[T]) *Binder[T] {
	if store == nil {
		panic("configmanager: NewBinder: store cannot be nil")
	}
	b := &Binder[T]{store: store}
	for _, opt := range opts {
		opt(b)
	}
	if b.defaultFn == nil {
		b.defaultFn = func() *T { var t T; return &t }
	}
	return b
}

// WithDefaultFn registers a factory that returns a new *T. The factory is
// invoked once during Bind to construct the base configuration object before
// the document and environment overrides are applied. Panics if fn is nil.
func WithDefaultFn[T any](fn func() *T) BindOption[T] {
	return func(b *Binder[T]) {
		if fn == nil {
			panic("configmanager: WithDefaultFn: fn cannot be nil")
		}
		b.defaultFn = fn
	}
}

// WithEnvPrefix sets the prefix applied to `env` tag lookups, e.g. "MYAPP"
// turns a tag `env:"PORT"` into a MYAPP_PORT lookup. Panics if prefix is
// empty.
func WithEnvPrefix[T any](prefix string) BindOption[T] {
	return func(b *Binder[T]) {
		if prefix == "" {
			panic("configmanager: WithEnvPrefix: prefix cannot be empty")
		}
		b.envPrefix = prefix
	}
}

// WithModel enables integration with github.com/ygrebnov/model. The provided
// init function is called exactly once during the first Bind to build a
// model.Model[T] bound to the Binder's *T. The Binder will then:
//   - call SetDefaults() before applying the document and environment, and
//   - call Validate() after all overrides are applied.
//
// Panics if init is nil.
func WithModel[T any](init ModelInit[T]) BindOption[T] {
	return func(b *Binder[T]) {
		if init == nil {
			panic("configmanager: WithModel: init cannot be nil")
		}
		b.modelInit = init
	}
}

// Bind initializes and returns the final configuration pointer, or an error
// if initialization failed. Bind is safe for concurrent use; initialization
// runs at most once.
func (b *Binder[T]) Bind() (*T, error) {
	b.initOnce.Do(func() {
		// 1) Construct default config instance.
		b.cfg = b.defaultFn()

		// 2) Optionally construct model wrapper around the config instance
		// to apply defaults before document/env operations.
		if b.modelInit != nil {
			mdl, err := b.modelInit(b.cfg)
			if err != nil {
				b.initErr = err
				return
			}
			b.model = mdl

			// Apply defaults before document/env, so they only fill zero values.
			if err := b.model.SetDefaults(); err != nil {
				b.initErr = err
				return
			}
		}

		// 3) Decode the document snapshot.
		if err := b.decodeDocument(); err != nil {
			b.initErr = err
			return
		}

		// 4) Apply environment overrides.
		if err := b.applyEnv(); err != nil {
			b.initErr = err
			return
		}

		// 5) Optionally apply model validation after document/env operations.
		if b.model != nil {
			if err := b.model.Validate(); err != nil {
				b.initErr = err
				return
			}
		}
	})

	if b.initErr != nil {
		return nil, b.initErr
	}
	return b.cfg, nil
}

func (b *Binder[T]) decodeDocument() error {
	doc := b.store.Document()
	if len(doc) == 0 {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if err := json.Unmarshal(data, b.cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrConvert, err)
	}
	return nil
}

func (b *Binder[T]) applyEnv() error {
	opts := env.Options{}
	if b.envPrefix != "" {
		opts.Prefix = b.envPrefix + "_"
	}
	if err := env.ParseWithOptions(b.cfg, opts); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	return nil
}
