package configmanager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// serverSettings is a serializable type used to exercise struct values.
type serverSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func TestStore_Set(t *testing.T) {
	t.Run("stores and persists a string", func(t *testing.T) {
		s := seedStore(t, `{}`)

		if err := s.Set("NewKey", "Val"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if got, err := Get[string](s, "NewKey"); err != nil || got != "Val" {
			t.Fatalf("Get(NewKey) = %q, %v; want %q, nil", got, err, "Val")
		}
		b, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !strings.Contains(string(b), `"NewKey": "Val"`) {
			t.Fatalf("file content = %q, want indented NewKey entry", string(b))
		}
	})

	t.Run("sequential sets both persist", func(t *testing.T) {
		s := seedStore(t, `{}`)

		if err := s.Set("A", 1); err != nil {
			t.Fatalf("Set(A): %v", err)
		}
		if err := s.Set("B", 2); err != nil {
			t.Fatalf("Set(B): %v", err)
		}

		reloaded, err := New(s.Path())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if n, err := reloaded.Int("A"); err != nil || n != 1 {
			t.Fatalf("Int(A) = %d, %v; want 1, nil", n, err)
		}
		if n, err := reloaded.Int("B"); err != nil || n != 2 {
			t.Fatalf("Int(B) = %d, %v; want 2, nil", n, err)
		}
	})

	t.Run("struct persists as a nested object", func(t *testing.T) {
		s := seedStore(t, `{}`)

		if err := s.Set("Server", serverSettings{Host: "db.local", Port: 5432}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if got, err := GetNested[string](s, "Server", "host"); err != nil || got != "db.local" {
			t.Fatalf("GetNested(Server, host) = %q, %v; want %q, nil", got, err, "db.local")
		}
		if got, err := GetNested[int](s, "Server", "port"); err != nil || got != 5432 {
			t.Fatalf("GetNested(Server, port) = %d, %v; want 5432, nil", got, err)
		}
		b, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !strings.Contains(string(b), `"host": "db.local"`) {
			t.Fatalf("file content = %q, want nested host entry", string(b))
		}
	})

	t.Run("empty key", func(t *testing.T) {
		s := seedStore(t, `{}`)
		if err := s.Set("", 1); !errors.Is(err, ErrEmptyKey) {
			t.Fatalf("err = %v, want ErrEmptyKey", err)
		}
	})

	t.Run("unserializable value leaves the file alone", func(t *testing.T) {
		s := seedStore(t, `{"a": 1}`)
		before, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read: %v", err)
		}

		if err := s.Set("F", func() {}); !errors.Is(err, ErrFormat) {
			t.Fatalf("err = %v, want ErrFormat", err)
		}

		after, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(before) != string(after) {
			t.Fatalf("file changed on failed Set: %q -> %q", string(before), string(after))
		}
	})

	t.Run("missing file is recreated from empty", func(t *testing.T) {
		s := seedStore(t, `{"a": 1}`)
		if err := os.Remove(s.Path()); err != nil {
			t.Fatalf("remove: %v", err)
		}

		if err := s.Set("b", 2); err != nil {
			t.Fatalf("Set: %v", err)
		}
		// Mutations start from the document on disk, so the old snapshot key
		// does not reappear after the file was deleted.
		if s.Has("a") {
			t.Fatalf("Has(a) = true; deleted file must yield a fresh document")
		}
		if n, err := s.Int("b"); err != nil || n != 2 {
			t.Fatalf("Int(b) = %d, %v; want 2, nil", n, err)
		}
		b, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !strings.Contains(string(b), `"b": 2`) {
			t.Fatalf("file content = %q, want b entry", string(b))
		}
	})

	t.Run("malformed file aborts the write", func(t *testing.T) {
		s := seedStore(t, `{"a": 1}`)
		writeFile(t, s.Path(), "}{")

		if err := s.Set("b", 2); !errors.Is(err, ErrParse) {
			t.Fatalf("err = %v, want ErrParse", err)
		}
		b, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if string(b) != "}{" {
			t.Fatalf("file content = %q, want untouched %q", string(b), "}{")
		}
	})
}

func TestStore_Set_PicksUpExternalEdits(t *testing.T) {
	s := seedStore(t, `{"A": 1}`)

	// Another process rewrites the file behind the snapshot.
	writeFile(t, s.Path(), `{"A": 1, "B": 2}`)

	if err := s.Set("C", 3); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// The write re-read the file, so the external key is both persisted and
	// visible in the new snapshot.
	if n, err := s.Int("B"); err != nil || n != 2 {
		t.Fatalf("Int(B) = %d, %v; want 2, nil", n, err)
	}
	b, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	for _, key := range []string{`"A"`, `"B"`, `"C"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("file content = %q, want %s entry", string(b), key)
		}
	}
}

func TestStore_SetNested(t *testing.T) {
	t.Run("creates an object for an absent key", func(t *testing.T) {
		s := seedStore(t, `{}`)

		if err := s.SetNested("Conn", "Timeout", 60); err != nil {
			t.Fatalf("SetNested: %v", err)
		}
		if got, err := GetNested[int](s, "Conn", "Timeout"); err != nil || got != 60 {
			t.Fatalf("GetNested = %d, %v; want 60, nil", got, err)
		}
		b, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !strings.Contains(string(b), `"Timeout": 60`) {
			t.Fatalf("file content = %q, want Timeout entry", string(b))
		}
	})

	t.Run("updates an existing object and keeps siblings", func(t *testing.T) {
		s := seedStore(t, `{"Conn": {"Timeout": 30, "Host": "db.local"}}`)

		if err := s.SetNested("Conn", "Timeout", 60); err != nil {
			t.Fatalf("SetNested: %v", err)
		}
		if got, err := GetNested[int](s, "Conn", "Timeout"); err != nil || got != 60 {
			t.Fatalf("GetNested(Timeout) = %d, %v; want 60, nil", got, err)
		}
		if got, err := GetNested[string](s, "Conn", "Host"); err != nil || got != "db.local" {
			t.Fatalf("GetNested(Host) = %q, %v; sibling must survive, nil", got, err)
		}
	})

	t.Run("updates an object loaded from yaml", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "config.yaml")
		writeFile(t, p, "conn:\n  host: db.local\n  timeout: 30\n")

		s, err := New(p)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := s.SetNested("conn", "timeout", 60); err != nil {
			t.Fatalf("SetNested: %v", err)
		}
		if got, err := GetNested[int](s, "conn", "timeout"); err != nil || got != 60 {
			t.Fatalf("GetNested(timeout) = %d, %v; want 60, nil", got, err)
		}
		if got, err := GetNested[string](s, "conn", "host"); err != nil || got != "db.local" {
			t.Fatalf("GetNested(host) = %q, %v; sibling must survive, nil", got, err)
		}
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !strings.Contains(string(b), "host: db.local") {
			t.Fatalf("yaml content = %q, want surviving host entry", string(b))
		}
	})

	t.Run("target is not an object", func(t *testing.T) {
		s := seedStore(t, `{"ApiUrl": "http://example.com"}`)
		if err := s.SetNested("ApiUrl", "x", 1); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("err = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("empty key or sub-key", func(t *testing.T) {
		s := seedStore(t, `{}`)
		if err := s.SetNested("", "x", 1); !errors.Is(err, ErrEmptyKey) {
			t.Fatalf("empty key: err = %v, want ErrEmptyKey", err)
		}
		if err := s.SetNested("Conn", "", 1); !errors.Is(err, ErrEmptyKey) {
			t.Fatalf("empty sub-key: err = %v, want ErrEmptyKey", err)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	t.Run("removes a key", func(t *testing.T) {
		s := seedStore(t, `{"a": 1, "b": 2}`)

		if err := s.Delete("a"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if s.Has("a") {
			t.Fatalf("Has(a) = true after Delete")
		}
		if !s.Has("b") {
			t.Fatalf("Has(b) = false; unrelated key must survive")
		}
		b, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if strings.Contains(string(b), `"a"`) {
			t.Fatalf("file content = %q, deleted key still present", string(b))
		}
	})

	t.Run("absent key", func(t *testing.T) {
		s := seedStore(t, `{"a": 1}`)
		if err := s.Delete("zzz"); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("err = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		s := seedStore(t, `{}`)
		if err := s.Delete(""); !errors.Is(err, ErrEmptyKey) {
			t.Fatalf("err = %v, want ErrEmptyKey", err)
		}
	})
}

func TestStore_Merge(t *testing.T) {
	t.Run("deep merges nested objects", func(t *testing.T) {
		s := seedStore(t, `{"Conn": {"Timeout": 30, "Host": "db.local"}, "Name": "svc"}`)

		err := s.Merge(Document{
			"Conn":  map[string]any{"Timeout": 60},
			"Extra": true,
		})
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}

		if got, err := GetNested[int](s, "Conn", "Timeout"); err != nil || got != 60 {
			t.Fatalf("GetNested(Timeout) = %d, %v; want 60, nil", got, err)
		}
		if got, err := GetNested[string](s, "Conn", "Host"); err != nil || got != "db.local" {
			t.Fatalf("GetNested(Host) = %q, %v; sibling must survive the merge, nil", got, err)
		}
		if got, err := s.String("Name"); err != nil || got != "svc" {
			t.Fatalf("String(Name) = %q, %v; untouched key must survive, nil", got, err)
		}
		if got, err := s.Bool("Extra"); err != nil || !got {
			t.Fatalf("Bool(Extra) = %v, %v; want true, nil", got, err)
		}
		b, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !strings.Contains(string(b), `"Extra"`) {
			t.Fatalf("file content = %q, want merged Extra entry", string(b))
		}
	})

	t.Run("overrides scalar values", func(t *testing.T) {
		s := seedStore(t, `{"Name": "old"}`)

		if err := s.Merge(Document{"Name": "new"}); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if got, err := s.String("Name"); err != nil || got != "new" {
			t.Fatalf("String(Name) = %q, %v; want %q, nil", got, err, "new")
		}
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		s := seedStore(t, `{"a": 1}`)
		if err := s.Merge(nil); err != nil {
			t.Fatalf("Merge(nil): %v", err)
		}
		if err := s.Merge(Document{}); err != nil {
			t.Fatalf("Merge(empty): %v", err)
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		s := seedStore(t, `{}`)
		if err := s.Merge(Document{"": 1}); !errors.Is(err, ErrEmptyKey) {
			t.Fatalf("err = %v, want ErrEmptyKey", err)
		}
	})
}

func TestStore_WriteYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")

	s, err := New(p, WithCreateMissing())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Set("name", "alice"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(b), "name: alice") {
		t.Fatalf("yaml content = %q, want name entry", string(b))
	}

	reloaded, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, err := reloaded.String("name"); err != nil || got != "alice" {
		t.Fatalf("String(name) = %q, %v; want %q, nil", got, err, "alice")
	}
}

func TestStore_Set_Concurrent(t *testing.T) {
	// Stress concurrent Set calls on distinct keys. Every write re-reads the
	// file under the store lock, so no write may be lost.
	p := filepath.Join(t.TempDir(), "config.json")
	s, err := New(p, WithCreateMissing())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n := 16
	errCh := make(chan error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			<-start
			errCh <- s.Set(fmt.Sprintf("key-%02d", i), i)
		}()
	}
	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if s.Len() != n {
		t.Fatalf("Len() = %d, want %d", s.Len(), n)
	}

	// A fresh store over the same file must see every key.
	reloaded, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%02d", i)
		if got, err := Get[int](reloaded, key); err != nil || got != i {
			t.Fatalf("Get(%s) = %d, %v; want %d, nil", key, got, err, i)
		}
	}
}
