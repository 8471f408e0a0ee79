// Package configmanager provides a JSON-file-backed configuration store with
// typed lookups and update-by-key persistence.
//
// It supports:
//  1. Eager loading of a JSON document (or a YAML document, selected by file
//     extension) into an in-memory snapshot, failing fast on a missing file or
//     malformed content.
//  2. Typed retrieval by top-level key via [Get], and by (key, sub-key) for
//     one level of nesting via [GetNested], plus non-generic convenience
//     accessors such as [Store.String], [Store.Int] and [Store.Duration].
//  3. Mutations ([Store.Set], [Store.SetNested], [Store.Delete],
//     [Store.Merge]) that re-read the file fresh, apply the change, rewrite
//     the whole file as indented text through a temp-file-then-rename, and
//     install the result as the new snapshot.
//  4. Optional binding of the whole document onto a caller struct through
//     [Binder], with environment overrides and struct defaults/validation
//     via github.com/ygrebnov/model.
//
// A Store is safe for concurrent use within a single process. Nothing
// coordinates writers across processes; the last rewrite of the file wins.
//
// Typical usage:
//
//	store, err := configmanager.New("app.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	url, err := configmanager.Get[string](store, "ApiUrl")
//	timeout, err := configmanager.GetNested[int](store, "Conn", "Timeout")
//	err = store.Set("Retries", 3)
//	_ = url; _ = timeout
package configmanager
