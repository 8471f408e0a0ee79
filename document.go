package configmanager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrInaccessiblePath        = errors.New("inaccessible path")
	ErrCannotCreateDirectories = errors.New("cannot create directories")
)

// Document is the in-memory representation of the parsed configuration file:
// a mapping from top-level keys to loosely-typed values (string, float64,
// bool, nested map[string]any, []any, nil). Values follow encoding/json
// conventions regardless of the source format.
type Document map[string]any

// EnsurePath ensures the directories for a file path exist and the path
// does not already exist as a directory.
func EnsurePath(p string) error {
	info, err := os.Stat(p)
	switch {
	case err == nil:
		if info.IsDir() {
			return fmt.Errorf("%w: %s", ErrInaccessiblePath, p)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrInaccessiblePath, p)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("%w: %w", ErrCannotCreateDirectories, err)
	}
	return nil
}

func loadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w %s: %w", ErrNotFound, path, err)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc Document
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
		if err == nil {
			// yaml.v3 decodes nested untyped mappings with the enclosing
			// named map type. Round-trip through JSON so nested values are
			// plain map[string]any, same as JSON input.
			doc, err = convert[Document](doc)
		}
	default:
		// JSON is the primary format; unknown extensions read as JSON.
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrParse, path, err)
	}
	if doc == nil {
		// A top-level null (or an empty YAML file) is an empty document.
		doc = Document{}
	}
	return doc, nil
}

// normalize passes value through a JSON round-trip so structured values are
// stored as plain object mappings and serialize correctly as nested objects.
// Values that cannot be serialized fail with ErrFormat.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return v, nil
}

// convert decodes a document value into T through the JSON codec. The
// round-trip is the single conversion path for every supported value shape;
// a value that does not fit T fails with ErrConvert.
func convert[T any](value any) (T, error) {
	var out T
	data, err := json.Marshal(value)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrConvert, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrConvert, err)
	}
	return out, nil
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// envRefPattern matches $VAR and ${VAR} references inside string values.
var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = expandValue(v)
	}
	return out
}

func expandValue(v any) any {
	switch tv := v.(type) {
	case string:
		return expandString(tv)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = expandValue(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = expandValue(e)
		}
		return out
	default:
		return v
	}
}

// expandString substitutes environment variable references; references to
// unset variables are left verbatim.
func expandString(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

const defaultFileName = "config.json"

// DefaultPath resolves the conventional location for a configuration file
// named config.json inside dirName under the user configuration directory.
// $XDG_CONFIG_HOME is preferred when set, then os.UserConfigDir. Nothing is
// created on disk; the returned path is a candidate for New.
func DefaultPath(dirName string) (string, error) {
	if dirName == "" {
		return "", errors.New("dirName must not be empty")
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config dir: %w", err)
		}
	}
	return filepath.Join(dir, dirName, defaultFileName), nil
}

func writeDocument(path string, doc Document) (retErr error) {
	// Guard against panics from encoders (yaml panics on unsupported kinds).
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("%w: %v", ErrFormat, r)
		}
	}()

	ext := filepath.Ext(path)
	var data []byte
	var err error
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "temp-config-*"+ext)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w %s: %w", ErrWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w %s: %w", ErrWrite, path, err)
	}
	return nil
}
