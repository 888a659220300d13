// Package envfile maintains the plaintext KEY=VALUE mirror consumed by the
// running process at startup. The file is the second persistence sink of the
// configuration pipeline; the encrypted env_vars table stays authoritative.
package envfile

import (
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// linePattern matches a settings line. Lines that do not match (comments,
// export statements, garbage) are preserved verbatim on rewrite but are not
// treated as settings.
var linePattern = regexp.MustCompile(`^([A-Za-z0-9_]+)\s*=\s*(.*)$`)

// Entry is one KEY=VALUE line in file order.
type Entry struct {
	Key   string
	Value string
}

// File is a line-oriented env file. Every rewrite is a whole-file
// read-modify-write guarded by a single mutex shared by all keys, so
// concurrent writers cannot drop each other's lines.
type File struct {
	path string
	mu   sync.Mutex
}

// New creates a File at path. A missing file is treated as empty.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the underlying file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) readLines() ([]string, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read env file")
	}

	return splitLines(string(content)), nil
}

func splitLines(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

// Entries returns all settings lines in file order.
func (f *File) Entries() ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.readLines()
	if err != nil {
		return nil, err
	}

	var entries []Entry

	for _, line := range lines {
		if m := linePattern.FindStringSubmatch(line); m != nil {
			entries = append(entries, Entry{Key: m[1], Value: m[2]})
		}
	}

	return entries, nil
}

// Get returns the value for key and whether the key is present.
func (f *File) Get(key string) (string, bool, error) {
	entries, err := f.Entries()
	if err != nil {
		return "", false, err
	}

	for _, e := range entries {
		if e.Key == key {
			return e.Value, true, nil
		}
	}

	return "", false, nil
}

// Load exports every settings line into the process environment, the way the
// running site reads its secrets at startup. Variables already present in
// the environment win.
func (f *File) Load() error {
	entries, err := f.Entries()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if _, exists := os.LookupEnv(e.Key); exists {
			continue
		}

		if err := os.Setenv(e.Key, e.Value); err != nil {
			return errors.Wrap(err, "export "+e.Key)
		}
	}

	return nil
}

// Upsert replaces the line for key, preserving file order, or appends a new
// line if the key is absent, then rewrites the whole file.
func (f *File) Upsert(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.readLines()
	if err != nil {
		return err
	}

	found := false

	for i, line := range lines {
		if m := linePattern.FindStringSubmatch(line); m != nil && m[1] == key {
			lines[i] = key + "=" + value
			found = true
		}
	}

	if !found {
		lines = append(lines, key+"="+value)
	}

	out := strings.Join(lines, "\n") + "\n"

	return errors.Wrap(os.WriteFile(f.path, []byte(out), 0o600), "write env file")
}
