package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wtask/sharechat/internal/logger"
)

const (
	// MaxNameLength - longest accepted file name in bytes.
	MaxNameLength = 255

	tempPattern = ".upload-*.part"
)

// Entry - metadata of a file which completed verified upload.
type Entry struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Uploader   string    `json:"uploader"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Catalog - in-memory index of shared files backed by a storage directory.
// Entries appear only after the file content is in place, so every listed
// entry is readable with exactly its recorded size.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string

	onChange func(n int)
}

// New - prepares storage directory and removes partial uploads left by previous runs.
// Files already present in the directory are not listed: metadata is not persisted.
func New(dir string) (*Catalog, error) {
	if dir == "" {
		return nil, fmt.Errorf("catalog.New: storage directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("catalog.New: can't create storage directory: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return nil, fmt.Errorf("catalog.New: can't scan storage directory: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			logger.Warn("can't remove stale partial upload", logger.KeyPath, path, logger.KeyError, err)
			continue
		}
		logger.Debug("removed stale partial upload", logger.KeyPath, path)
	}
	return &Catalog{
		dir:     dir,
		entries: make(map[string]*Entry),
	}, nil
}

// OnChange - registers callback receiving number of entries after every change.
// Must be called before the catalog is shared.
func (c *Catalog) OnChange(f func(n int)) {
	c.onChange = f
}

// Dir - storage directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Sanitize - validates declared file name as a plain storage name.
func Sanitize(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "", name == ".", name == "..":
		return "", ErrInvalidName
	case len(name) > MaxNameLength:
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	case !utf8.ValidString(name):
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	case strings.ContainsAny(name, `/\`):
		return "", fmt.Errorf("%w: path separators are not allowed", ErrInvalidName)
	case strings.HasPrefix(name, ".upload-"):
		return "", fmt.Errorf("%w: reserved prefix", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control characters are not allowed", ErrInvalidName)
		}
	}
	return name, nil
}

// Create - starts new upload into temporary file.
func (c *Catalog) Create(name string) (*Upload, error) {
	name, err := Sanitize(name)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(c.dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("catalog.Create: %w", err)
	}
	return &Upload{catalog: c, name: name, file: f}, nil
}

// Open - looks up file and opens its content under the catalog lock,
// so the returned entry always matches the opened content.
// Caller must close the file.
func (c *Catalog) Open(name string) (Entry, *os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return Entry{}, nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(c.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			// removed behind our back
			c.removeLocked(name)
			return Entry{}, nil, ErrNotFound
		}
		return Entry{}, nil, fmt.Errorf("catalog.Open: %w", err)
	}
	return *e, f, nil
}

// Get - returns entry by name.
func (c *Catalog) Get(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot - copies all entries in upload order.
func (c *Catalog) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]Entry, 0, len(c.order))
	for _, name := range c.order {
		list = append(list, *c.entries[name])
	}
	return list
}

// Len - number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// publish - moves verified temporary file into place and lists it.
// A re-upload under the same name replaces the previous entry.
func (c *Catalog) publish(tmp string, e Entry) error {
	c.mu.Lock()
	if err := os.Rename(tmp, filepath.Join(c.dir, e.Name)); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("catalog: can't publish %q: %w", e.Name, err)
	}
	if _, ok := c.entries[e.Name]; ok {
		c.removeLocked(e.Name)
	}
	c.entries[e.Name] = &e
	c.order = append(c.order, e.Name)
	n := len(c.entries)
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(n)
	}
	return nil
}

func (c *Catalog) removeLocked(name string) {
	delete(c.entries, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
