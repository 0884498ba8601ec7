// Package source reads project files as line slices and keeps recently used
// files in memory.
package source

import (
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of files kept when NewCache is given a
// non-positive size.
const DefaultCacheSize = 256

// Cache is a read-through cache of file contents split into lines. It is safe
// for concurrent use. Callers must not modify the returned slices.
//
// Entries are evicted least recently used first once more than size files
// are held. A cache sized to the whole file set never evicts, so entries
// primed with Put keep serving that text after the files change on disk.
type Cache struct {
	files *lru.Cache[string, []string]
}

// NewCache creates a cache holding up to size files.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	files, err := lru.New[string, []string](size)
	if err != nil {
		// Only returned for non-positive sizes, which are excluded above.
		panic(err)
	}
	return &Cache{files: files}
}

// Lines returns the lines of the file at path. Line i (1-based) is at index i-1.
func (c *Cache) Lines(path string) ([]string, error) {
	if lines, ok := c.files.Get(path); ok {
		return lines, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	lines := Split(string(data))
	c.files.Add(path, lines)
	return lines, nil
}

// Put stores lines for path, replacing anything cached.
func (c *Cache) Put(path string, lines []string) {
	c.files.Add(path, lines)
}

// Split breaks text into lines on "\n". A trailing newline yields a final
// empty line so that Join(Split(s)) == s.
func Split(text string) []string {
	return strings.Split(text, "\n")
}

// Join is the inverse of Split.
func Join(lines []string) string {
	return strings.Join(lines, "\n")
}
