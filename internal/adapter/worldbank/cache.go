package worldbank

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
)

const fetchedAtLayout = "2006-01-02 15:04:05"

// CacheFile is the on-disk form of one year's fetched data.
type CacheFile struct {
	FetchedAt  string  `json:"fetchedAt"`
	TargetYear int     `json:"targetYear"`
	Data       Dataset `json:"data"`
}

// FileCache stores fetched datasets as wb_data_<year>.json in a directory.
type FileCache struct {
	dir   string
	clock clockwork.Clock
}

// NewFileCache creates a cache rooted at dir. A nil clock selects real time.
func NewFileCache(dir string, clock clockwork.Clock) *FileCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FileCache{dir: dir, clock: clock}
}

// Path returns the cache file for year.
func (c *FileCache) Path(year int) string {
	return filepath.Join(c.dir, fmt.Sprintf("wb_data_%d.json", year))
}

// Load reads the cached data for year. The second result is false when no
// cache file exists.
func (c *FileCache) Load(year int) (CacheFile, bool, error) {
	data, err := os.ReadFile(c.Path(year))
	if errors.Is(err, fs.ErrNotExist) {
		return CacheFile{}, false, nil
	}
	if err != nil {
		return CacheFile{}, false, fmt.Errorf("read cache: %w", err)
	}

	var cf CacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return CacheFile{}, false, fmt.Errorf("decode cache %s: %w", c.Path(year), err)
	}
	if cf.Data == nil {
		cf.Data = Dataset{}
	}
	return cf, true, nil
}

// Save writes data for year, stamped with the current time, and returns the
// file path.
func (c *FileCache) Save(year int, data Dataset) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	out, err := json.MarshalIndent(CacheFile{
		FetchedAt:  c.clock.Now().Format(fetchedAtLayout),
		TargetYear: year,
		Data:       data,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode cache: %w", err)
	}

	path := c.Path(year)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write cache: %w", err)
	}
	return path, nil
}
