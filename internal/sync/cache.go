package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// cacheVersion guards the on-disk format. A mismatch discards the file and
// forces a cold refresh rather than guessing at migrations.
const cacheVersion = 1

// fileCache persists the engine's day map between sessions so the UI can
// render immediately on startup, before the first refresh completes.
type fileCache struct {
	path string
}

type cacheFile struct {
	Version  int                  `json:"version"`
	UserID   string               `json:"user_id"`
	CoupleID string               `json:"couple_id"`
	SavedAt  time.Time            `json:"saved_at"`
	Days     map[string]*DayState `json:"days"`
}

func newFileCache(path string) *fileCache {
	return &fileCache{path: path}
}

// Load reads the cached day map. A missing file is not an error; it returns
// an empty map. A file for a different user is discarded: cached partner
// content must never leak across accounts.
func (c *fileCache) Load(userID string) (map[string]*DayState, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return map[string]*DayState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Corrupt cache reads as empty; the next refresh rewrites it.
		return map[string]*DayState{}, nil
	}
	if file.Version != cacheVersion || file.UserID != userID {
		return map[string]*DayState{}, nil
	}
	if file.Days == nil {
		file.Days = map[string]*DayState{}
	}
	return file.Days, nil
}

// Save atomically writes the day map. Write-to-temp-then-rename so a crash
// mid-write can't leave a truncated cache.
func (c *fileCache) Save(userID, coupleID string, days map[string]*DayState) error {
	file := cacheFile{
		Version:  cacheVersion,
		UserID:   userID,
		CoupleID: coupleID,
		SavedAt:  time.Now().UTC(),
		Days:     days,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache: %w", err)
	}
	return nil
}
