package disk

import (
	"fmt"
	"time"
)

// Usage summarizes the files backing the tracked entries.
type Usage struct {
	Entries int
	Bytes   int64
	Oldest  time.Time
	Newest  time.Time
}

// Usage lists the cache directory and sums the tracked entries. Untracked
// files are not counted. A degraded cache reports zero usage.
func (c *Cache) Usage() (Usage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeInitialized()

	if c.degraded {
		return Usage{}, nil
	}
	entries, err := c.store.List()
	if err != nil {
		return Usage{}, fmt.Errorf("list cache dir: %w", err)
	}

	var u Usage
	for _, e := range entries {
		if !c.index.contains(e.Name) {
			continue
		}
		u.Entries++
		u.Bytes += e.Size
		if u.Oldest.IsZero() || e.ModTime.Before(u.Oldest) {
			u.Oldest = e.ModTime
		}
		if e.ModTime.After(u.Newest) {
			u.Newest = e.ModTime
		}
	}
	return u, nil
}
