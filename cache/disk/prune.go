package disk

import (
	"slices"
	"strings"
	"time"
)

// Entry describes a file in a cache directory as reported by a Store.
type Entry struct {
	Name    string
	ModTime time.Time
	Size    int64
}

// planPrune decides which entries survive initialization.
//
// Entries are ordered newest first (ties broken by name). Everything beyond
// maxEntries is dropped, then every remaining entry older than maxAge at now.
// A zero maxAge disables expiry. keep is returned newest first.
func planPrune(entries []Entry, maxEntries int, maxAge time.Duration, now time.Time) (keep, drop []Entry) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	if len(sorted) > maxEntries {
		drop = append(drop, sorted[maxEntries:]...)
		sorted = sorted[:maxEntries]
	}
	if maxAge <= 0 {
		return sorted, drop
	}

	keep = make([]Entry, 0, len(sorted))
	for _, e := range sorted {
		if now.Sub(e.ModTime) > maxAge {
			drop = append(drop, e)
			continue
		}
		keep = append(keep, e)
	}
	return keep, drop
}
