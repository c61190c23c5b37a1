package achievement

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned when an ID is already present in the catalog.
	ErrDuplicateID = errors.New("duplicate achievement id")
	// ErrCatalogFull is returned once MaxAchievements entries are held.
	ErrCatalogFull = errors.New("achievement catalog full")
)

// Catalog is the ordered set of achievements an engine tracks. IDs are unique.
// It is not safe for concurrent use; the engine state lock guards it.
type Catalog struct {
	items []*Achievement
	byID  map[string]*Achievement
}

// NewCatalog builds a catalog, skipping entries that are empty, duplicated,
// or beyond MaxAchievements. The number of skipped entries is returned.
func NewCatalog(list []Achievement) (*Catalog, int) {
	c := &Catalog{byID: make(map[string]*Achievement, len(list))}
	skipped := 0
	for _, a := range list {
		if err := c.Add(a); err != nil {
			skipped++
		}
	}
	return c, skipped
}

// Add appends a copy of a.
func (c *Catalog) Add(a Achievement) error {
	a.ID = normalizeID(a.ID)
	if a.ID == "" {
		return fmt.Errorf("add achievement: empty id")
	}
	if _, ok := c.byID[a.ID]; ok {
		return fmt.Errorf("add achievement %q: %w", a.ID, ErrDuplicateID)
	}
	if len(c.items) >= MaxAchievements {
		return fmt.Errorf("add achievement %q: %w", a.ID, ErrCatalogFull)
	}
	entry := a
	c.items = append(c.items, &entry)
	c.byID[entry.ID] = &entry
	return nil
}

// Get returns the live entry for id.
func (c *Catalog) Get(id string) (*Achievement, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Each calls fn for every entry in catalog order.
func (c *Catalog) Each(fn func(*Achievement)) {
	for _, a := range c.items {
		fn(a)
	}
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Snapshot returns copies of all entries in catalog order.
func (c *Catalog) Snapshot() []Achievement {
	out := make([]Achievement, 0, len(c.items))
	for _, a := range c.items {
		out = append(out, *a)
	}
	return out
}
