// Package achievement holds the achievement model, its one-way unlock
// transition, and the catalog the engine evaluates.
package achievement

import (
	"strings"
	"time"
)

// MaxAchievements bounds the catalog and the number of records a store reads.
const MaxAchievements = 50

// Well-known achievement IDs.
const (
	BootMaster  = "boot_master"
	ActivityPro = "activity_pro"
	// WaylandPro is the ID older data files use for the activity achievement.
	WaylandPro = "wayland_pro"
)

// Achievement is a single user-visible goal.
type Achievement struct {
	ID          string
	Name        string
	Description string
	// Progress is informational; unlocks are driven by the bound counter.
	Progress   int
	Target     int
	Unlocked   bool
	UnlockTime time.Time
}

// Unlock marks the achievement unlocked at the given time. It returns false
// without changing anything when the achievement is already unlocked.
func (a *Achievement) Unlock(at time.Time) bool {
	if a.Unlocked {
		return false
	}
	a.Unlocked = true
	a.UnlockTime = at.UTC().Truncate(time.Second)
	return true
}

// RecordProgress stores min(counter, Target) as the visible progress.
func (a *Achievement) RecordProgress(counter int) {
	if counter < 0 {
		counter = 0
	}
	if a.Target > 0 && counter > a.Target {
		counter = a.Target
	}
	a.Progress = counter
}

// Percent reports progress toward the target in the range 0..100.
func (a Achievement) Percent() int {
	if a.Unlocked {
		return 100
	}
	if a.Target <= 0 {
		return 0
	}
	pct := a.Progress * 100 / a.Target
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Defaults returns the catalog seeded when no persisted state exists.
func Defaults() []Achievement {
	return []Achievement{
		{ID: BootMaster, Name: "Boot Master", Description: "Boot 10 times successfully", Target: 10},
		{ID: ActivityPro, Name: "Activity Pro", Description: "Process 500 compositor events", Target: 500},
	}
}

func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
