// Package notification defines the messages the engine delivers to the
// presentation process and the bounded queue that holds them.
package notification

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageBytes bounds Message length.
const MaxMessageBytes = 255

// Category tags the origin of a notification.
type Category string

const (
	CategoryAchievement Category = "achievement"
	CategoryAmbient     Category = "ambient"
	CategorySystem      Category = "system"
)

// Priority passed through to the consumer. Higher is more urgent.
const (
	PrioritySystem      = 1
	PriorityAmbient     = 2
	PriorityAchievement = 5
)

// Notification is one message for the presentation process.
type Notification struct {
	ID        string
	Message   string
	Category  Category
	Timestamp time.Time
	Priority  int
}

// New builds a notification with a fresh ID and the default priority for
// its category. Messages longer than MaxMessageBytes are truncated.
func New(category Category, message string, at time.Time) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Message:   Truncate(message, MaxMessageBytes),
		Category:  category,
		Timestamp: at,
		Priority:  category.DefaultPriority(),
	}
}

// Achievement builds the unlock announcement for an achievement.
func Achievement(name, description string, at time.Time) Notification {
	return New(CategoryAchievement, fmt.Sprintf("🏆 Achievement Unlocked: %s!\n%s", name, description), at)
}

// DefaultPriority returns the priority used for the category.
func (c Category) DefaultPriority() int {
	switch c {
	case CategoryAchievement:
		return PriorityAchievement
	case CategoryAmbient:
		return PriorityAmbient
	default:
		return PrioritySystem
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAchievement, CategoryAmbient, CategorySystem:
		return true
	}
	return false
}

// Truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
