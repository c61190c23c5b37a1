package engine

import (
	"sync"

	"sweetexp/internal/achievement"
	"sweetexp/internal/notification"
)

// State is the catalog, queue, and enabled flag shared by every worker.
type State struct {
	mu      sync.Mutex
	catalog *achievement.Catalog
	queue   *notification.Queue
	enabled bool
}

// NewState returns a disabled state with an empty catalog.
func NewState(queueCapacity int) *State {
	catalog, _ := achievement.NewCatalog(nil)
	return &State{
		catalog: catalog,
		queue:   notification.NewQueue(queueCapacity),
	}
}

// Replace swaps in a new catalog and returns how many entries were skipped.
func (s *State) Replace(list []achievement.Achievement) int {
	catalog, skipped := achievement.NewCatalog(list)
	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()
	return skipped
}

// Enqueue pushes n and reports whether the queue accepted it.
func (s *State) Enqueue(n notification.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Push(n)
}

// Pop removes the oldest queued notification.
func (s *State) Pop() (notification.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Pop()
}

// QueueLen returns the number of queued notifications.
func (s *State) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// QueueCap returns the queue capacity.
func (s *State) QueueCap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Cap()
}

func (s *State) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *State) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Snapshot returns a copy of the catalog.
func (s *State) Snapshot() []achievement.Achievement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Snapshot()
}

// Achievement returns a copy of one catalog entry.
func (s *State) Achievement(id string) (achievement.Achievement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.catalog.Get(id)
	if !ok {
		return achievement.Achievement{}, false
	}
	return *a, true
}

// locked runs fn with the state lock held.
func (s *State) locked(fn func(catalog *achievement.Catalog, queue *notification.Queue)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.catalog, s.queue)
}
