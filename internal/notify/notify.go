// Package notify keeps a bounded in-memory feed of user-facing
// notices. Notices come from two places: components pushing directly
// (connection lost, ticket created) and a slog tee that promotes
// warnings and errors from anywhere in the process.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Notice is one dismissible notification.
type Notice struct {
	ID        int64      `json:"id"`
	Time      time.Time  `json:"time"`
	Level     slog.Level `json:"level"`
	Message   string     `json:"message"`
	Component string     `json:"component,omitempty"`
	Dismissed bool       `json:"dismissed"`
}

// Center is a thread-safe ring buffer of notices. When full, the oldest
// notice is overwritten whether or not it was dismissed.
type Center struct {
	mu      sync.Mutex
	notices []Notice
	size    int
	pos     int
	count   int
	nextID  int64
}

// New creates a Center that holds up to size notices.
func New(size int) *Center {
	return &Center{
		notices: make([]Notice, size),
		size:    size,
	}
}

// Push records a notice and returns it with its assigned ID.
func (c *Center) Push(level slog.Level, message, component string) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	n := Notice{
		ID:        c.nextID,
		Time:      time.Now(),
		Level:     level,
		Message:   message,
		Component: component,
	}
	c.writeLocked(n)
	return n
}

func (c *Center) writeLocked(n Notice) {
	c.notices[c.pos] = n
	c.pos = (c.pos + 1) % c.size
	if c.count < c.size {
		c.count++
	}
}

// Latest returns up to n undismissed notices, newest first.
func (c *Center) Latest(n int) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Notice
	for i := c.count - 1; i >= 0; i-- {
		idx := (c.oldestLocked() + i) % c.size
		if c.notices[idx].Dismissed {
			continue
		}
		out = append(out, c.notices[idx])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// Dismiss marks a notice handled. Reports false for unknown IDs.
func (c *Center) Dismiss(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.count; i++ {
		idx := (c.oldestLocked() + i) % c.size
		if c.notices[idx].ID == id {
			c.notices[idx].Dismissed = true
			return true
		}
	}
	return false
}

// DismissAll marks every notice handled.
func (c *Center) DismissAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.count; i++ {
		idx := (c.oldestLocked() + i) % c.size
		c.notices[idx].Dismissed = true
	}
}

// Query returns notices matching the filters, oldest first, dismissed
// included. A zero since considers everything; limit <= 0 returns all
// matches.
func (c *Center) Query(since time.Time, minLevel slog.Level, limit int) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Notice
	for i := 0; i < c.count; i++ {
		idx := (c.oldestLocked() + i) % c.size
		n := c.notices[idx]
		if !since.IsZero() && n.Time.Before(since) {
			continue
		}
		if n.Level < minLevel {
			continue
		}
		out = append(out, n)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// oldestLocked is the index of the oldest stored notice.
func (c *Center) oldestLocked() int {
	if c.count == c.size {
		return c.pos
	}
	return 0
}
