package chatview

import (
	"sync"
	"time"
)

// Flash is a short-lived confirmation shown in the status line.
type Flash struct {
	mu      sync.RWMutex
	text    string
	expires time.Time
}

// Set shows text for d.
func (f *Flash) Set(text string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.expires = time.Now().Add(d)
}

// Get returns the current text, or "" once expired.
func (f *Flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !time.Now().Before(f.expires) {
		return ""
	}
	return f.text
}
