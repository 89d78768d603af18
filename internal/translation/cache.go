package translation

import (
	"sync"

	"github.com/snarg/medscribe/internal/backend"
)

// Key identifies one translation of one transcription.
type Key struct {
	TranscriptionID backend.ID
	Language        string
}

// Cache holds translations fetched or created during this process. Entries
// leave only when their transcription is deleted.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]backend.Translation
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]backend.Translation)}
}

func (c *Cache) Get(k Key) (backend.Translation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[k]
	return t, ok
}

func (c *Cache) Put(k Key, t backend.Translation) {
	c.mu.Lock()
	c.entries[k] = t
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ForTranscription returns every cached translation of id.
func (c *Cache) ForTranscription(id backend.ID) []backend.Translation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []backend.Translation
	for k, t := range c.entries {
		if k.TranscriptionID == id {
			out = append(out, t)
		}
	}
	return out
}

// Evict drops every cached translation of id and returns how many there were.
func (c *Cache) Evict(id backend.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.TranscriptionID == id {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
