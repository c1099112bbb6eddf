package limiter

import (
	"slices"
	"sync"
)

type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

type counterEntry struct {
	count int
	seq   uint64
}

// Counter tracks requests per client address since the last Reset.
type Counter struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	nextSeq uint64
}

func NewCounter() *Counter {
	return &Counter{entries: make(map[string]*counterEntry)}
}

func (c *Counter) Increment(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ip]
	if !ok {
		e = &counterEntry{seq: c.nextSeq}
		c.nextSeq++
		c.entries[ip] = e
	}
	e.count++
}

// TopN returns up to n entries by descending count. Equal counts keep first
// seen order.
func (c *Counter) TopN(n int) []IPCount {
	if n <= 0 {
		return []IPCount{}
	}

	c.mu.Lock()
	type ranked struct {
		IPCount
		seq uint64
	}
	all := make([]ranked, 0, len(c.entries))
	for ip, e := range c.entries {
		all = append(all, ranked{IPCount{IP: ip, Count: e.count}, e.seq})
	}
	c.mu.Unlock()

	slices.SortFunc(all, func(a, b ranked) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		if a.seq < b.seq {
			return -1
		}
		return 1
	})

	if len(all) > n {
		all = all[:n]
	}
	out := make([]IPCount, len(all))
	for i, r := range all {
		out[i] = r.IPCount
	}
	return out
}

// Reset drops every entry at once.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*counterEntry)
	c.nextSeq = 0
}

func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
