package stats

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rxtx-hosting/hostpulse/pkg/history"
	"github.com/rxtx-hosting/hostpulse/pkg/netinfo"
	"github.com/rxtx-hosting/hostpulse/pkg/sampler"
)

// Snapshot is the composed view served to clients. A Snapshot is never
// mutated after the cache publishes it.
type Snapshot struct {
	Memory    *sampler.Memory     `json:"memory"`
	CPU       sampler.CPU         `json:"cpu"`
	System    *sampler.System     `json:"system"`
	Network   []netinfo.Interface `json:"network,omitempty"`
	History   []history.Sample    `json:"history"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type Source interface {
	Sample() sampler.Reading
}

type InterfaceLister interface {
	Interfaces() ([]netinfo.Interface, error)
}

// Cache memoizes the last Snapshot for interval. Refreshes are serialized so
// the history buffer only ever sees one writer.
type Cache struct {
	source   Source
	history  *history.Buffer
	network  InterfaceLister
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	onUpdate func(*Snapshot)

	mu         sync.Mutex
	snapshot   *Snapshot
	lastUpdate time.Time
}

type Option func(*Cache)

// WithNetwork adds a network section to every snapshot.
func WithNetwork(l InterfaceLister) Option {
	return func(c *Cache) { c.network = l }
}

// WithOnRefresh registers fn to receive every new Snapshot, whether the
// refresh came from Get or Refresh. fn runs with the cache locked and must
// not call back into the cache.
func WithOnRefresh(fn func(*Snapshot)) Option {
	return func(c *Cache) { c.onUpdate = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCache(source Source, buf *history.Buffer, interval time.Duration, opts ...Option) *Cache {
	c := &Cache{
		source:   source,
		history:  buf,
		interval: interval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached Snapshot while it is younger than the interval and
// refreshes it synchronously otherwise.
func (c *Cache) Get() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Sub(c.lastUpdate) < c.interval {
		return c.snapshot
	}
	return c.refreshLocked()
}

// Refresh samples the host unconditionally and replaces the cached Snapshot.
func (c *Cache) Refresh() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked()
}

func (c *Cache) Interval() time.Duration {
	return c.interval
}

func (c *Cache) refreshLocked() *Snapshot {
	reading := c.source.Sample()

	c.history.Append(history.Sample{
		Timestamp:     reading.Timestamp,
		CPUPercent:    reading.CPU.UsagePercent,
		MemoryPercent: reading.MemoryPercent(),
	})

	snap := &Snapshot{
		Memory:    reading.Memory,
		CPU:       reading.CPU,
		System:    reading.System,
		History:   c.history.Samples(),
		UpdatedAt: reading.Timestamp,
	}

	if c.network != nil {
		ifaces, err := c.network.Interfaces()
		if err != nil {
			c.logger.Warn("Network interfaces unavailable", "error", err)
		} else {
			snap.Network = ifaces
		}
	}

	c.snapshot = snap
	c.lastUpdate = c.now()

	c.logger.Debug("Stats refreshed", "available", reading.Available(), "history", len(snap.History))
	if c.onUpdate != nil {
		c.onUpdate(snap)
	}
	return snap
}
