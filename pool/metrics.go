package pool

import (
	"sync/atomic"
	"time"
)

type stats struct {
	created          atomic.Int64
	destroyed        atomic.Int64
	acquisitions     atomic.Int64
	hits             atomic.Int64
	releases         atomic.Int64
	timeouts         atomic.Int64
	creationFailures atomic.Int64
	cleanupFailures  atomic.Int64
	errors           atomic.Int64
	scaleUps         atomic.Int64
	scaleDowns       atomic.Int64
	totalWait        atomic.Int64
	totalInUse       atomic.Int64
	lastAcquire      atomic.Int64
}

// Metrics is a read-only snapshot of pool level counters and gauges.
type Metrics struct {
	PoolID       string
	ResourceType string

	Total     int
	Available int
	InUse     int
	Creating  int
	PeakInUse int
	MinSize   int
	MaxSize   int

	Created          int64
	Destroyed        int64
	Acquisitions     int64
	Hits             int64
	Releases         int64
	Timeouts         int64
	CreationFailures int64
	CleanupFailures  int64
	Errors           int64
	ScaleUps         int64
	ScaleDowns       int64

	AverageWait  time.Duration
	TotalInUse   time.Duration
	Utilization  float64
	HitRate      float64
	ErrorRate    float64
	CreatedAt    time.Time
	LastAcquired time.Time
	Closed       bool
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool[T]) Metrics() Metrics {
	p.mu.Lock()
	m := Metrics{
		PoolID:       p.id,
		ResourceType: p.resourceType,
		Total:        len(p.resources),
		Available:    len(p.available),
		InUse:        len(p.resources) - len(p.available),
		Creating:     p.creating,
		PeakInUse:    p.peakInUse,
		MinSize:      p.cfg.MinSize,
		MaxSize:      p.cfg.MaxSize,
		CreatedAt:    p.createdAt,
		Closed:       p.closing,
	}
	p.mu.Unlock()

	m.Created = p.stats.created.Load()
	m.Destroyed = p.stats.destroyed.Load()
	m.Acquisitions = p.stats.acquisitions.Load()
	m.Hits = p.stats.hits.Load()
	m.Releases = p.stats.releases.Load()
	m.Timeouts = p.stats.timeouts.Load()
	m.CreationFailures = p.stats.creationFailures.Load()
	m.CleanupFailures = p.stats.cleanupFailures.Load()
	m.Errors = p.stats.errors.Load()
	m.ScaleUps = p.stats.scaleUps.Load()
	m.ScaleDowns = p.stats.scaleDowns.Load()
	m.TotalInUse = time.Duration(p.stats.totalInUse.Load())

	if m.Total > 0 {
		m.Utilization = float64(m.InUse) / float64(m.Total)
	}
	if m.Acquisitions > 0 {
		m.AverageWait = time.Duration(p.stats.totalWait.Load() / m.Acquisitions)
		m.HitRate = float64(m.Hits) / float64(m.Acquisitions)
		m.ErrorRate = float64(m.Errors) / float64(m.Acquisitions)
	}
	if ts := p.stats.lastAcquire.Load(); ts != 0 {
		m.LastAcquired = time.Unix(0, ts)
	}

	return m
}
