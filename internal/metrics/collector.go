// Package metrics provides in-memory runtime statistics for a pipeline run.
package metrics

import (
	"sync"
	"time"
)

// Stage names recorded by the pipeline.
const (
	StageLoad     = "load"
	StageEmbed    = "embed"
	StageGraph    = "graph"
	StageCluster  = "cluster"
	StageValidate = "validate"
	StageReview   = "review"
)

// StageMetrics holds aggregated metrics for one pipeline stage.
type StageMetrics struct {
	Count     int64
	TotalTime time.Duration

	// Items is stage-specific: companies loaded, batches embedded,
	// edges retained.
	Items int64
}

// StageSnapshot is the serializable view of one stage's metrics.
type StageSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	Items       int64   `json:"items,omitempty"`
	ItemsPerSec float64 `json:"items_per_sec,omitempty"`
}

// Snapshot is the full run statistics at a point in time, embedded into
// the run metadata artifact.
type Snapshot struct {
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Stages        map[string]StageSnapshot `json:"stages"`
}

// Collector aggregates stage statistics. All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	stages    map[string]*StageMetrics
}

// NewCollector creates a collector with the run clock started.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		stages:    make(map[string]*StageMetrics),
	}
}

// RecordStage records one completed run of a stage.
func (c *Collector) RecordStage(stage string, duration time.Duration, items int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.stages[stage]
	if !ok {
		m = &StageMetrics{}
		c.stages[stage] = m
	}
	m.Count++
	m.TotalTime += duration
	m.Items += items
}

// Time runs fn, recording its duration under stage. The returned item
// count is attributed to the stage.
func (c *Collector) Time(stage string, fn func() (int64, error)) error {
	start := time.Now()
	items, err := fn()
	c.RecordStage(stage, time.Since(start), items)
	return err
}

// Snapshot returns the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Stages:        make(map[string]StageSnapshot, len(c.stages)),
	}
	for stage, m := range c.stages {
		s := StageSnapshot{
			Count:       m.Count,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			Items:       m.Items,
		}
		if secs := m.TotalTime.Seconds(); secs > 0 && m.Items > 0 {
			s.ItemsPerSec = float64(m.Items) / secs
		}
		snap.Stages[stage] = s
	}
	return snap
}
