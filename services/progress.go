// services/progress.go
package services

import (
	"sync/atomic"
	"time"
)

// Progress exposes live counters of a run to other goroutines (the status
// endpoint). The traversal itself stays single-threaded.
type Progress struct {
	runID     atomic.Value // string
	startedAt atomic.Int64 // unix nanos
	running   atomic.Bool
	processed atomic.Int64
}

func NewProgress() *Progress {
	p := &Progress{}
	p.runID.Store("")
	return p
}

func (p *Progress) start(runID string, at time.Time) {
	p.runID.Store(runID)
	p.startedAt.Store(at.UnixNano())
	p.processed.Store(0)
	p.running.Store(true)
}

func (p *Progress) finish() {
	p.running.Store(false)
}

func (p *Progress) add(n int64) int64 {
	return p.processed.Add(n)
}

func (p *Progress) RunID() string {
	return p.runID.Load().(string)
}

func (p *Progress) Running() bool {
	return p.running.Load()
}

func (p *Progress) Processed() int64 {
	return p.processed.Load()
}

// Elapsed is zero before the first run starts.
func (p *Progress) Elapsed(now time.Time) time.Duration {
	started := p.startedAt.Load()
	if started == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, started))
}
