// Package maintenance prunes archived imagery payloads, audit rows and
// expired cache entries on a schedule.
package maintenance

import (
	"context"
	"log"
	"time"
)

type Store interface {
	CleanupOldRawPayloads(retentionDays int) (int64, error)
	CleanupOldImageryRuns(retentionDays int) (int64, error)
}

type Pruner interface {
	Prune() (int, error)
}

// Result counts what one pass removed.
type Result struct {
	Payloads     int64
	ImageryRuns  int64
	CacheEntries int
}

type Scheduler struct {
	store         Store
	cache         Pruner
	retentionDays int
	interval      time.Duration
}

// NewScheduler returns a scheduler that keeps retentionDays of history. cache
// may be nil.
func NewScheduler(store Store, cache Pruner, retentionDays int) *Scheduler {
	return &Scheduler{
		store:         store,
		cache:         cache,
		retentionDays: retentionDays,
		interval:      24 * time.Hour,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.runLogged()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("maintenance: shutting down")
			return
		case <-ticker.C:
			s.runLogged()
		}
	}
}

func (s *Scheduler) runLogged() {
	res, err := s.RunOnce()
	if err != nil {
		log.Printf("maintenance: %v", err)
		return
	}
	log.Printf("maintenance: removed %d payloads, %d imagery runs, %d cache entries",
		res.Payloads, res.ImageryRuns, res.CacheEntries)
}

// RunOnce performs a single pass. Payloads go first so that the audit rows
// they reference become eligible in the same pass.
func (s *Scheduler) RunOnce() (Result, error) {
	var res Result
	var err error
	if res.Payloads, err = s.store.CleanupOldRawPayloads(s.retentionDays); err != nil {
		return res, err
	}
	if res.ImageryRuns, err = s.store.CleanupOldImageryRuns(s.retentionDays); err != nil {
		return res, err
	}
	if s.cache != nil {
		if res.CacheEntries, err = s.cache.Prune(); err != nil {
			return res, err
		}
	}
	return res, nil
}
