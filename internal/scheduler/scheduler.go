// Package scheduler drives the periodic tick that dispatches its steps
// in the order given (cmd/server passes the stale-processing reset, the
// upload worker, the mirror synchronizer's prepare and sync, and the
// deletion reaper) (spec §4.7). Each step
// is skipped for that tick once a higher-priority step found work, so
// a busy system spends the tick's budget on its highest-priority
// outstanding task instead of splitting it evenly.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Step is one dispatchable unit of scheduler work. It returns whether
// it found (and acted on) work, so the scheduler can decide whether to
// continue down the priority list this tick.
type Step struct {
	Name string
	Run  func(ctx context.Context) (bool, error)
}

// Scheduler runs its Steps in order on every tick, stopping at the
// first step that reports it found work (spec §4.7: "each step
// skipped if a higher one found work").
type Scheduler struct {
	Steps        []Step
	TickInterval time.Duration
	Log          *logrus.Entry
}

// Run blocks, ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs exactly one pass over Steps in order, stopping at the
// first one that found work.
func (s *Scheduler) tick(ctx context.Context) {
	for _, step := range s.Steps {
		found, err := step.Run(ctx)
		if err != nil {
			s.Log.WithError(err).WithField("step", step.Name).Error("scheduler: step failed")
			continue
		}
		if found {
			s.Log.WithField("step", step.Name).Debug("scheduler: dispatched work")
			return
		}
	}
}
