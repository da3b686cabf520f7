package sonic

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/newtron-network/lookupclass/pkg/agent"
	"github.com/newtron-network/lookupclass/pkg/metrics"
	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 5 * time.Second

// Reconciler brings an output back in step with the agent. It is called
// after every sync pass, once the agent has converged.
type Reconciler interface {
	Reconcile() error
}

// Syncer polls the switch and folds every snapshot into the agent.
type Syncer struct {
	source      Snapshotter
	agent       *agent.Agent
	interval    time.Duration
	clock       clock.Clock
	reconcilers []Reconciler
}

// NewSyncer returns a syncer polling source every interval. A nil clk uses
// the wall clock.
func NewSyncer(source Snapshotter, a *agent.Agent, interval time.Duration, clk clock.Clock) *Syncer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Syncer{source: source, agent: a, interval: interval, clock: clk}
}

// AddReconciler registers r to run at the end of every sync pass.
func (s *Syncer) AddReconciler(r Reconciler) {
	s.reconcilers = append(s.reconcilers, r)
}

// SyncOnce reads one snapshot and applies it. Malformed snapshot entries are
// logged and skipped; only a failed read is returned.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		metrics.SyncErrors.Inc()
		return fmt.Errorf("reading snapshot: %w", err)
	}
	desired, err := BuildState(snap)
	if err != nil {
		metrics.SyncErrors.Inc()
		util.WithOperation("sync").Warnf("skipped snapshot entries: %v", err)
	}

	macs := diffMacs(s.agent.State(), desired)
	for _, ev := range macs.ages {
		s.agent.HandleL2Event(ev)
	}
	if _, err := s.agent.UpdateState("sync", func(b *state.Builder) error {
		mergeState(b, desired)
		return nil
	}); err != nil {
		return err
	}
	for _, ev := range macs.learns {
		s.agent.HandleL2Event(ev)
	}
	for _, e := range macs.classify {
		s.agent.ClassifyMAC(e)
	}
	for _, e := range macs.declassify {
		s.agent.DeclassifyMAC(e)
	}
	for _, r := range s.reconcilers {
		if err := r.Reconcile(); err != nil {
			metrics.SyncErrors.Inc()
			util.WithOperation("reconcile").Warnf("retrying on the next pass: %v", err)
		}
	}
	return nil
}

// Run syncs immediately and then on every tick until ctx is done. A failed
// first sync is returned; later failures are logged and retried on the next
// tick.
func (s *Syncer) Run(ctx context.Context) error {
	if err := s.SyncOnce(ctx); err != nil {
		return err
	}
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				util.WithOperation("sync").Warn(err)
			}
		}
	}
}

