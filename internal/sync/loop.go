package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alexa2anylist/alexa2anylist/internal/journal"
	"github.com/alexa2anylist/alexa2anylist/internal/telemetry"
	"github.com/alexa2anylist/alexa2anylist/internal/types"
)

const (
	// DefaultPollInterval is how often a sync cycle runs.
	DefaultPollInterval = 10 * time.Second

	// DefaultRecoveryHorizon is the maximum age of a dirty journal that is
	// still replayed on startup. Older journals are dropped: after a long
	// outage the recorded intent is more likely stale than recoverable.
	DefaultRecoveryHorizon = 10 * time.Minute
)

// LoopConfig carries the tunables of the sync loop.
type LoopConfig struct {
	PollInterval    time.Duration
	RecoveryHorizon time.Duration
}

// Loop drives the poll → diff → journal → commit cycle. It is the sole
// mutator of the previous-snapshot state and of the journal file, so it
// needs no internal locking.
type Loop struct {
	primary   PrimaryClient
	secondary SecondaryDriver
	journal   *journal.Journal
	rec       *Reconciler
	log       *slog.Logger
	metrics   *telemetry.Metrics

	interval time.Duration
	horizon  time.Duration

	prev Snapshot
}

// NewLoop builds a sync loop. metrics may be nil.
func NewLoop(primary PrimaryClient, secondary SecondaryDriver, j *journal.Journal, cfg LoopConfig, logger *slog.Logger, metrics *telemetry.Metrics) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RecoveryHorizon <= 0 {
		cfg.RecoveryHorizon = DefaultRecoveryHorizon
	}
	return &Loop{
		primary:   primary,
		secondary: secondary,
		journal:   j,
		rec:       NewReconciler(primary, secondary, j, logger),
		log:       logger,
		metrics:   metrics,
		interval:  cfg.PollInterval,
		horizon:   cfg.RecoveryHorizon,
	}
}

// Startup runs the recovery protocol: replay a dirty journal younger than the
// recovery horizon against fresh snapshots, drop a stale one, then clobber
// the Alexa list if the two sides still disagree.
func (l *Loop) Startup(ctx context.Context) error {
	cur, err := l.fetch(ctx)
	if err != nil {
		return err
	}

	if l.journal.IsDirty() {
		if l.journal.Age() < l.horizon {
			l.log.Warn("Found dirty journal, replaying", "age", l.journal.Age().Round(time.Second))
			// No previous snapshot survives a restart; unresolvable
			// entries are skipped and the divergence check below
			// picks up the slack.
			if err := l.rec.Commit(ctx, Snapshot{}, &cur); err != nil {
				return fmt.Errorf("replaying journal: %w", err)
			}
			l.metrics.CountReplay(ctx)
		} else {
			l.log.Warn("Found dirty journal but it is too old, dropping", "age", l.journal.Age().Round(time.Second))
			l.journal.Reset()
			if err := l.journal.Save(); err != nil {
				return fmt.Errorf("saving reset journal: %w", err)
			}
		}
	} else {
		l.log.Debug("Journal is clean, nothing to replay")
	}

	if !cur.InSync() {
		l.log.Info("Lists are not in sync, clobbering Alexa")
		if err := l.rec.Clobber(ctx, &cur); err != nil {
			return fmt.Errorf("clobbering alexa: %w", err)
		}
		l.metrics.CountClobber(ctx)
	}

	l.prev = cur
	return nil
}

// SyncOnce runs a single cycle: snapshot, diff against the previous
// snapshot, journal the change set, commit, promote the applied snapshot.
func (l *Loop) SyncOnce(ctx context.Context) error {
	start := time.Now()
	l.log.Info("Syncing lists")

	cur, err := l.fetch(ctx)
	if err != nil {
		l.metrics.CountCycle(ctx, time.Since(start), err)
		return err
	}

	cs := Diff(l.prev.Primary, cur.Primary, l.prev.Secondary, cur.Secondary)

	l.journal.Reset()
	cs.Record(l.journal)
	if err := l.journal.Save(); err != nil {
		err = fmt.Errorf("saving journal: %w", err)
		l.metrics.CountCycle(ctx, time.Since(start), err)
		return err
	}

	if err := l.rec.Commit(ctx, l.prev, &cur); err != nil {
		l.metrics.CountCycle(ctx, time.Since(start), err)
		return err
	}

	l.prev = cur
	l.metrics.CountCycle(ctx, time.Since(start), nil)
	l.log.Info("Sync complete", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Run executes Startup and then cycles until ctx is canceled or a cycle
// fails. The first error terminates the loop; the journal on disk keeps the
// in-flight intent for the next start.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := l.SyncOnce(ctx); err != nil {
			return err
		}
		timer.Reset(l.interval)
	}
}

// Previous returns the snapshot the next cycle will diff against.
func (l *Loop) Previous() Snapshot {
	return l.prev
}

func (l *Loop) fetch(ctx context.Context) (Snapshot, error) {
	l.log.Info("Getting fresh lists")

	primary, err := l.primary.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching anylist snapshot: %w", err)
	}
	secondary, err := l.secondary.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching alexa snapshot: %w", err)
	}

	for _, name := range primary.DuplicateActiveNames() {
		l.log.Warn("Duplicate active name on AnyList, Alexa sees one slot", "name", name)
	}

	if l.log.Enabled(ctx, slog.LevelDebug) {
		l.log.Debug("Fresh lists", "anylist", describePrimary(primary), "alexa", sortedNames(secondary))
	}

	return Snapshot{Primary: primary, Secondary: secondary}, nil
}

// describePrimary renders the list with checked items marked, for debug logs.
func describePrimary(l types.List) []string {
	out := make([]string, 0, len(l))
	for _, it := range l {
		if it.Checked {
			out = append(out, "x-"+it.Name+"-")
		} else {
			out = append(out, it.Name)
		}
	}
	sort.Strings(out)
	return out
}

func sortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
