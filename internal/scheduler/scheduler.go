// Package scheduler runs the periodic maintenance jobs: sweeping stale
// matchmaking pending-slots and evicting idle, already-ended match actors.
// Grounded in the gocron usage style of the pack's publish scheduler
// (services.GameService.StartPublishScheduler): one gocron.Scheduler,
// NewJob(DurationJob(...), NewTask(...)) per concern.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/fightclaw/backend/internal/matchmaker"
	"github.com/fightclaw/backend/pkg/distributed"
	"github.com/fightclaw/backend/pkg/logger"
)

// Config tunes sweep cadence and thresholds.
type Config struct {
	PendingSlotMaxAge  time.Duration
	PendingSweepEvery  time.Duration
	IdleEvictAfter     time.Duration
	IdleSweepEvery     time.Duration
}

func (c Config) withDefaults() Config {
	if c.PendingSlotMaxAge <= 0 {
		c.PendingSlotMaxAge = 2 * time.Minute
	}
	if c.PendingSweepEvery <= 0 {
		c.PendingSweepEvery = 30 * time.Second
	}
	if c.IdleEvictAfter <= 0 {
		c.IdleEvictAfter = 10 * time.Minute
	}
	if c.IdleSweepEvery <= 0 {
		c.IdleSweepEvery = time.Minute
	}
	return c
}

// Scheduler owns the background maintenance jobs for one server process.
// When locks is non-nil, every job first takes a distributed lock and
// releases it again before the sweep runs (see acquireLock), so a replica
// skips a tick only if another replica holds that key at the same moment.
type Scheduler struct {
	cfg   Config
	mm    *matchmaker.Matchmaker
	reg   *matchmaker.Registry
	locks *distributed.RedisLockManager
	instanceID string

	sched  gocron.Scheduler
	held   map[string]time.Time // pending agentId -> first-seen time
	ended  map[string]time.Time // matchId -> first-observed-terminal time
}

func New(cfg Config, mm *matchmaker.Matchmaker, reg *matchmaker.Registry, locks *distributed.RedisLockManager) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:        cfg.withDefaults(),
		mm:         mm,
		reg:        reg,
		locks:      locks,
		instanceID: uuid.NewString(),
		sched:      sched,
		held:       make(map[string]time.Time),
		ended:      make(map[string]time.Time),
	}, nil
}

// Start registers the jobs and begins running them. Call Stop on shutdown.
func (s *Scheduler) Start() error {
	if _, err := s.sched.NewJob(
		gocron.DurationJob(s.cfg.PendingSweepEvery),
		gocron.NewTask(s.sweepPendingSlot),
	); err != nil {
		return err
	}
	if _, err := s.sched.NewJob(
		gocron.DurationJob(s.cfg.IdleSweepEvery),
		gocron.NewTask(s.sweepIdleActors),
	); err != nil {
		return err
	}
	s.sched.Start()
	return nil
}

func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// sweepPendingSlot evicts a pending matchmaking slot that has sat unpaired
// longer than PendingSlotMaxAge, so one agent enqueuing and then vanishing
// doesn't block every future pairing attempt.
func (s *Scheduler) sweepPendingSlot() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !s.acquireLock(ctx, "fightclaw:sched:pending-sweep", s.cfg.PendingSweepEvery) {
		return
	}

	agentID, err := s.mm.PendingAgent(ctx)
	if err != nil {
		logger.Error("scheduler: pending agent lookup failed", "error", err)
		return
	}
	if agentID == "" {
		for k := range s.held {
			delete(s.held, k)
		}
		return
	}
	if _, ok := s.held[agentID]; !ok {
		s.held[agentID] = time.Now()
		return
	}

	if err := s.mm.EvictStalePending(ctx, s.cfg.PendingSlotMaxAge, s.held); err != nil {
		logger.Error("scheduler: evict stale pending failed", "error", err)
	}
}

// sweepIdleActors stops and removes match actors that have sat terminal for
// longer than IdleEvictAfter. The grace window lets a just-ended match's
// subscribers finish draining game_ended before the actor disappears.
func (s *Scheduler) sweepIdleActors() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !s.acquireLock(ctx, "fightclaw:sched:idle-sweep", s.cfg.IdleSweepEvery) {
		return
	}

	live := s.reg.Snapshot()
	seen := make(map[string]struct{}, len(live))
	for matchID, actor := range live {
		seen[matchID] = struct{}{}

		snap, err := actor.GetState(ctx)
		if err != nil {
			continue
		}
		if !snap.Terminal {
			delete(s.ended, matchID)
			continue
		}
		firstSeen, ok := s.ended[matchID]
		if !ok {
			s.ended[matchID] = time.Now()
			continue
		}
		if time.Since(firstSeen) >= s.cfg.IdleEvictAfter {
			logger.Info("scheduler: evicting idle match actor", "matchId", matchID)
			s.reg.Evict(matchID)
			delete(s.ended, matchID)
		}
	}
	for matchID := range s.ended {
		if _, ok := seen[matchID]; !ok {
			delete(s.ended, matchID)
		}
	}
	logger.Debug("scheduler: idle sweep tick", "liveActors", len(live))
}

// acquireLock tries a short-TTL distributed lock and returns true if this
// instance should proceed. The lock is released as acquireLock returns, so
// it only turns away a replica whose attempt overlaps it; it does not stop
// another replica from running the same sweep later in the tick. With no
// lock manager configured (single-instance deployments) it always proceeds.
func (s *Scheduler) acquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	if s.locks == nil {
		return true
	}
	lock, err := s.locks.AcquireLock(ctx, key, s.instanceID, ttl)
	if err != nil {
		if err != distributed.ErrLockNotAcquired {
			logger.Error("scheduler: lock acquire error", "key", key, "error", err)
		}
		return false
	}
	defer lock.Release(ctx)
	return true
}
