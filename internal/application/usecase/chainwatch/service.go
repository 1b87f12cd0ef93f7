// Package chainwatch turns chain payloads into console output, Discord alerts
// and stored history.
package chainwatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"brotherowl/internal/application/port"
	"brotherowl/internal/domain"
)

const (
	AlertTimeout   = "timeout"
	AlertMilestone = "milestone"
	AlertEnded     = "ended"

	storeTimeout = 5 * time.Second
	pruneEvery   = time.Hour
)

var ErrNoChainCount = errors.New("chain payload has no current count")

type ServiceDeps struct {
	AlertChannelID string
	WarnTimeout    time.Duration
	Milestones     []int64
	Sink           port.Sink
	Repo           port.ChainRepository
	Retention      time.Duration // snapshot history kept, 0 keeps everything
	Now            func() time.Time
	NewID          func() string
}

type Service struct {
	deps ServiceDeps
	fmt  *Formatter

	mu         sync.Mutex
	state      domain.ChainState
	lastSource domain.Source
	warnedAt   int64 // chain count a timeout warning was sent for, -1 for none
	reached    map[int64]bool
	lastPrune  time.Time
}

func NewService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		deps.Repo = NewNoopRepo()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	deps.Milestones = slices.Clone(deps.Milestones)
	slices.Sort(deps.Milestones)

	return &Service{
		deps:     deps,
		fmt:      NewFormatter(deps.WarnTimeout),
		warnedAt: -1,
		reached:  make(map[int64]bool),
	}
}

// Latest returns the last processed chain summary.
func (s *Service) Latest() (domain.ChainSummary, domain.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Last, s.lastSource, s.state.HasValue
}

// Restore seeds dedup and milestone memory from a stored snapshot so a
// restart mid-chain does not repeat alerts. A snapshot older than its own
// chain timeout is ignored: that chain may have ended while we were away.
func (s *Service) Restore(ctx context.Context) error {
	snap, err := s.deps.Repo.LatestChainSnapshot(ctx)
	if err != nil || snap == nil {
		return err
	}
	age := s.deps.Now().Sub(time.UnixMilli(snap.Ts))
	if snap.Current > 0 && age > time.Duration(snap.Timeout)*time.Second {
		log.Info().Int64("current", snap.Current).Dur("age", age).Msg("stored chain state expired, not restored")
		return nil
	}
	sum := domain.SummarizeChain([]byte(snap.Payload))
	if !sum.Known {
		sum = domain.ChainSummary{Current: snap.Current, Timeout: snap.Timeout, Known: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.HasValue {
		return nil
	}
	s.state.Update(sum)
	s.lastSource = domain.Source(snap.Source)
	s.markReachedLocked(sum.Current)
	log.Info().Int64("current", sum.Current).Str("source", snap.Source).Msg("chain state restored")
	return nil
}

func (s *Service) ProcessChainData(client port.Messenger, p domain.FeedPayload) error {
	sum := p.Summary()
	if !sum.Known {
		return ErrNoChainCount
	}

	s.mu.Lock()
	prev, hadPrev := s.state.Last, s.state.HasValue
	if !s.state.Update(sum) {
		s.mu.Unlock()
		return nil
	}
	s.lastSource = p.Source
	dir := s.state.Direction
	alerts := s.evaluateLocked(prev, hadPrev, sum)
	s.mu.Unlock()

	if s.deps.Sink != nil {
		_ = s.deps.Sink.WriteLive(s.fmt.Render(sum, dir, p.Source, RenderLive))
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var errs []error
	snap := port.ChainSnapshot{
		Source:  string(p.Source),
		Current: sum.Current,
		Timeout: sum.Timeout,
		Payload: string(p.Chain),
		Ts:      p.LastUpdate,
	}
	if err := s.deps.Repo.SaveChainSnapshot(ctx, snap); err != nil {
		errs = append(errs, fmt.Errorf("save snapshot: %w", err))
	}

	for _, a := range alerts {
		if err := s.send(ctx, client, a); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.prune(ctx); err != nil {
		errs = append(errs, fmt.Errorf("prune snapshots: %w", err))
	}
	return errors.Join(errs...)
}

// prune trims snapshot history at most once per pruneEvery.
func (s *Service) prune(ctx context.Context) error {
	pruner, ok := s.deps.Repo.(port.SnapshotPruner)
	if !ok || s.deps.Retention <= 0 {
		return nil
	}

	now := s.deps.Now()
	s.mu.Lock()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < pruneEvery {
		s.mu.Unlock()
		return nil
	}
	s.lastPrune = now
	s.mu.Unlock()

	n, err := pruner.DeleteSnapshotsBefore(ctx, now.Add(-s.deps.Retention).UnixMilli())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Debug().Int64("rows", n).Dur("retention", s.deps.Retention).Msg("snapshot history pruned")
	}
	return nil
}

// evaluateLocked decides which alerts the new summary triggers and updates
// the once-per-chain memory.
func (s *Service) evaluateLocked(prev domain.ChainSummary, hadPrev bool, sum domain.ChainSummary) []port.ChainAlert {
	var alerts []port.ChainAlert
	now := s.deps.Now().UnixMilli()

	if hadPrev && prev.Current > 0 && sum.Current == 0 {
		alerts = append(alerts, port.ChainAlert{
			Kind:    AlertEnded,
			Current: prev.Current,
			Message: fmt.Sprintf("Chain ended at %d hits.", prev.Current),
			Ts:      now,
		})
		clear(s.reached)
		s.warnedAt = -1
		return alerts
	}

	if !hadPrev {
		// already-passed milestones are not announced on startup
		s.markReachedLocked(sum.Current)
	} else {
		if sum.Current < prev.Current {
			// a new chain started without us seeing zero
			for m := range s.reached {
				if m > sum.Current {
					delete(s.reached, m)
				}
			}
		}
		for _, m := range s.deps.Milestones {
			if m > sum.Current {
				break
			}
			if s.reached[m] {
				continue
			}
			s.reached[m] = true
			alerts = append(alerts, port.ChainAlert{
				Kind:    AlertMilestone,
				Current: sum.Current,
				Message: fmt.Sprintf("Chain milestone: %d hits reached.", m),
				Ts:      now,
			})
		}
	}

	if sum.Current > 0 && time.Duration(sum.Timeout)*time.Second <= s.deps.WarnTimeout && s.warnedAt != sum.Current {
		s.warnedAt = sum.Current
		alerts = append(alerts, port.ChainAlert{
			Kind:    AlertTimeout,
			Current: sum.Current,
			Message: fmt.Sprintf("Chain at %d hits breaks in %ds, hit now!", sum.Current, sum.Timeout),
			Ts:      now,
		})
	}
	return alerts
}

func (s *Service) markReachedLocked(current int64) {
	for _, m := range s.deps.Milestones {
		if m <= current {
			s.reached[m] = true
		}
	}
}

func (s *Service) send(ctx context.Context, client port.Messenger, a port.ChainAlert) error {
	a.ID = s.deps.NewID()

	if s.deps.Sink != nil {
		_ = s.deps.Sink.WriteSnapshot(time.UnixMilli(a.Ts), a.Message)
	}
	log.Info().Str("kind", a.Kind).Int64("current", a.Current).Msg(a.Message)

	var errs []error
	if client != nil && s.deps.AlertChannelID != "" {
		if _, err := client.ChannelMessageSend(s.deps.AlertChannelID, a.Message); err != nil {
			errs = append(errs, fmt.Errorf("send %s alert: %w", a.Kind, err))
		}
	}
	if err := s.deps.Repo.InsertAlert(ctx, a); err != nil {
		errs = append(errs, fmt.Errorf("store %s alert: %w", a.Kind, err))
	}
	return errors.Join(errs...)
}

var _ port.ChainMonitor = (*Service)(nil)
