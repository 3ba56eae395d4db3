// Package retention deletes the bot's own messages from the shared search
// room once they are older than the retention window.
package retention

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"movievault/internal/errs"
	"movievault/internal/logging"
	"movievault/internal/metrics"
	"movievault/internal/models"
)

const (
	DefaultMaxAge       = 24 * time.Hour
	DefaultInterval     = time.Hour
	DefaultErrorBackoff = 10 * time.Second
)

// Deleter removes a message from a chat.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// SessionSweeper drops expired upload sessions.
type SessionSweeper interface {
	Sweep() int
}

// WindowPruner drops idle rate limiter windows.
type WindowPruner interface {
	Prune() int
}

type Options struct {
	MaxAge       time.Duration
	Interval     time.Duration
	ErrorBackoff time.Duration
	// Sessions and Limiter are swept alongside the tracked messages when set.
	Sessions SessionSweeper
	Limiter  WindowPruner
}

// SweepReport summarizes one pass.
type SweepReport struct {
	Scanned         int
	Deleted         int
	Failed          int
	SessionsExpired int
	WindowsPruned   int
}

// Scheduler runs the retention sweep periodically as a supervised service.
type Scheduler struct {
	tracker Tracker
	deleter Deleter
	opts    Options
	now     func() time.Time

	running  atomic.Bool
	lastBeat atomic.Int64
}

func NewScheduler(tracker Tracker, deleter Deleter, opts Options) *Scheduler {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	return &Scheduler{
		tracker: tracker,
		deleter: deleter,
		opts:    opts,
		now:     time.Now,
	}
}

// Track records an outbound message for later deletion.
func (s *Scheduler) Track(ctx context.Context, chatID, messageID int64) error {
	return s.tracker.Track(ctx, models.TrackedMessage{
		ChatID:    chatID,
		MessageID: messageID,
		SentAt:    s.now().UTC(),
	})
}

// Sweep deletes every tracked message older than MaxAge. A message whose
// deletion fails stays tracked for the next pass; only a failure to read the
// tracked set aborts the sweep.
func (s *Scheduler) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	start := time.Now()

	snapshot, err := s.tracker.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("snapshot tracked messages: %w", err)
	}
	report.Scanned = len(snapshot)

	cutoff := s.now().Add(-s.opts.MaxAge)
	for _, msg := range snapshot {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !msg.SentAt.Before(cutoff) {
			continue
		}
		if err := s.deleter.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil && !errs.Is(err, errs.CodeNotFound) {
			report.Failed++
			logging.Warn().
				Err(errs.Wrap(errs.CodeDeliveryFailure, err, "delete message")).
				Int64("chat_id", msg.ChatID).
				Int64("message_id", msg.MessageID).
				Msg("retention delete failed")
			continue
		}
		if err := s.tracker.Remove(ctx, msg); err != nil {
			report.Failed++
			logging.Warn().Err(err).
				Int64("chat_id", msg.ChatID).
				Int64("message_id", msg.MessageID).
				Msg("untrack deleted message failed")
			continue
		}
		report.Deleted++
	}

	if s.opts.Sessions != nil {
		report.SessionsExpired = s.opts.Sessions.Sweep()
	}
	if s.opts.Limiter != nil {
		report.WindowsPruned = s.opts.Limiter.Prune()
	}

	metrics.RecordSweep(time.Since(start), report.Deleted, report.Failed)
	return report, nil
}

// Serve sweeps once per Interval until ctx is cancelled. A failed or
// panicking sweep is retried after ErrorBackoff instead.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)
	s.beat()

	for {
		wait := s.opts.Interval
		report, err := s.safeSweep(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logging.Error().Err(err).Dur("retry_in", s.opts.ErrorBackoff).Msg("retention sweep failed")
			wait = s.opts.ErrorBackoff
		} else if report.Deleted > 0 || report.Failed > 0 {
			logging.Info().
				Int("scanned", report.Scanned).
				Int("deleted", report.Deleted).
				Int("failed", report.Failed).
				Int("sessions_expired", report.SessionsExpired).
				Msg("retention sweep finished")
		}
		s.beat()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) safeSweep(ctx context.Context) (report SweepReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retention sweep panic: %v", r)
		}
	}()
	return s.Sweep(ctx)
}

func (s *Scheduler) beat() {
	s.lastBeat.Store(s.now().UnixNano())
}

// Alive reports whether the loop is running and has completed an iteration
// recently.
func (s *Scheduler) Alive() bool {
	if !s.running.Load() {
		return false
	}
	last := time.Unix(0, s.lastBeat.Load())
	return s.now().Sub(last) <= 2*s.opts.Interval+s.opts.ErrorBackoff
}

func (s *Scheduler) String() string {
	return "retention-scheduler"
}
