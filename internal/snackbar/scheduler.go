// Package snackbar schedules transient notices on two lanes: a latest
// lane holding the single most recent notification, and a batch lane that
// paces reminder items so they do not stack.
package snackbar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/veltadesk/pulse/internal/event"
	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/metrics"
	"github.com/veltadesk/pulse/internal/store"
)

const (
	// DefaultDismissAfter is how long the latest lane holds a notice.
	DefaultDismissAfter = 5 * time.Second

	// DefaultSpacing is the minimum gap between batch lane notices.
	DefaultSpacing = 4200 * time.Millisecond

	// DefaultBatchLimit caps the individual notices one batch pass shows;
	// the rest collapse into a single aggregate notice.
	DefaultBatchLimit = 8
)

// Item is one batch lane candidate. Key is its stable identity for the
// day-scoped shown set.
type Item struct {
	Key    string
	Title  string
	Detail string
	Source string
}

// Scheduler drives both lanes against a Presenter.
type Scheduler struct {
	presenter Presenter
	store     store.Store
	logger    *logger.Logger

	dismissAfter time.Duration
	spacing      time.Duration
	batchLimit   int
	now          func() time.Time

	mu      sync.Mutex
	current *event.Notification
	dismiss *time.Timer
}

// Option tweaks scheduler timing, used by tests and host embedding.
type Option func(*Scheduler)

// WithDismissAfter overrides the latest lane hold duration.
func WithDismissAfter(d time.Duration) Option {
	return func(s *Scheduler) { s.dismissAfter = d }
}

// WithSpacing overrides the batch lane gap.
func WithSpacing(d time.Duration) Option {
	return func(s *Scheduler) { s.spacing = d }
}

// WithBatchLimit overrides the individual-notice cap per batch pass.
func WithBatchLimit(n int) Option {
	return func(s *Scheduler) { s.batchLimit = n }
}

// NewScheduler creates a scheduler with spec-default timing.
func NewScheduler(p Presenter, st store.Store, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		presenter:    p,
		store:        st,
		logger:       log.WithComponent("snackbar"),
		dismissAfter: DefaultDismissAfter,
		spacing:      DefaultSpacing,
		batchLimit:   DefaultBatchLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotifyLatest puts a notification in the latest lane, replacing whatever
// occupies the slot and restarting the dismiss clock.
func (s *Scheduler) NotifyLatest(n event.Notification) {
	s.mu.Lock()
	if s.dismiss != nil {
		s.dismiss.Stop()
	}
	s.current = &n
	s.dismiss = time.AfterFunc(s.dismissAfter, func() {
		s.mu.Lock()
		if s.current != nil && s.current.ID == n.ID {
			s.current = nil
		}
		s.mu.Unlock()
		s.presenter.DismissLatest()
	})
	s.mu.Unlock()

	s.presenter.ShowLatest(n)
	metrics.SnacksPresented.WithLabelValues("latest").Inc()
}

// Current reports the latest lane occupant, if any.
func (s *Scheduler) Current() (event.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return event.Notification{}, false
	}
	return *s.current, true
}

// RunAutoPass shows today's not-yet-shown reminder items on the batch
// lane, at most once per day. Items beyond the batch limit collapse into
// one aggregate notice.
func (s *Scheduler) RunAutoPass(ctx context.Context, items []Item) error {
	day := store.Day(s.now())

	ran, err := s.store.AutoPassRan(ctx, day)
	if err != nil {
		s.logger.Warn("auto-pass flag read failed", slog.String("error", err.Error()))
	}
	if ran {
		s.logger.Debug("auto pass already ran today", slog.String("day", day))
		return nil
	}

	fresh := make([]Item, 0, len(items))
	for _, item := range items {
		shown, err := s.store.ShownToday(ctx, day, item.Key)
		if err != nil {
			s.logger.Warn("shown-set read failed",
				slog.String("item", item.Key),
				slog.String("error", err.Error()))
		}
		if !shown {
			fresh = append(fresh, item)
		}
	}

	if err := s.present(ctx, day, fresh); err != nil {
		return err
	}

	if err := s.store.MarkAutoPass(ctx, day); err != nil {
		s.logger.Warn("auto-pass flag write failed", slog.String("error", err.Error()))
	}
	return nil
}

// ShowAll presents every item regardless of the shown set. It records the
// items as shown but never touches the auto-pass flag, so the daily pass
// stays owed if it has not run yet.
func (s *Scheduler) ShowAll(ctx context.Context, items []Item) error {
	day := store.Day(s.now())
	return s.present(ctx, day, items)
}

// present paces items through the batch lane, recording each presented
// item in the day's shown set.
func (s *Scheduler) present(ctx context.Context, day string, items []Item) error {
	shown := 0
	for _, item := range items {
		if shown >= s.batchLimit {
			break
		}
		if shown > 0 {
			timer := time.NewTimer(s.spacing)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		s.presenter.ShowReminder(item)
		metrics.SnacksPresented.WithLabelValues("batch").Inc()
		shown++

		if err := s.store.MarkShown(ctx, day, item.Key); err != nil {
			s.logger.Warn("shown-set write failed",
				slog.String("item", item.Key),
				slog.String("error", err.Error()))
		}
	}

	if remaining := len(items) - shown; remaining > 0 {
		s.presenter.ShowAggregate(remaining)
		metrics.SnacksPresented.WithLabelValues("aggregate").Inc()
		s.logger.Info("batch lane overflow aggregated",
			slog.Int("shown", shown),
			slog.Int("remaining", remaining))
	}
	return nil
}
