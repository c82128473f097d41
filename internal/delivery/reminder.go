package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/snackbar"
)

// Source produces candidate reminder items for the batch lane. Sources
// report their findings as a flat list; pacing and dedup belong to the
// snackbar scheduler.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]snackbar.Item, error)
}

// HTTPSource pulls reminder items from a REST endpoint returning a JSON
// array of {key, title, detail} objects. Payments due, access expiry,
// and CRM follow-ups all speak this shape.
type HTTPSource struct {
	name   string
	url    string
	token  string
	client *http.Client
}

// NewHTTPSource creates a REST-backed reminder source.
func NewHTTPSource(name, url, token string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSource{name: name, url: url, token: token, client: client}
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) Fetch(ctx context.Context) ([]snackbar.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("reminder source %s returned status %d", s.name, resp.StatusCode)
	}

	var records []struct {
		Key    string `json:"key"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding reminder source %s: %w", s.name, err)
	}

	items := make([]snackbar.Item, 0, len(records))
	for _, rec := range records {
		if rec.Key == "" {
			continue
		}
		items = append(items, snackbar.Item{
			Key:    s.name + ":" + rec.Key,
			Title:  rec.Title,
			Detail: rec.Detail,
			Source: s.name,
		})
	}
	return items, nil
}

// ReminderScanner runs the daily reminder pass: fetch every source, feed
// the batch lane. A failing source is logged and skipped; the scan never
// aborts on one bad endpoint.
type ReminderScanner struct {
	sources   []Source
	scheduler *snackbar.Scheduler
	logger    *logger.Logger
	cron      *cron.Cron
}

// NewReminderScanner creates a scanner over the given sources.
func NewReminderScanner(sources []Source, scheduler *snackbar.Scheduler, log *logger.Logger) *ReminderScanner {
	return &ReminderScanner{
		sources:   sources,
		scheduler: scheduler,
		logger:    log.WithComponent("reminders"),
	}
}

// Collect fetches all sources and returns the combined item list.
func (r *ReminderScanner) Collect(ctx context.Context) []snackbar.Item {
	var items []snackbar.Item
	for _, src := range r.sources {
		fetched, err := src.Fetch(ctx)
		if err != nil {
			r.logger.Warn("reminder source failed",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()))
			continue
		}
		items = append(items, fetched...)
	}
	return items
}

// Scan runs one pass through the scheduler's auto lane.
func (r *ReminderScanner) Scan(ctx context.Context) error {
	items := r.Collect(ctx)
	r.logger.Info("reminder scan collected", slog.Int("items", len(items)))
	return r.scheduler.RunAutoPass(ctx, items)
}

// ShowAll presents every current item, bypassing the shown set. Serves
// the manual "show me everything" control.
func (r *ReminderScanner) ShowAll(ctx context.Context) error {
	return r.scheduler.ShowAll(ctx, r.Collect(ctx))
}

// StartCron schedules Scan on the given cron spec (typically once a day,
// shortly after business hours start).
func (r *ReminderScanner) StartCron(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := r.Scan(ctx); err != nil {
			r.logger.Warn("scheduled reminder scan failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder cron spec %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts the cron schedule.
func (r *ReminderScanner) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}
