// Package delivery runs the notification pipeline: both ingress feeds
// fan in, get normalized and deduplicated, then drive the unread
// tracker, the snackbar lanes, and the sound gate.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/veltadesk/pulse/internal/bus"
	"github.com/veltadesk/pulse/internal/dedup"
	"github.com/veltadesk/pulse/internal/event"
	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/metrics"
	"github.com/veltadesk/pulse/internal/snackbar"
	"github.com/veltadesk/pulse/internal/socket"
	"github.com/veltadesk/pulse/internal/sound"
	"github.com/veltadesk/pulse/internal/store"
	"github.com/veltadesk/pulse/internal/stream"
	"github.com/veltadesk/pulse/internal/unread"
)

// Pipeline owns the fan-in from both transports and the retained
// notification feed.
type Pipeline struct {
	logger *logger.Logger
	bus    *bus.Bus

	ingress  *stream.Ingress
	chat     *socket.Client
	backfill *stream.Backfill

	streamDedup *dedup.Registry
	socketDedup *dedup.Registry

	tracker   *unread.Tracker
	scheduler *snackbar.Scheduler
	gate      *sound.Gate
	store     store.Store

	markReadURL string
	authToken   string
	client      *http.Client

	now func() time.Time

	mu   sync.Mutex
	feed []event.Notification

	cancel context.CancelFunc
}

// Deps collects the pipeline's collaborators; all are required except
// Backfill and Client.
type Deps struct {
	Bus       *bus.Bus
	Ingress   *stream.Ingress
	Chat      *socket.Client
	Backfill  *stream.Backfill
	Store     store.Store
	Tracker   *unread.Tracker
	Scheduler *snackbar.Scheduler
	Gate      *sound.Gate

	MarkReadURL string
	AuthToken   string
	Client      *http.Client
}

// NewPipeline wires the pipeline. Dedup registries are per logical
// stream so the two transports keep independent markers.
func NewPipeline(d Deps, log *logger.Logger) *Pipeline {
	if d.Client == nil {
		d.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Pipeline{
		logger:      log.WithComponent("pipeline"),
		bus:         d.Bus,
		ingress:     d.Ingress,
		chat:        d.Chat,
		backfill:    d.Backfill,
		streamDedup: dedup.NewRegistry(context.Background(), "stream", d.Store, log),
		socketDedup: dedup.NewRegistry(context.Background(), "socket", d.Store, log),
		tracker:     d.Tracker,
		scheduler:   d.Scheduler,
		gate:        d.Gate,
		store:       d.Store,
		markReadURL: d.MarkReadURL,
		authToken:   d.AuthToken,
		client:      d.Client,
		now:         time.Now,
	}
}

// Start fetches the backfill, connects both transports, and runs the
// fan-in loop until the context ends.
func (p *Pipeline) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if p.backfill != nil {
		history, err := p.backfill.Fetch(runCtx)
		if err != nil {
			p.logger.Warn("backfill failed, starting with empty history",
				slog.String("error", err.Error()))
		}
		p.mu.Lock()
		p.feed = stream.Merge(p.feed, history)
		p.mu.Unlock()
	}

	p.ingress.Connect(runCtx)
	if p.chat != nil {
		p.chat.Connect(runCtx)
	}

	go p.run(runCtx)
}

// Stop tears the transports down and stops the fan-in loop.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.ingress.Stop()
	if p.chat != nil {
		p.chat.Stop()
	}
}

func (p *Pipeline) run(ctx context.Context) {
	var chatEvents <-chan map[string]any
	if p.chat != nil {
		chatEvents = p.chat.Events()
	}

	for {
		select {
		case raw := <-p.ingress.Events():
			p.process(ctx, "stream", p.streamDedup, map[string]any(raw))
		case raw := <-chatEvents:
			p.process(ctx, "socket", p.socketDedup, raw)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) process(ctx context.Context, source string, registry *dedup.Registry, raw map[string]any) {
	n, ok := event.Normalize(raw, p.now())
	if !ok {
		p.logger.Warn("dropping unnormalizable event", slog.String("source", source))
		metrics.FramesDropped.Inc()
		return
	}

	if n.ID == "" {
		p.logger.Warn("dropping event without id", slog.String("source", source))
		metrics.FramesDropped.Inc()
		return
	}

	if !registry.Admit(ctx, n.ID) {
		p.logger.Debug("duplicate rejected",
			slog.String("source", source),
			slog.String("id", n.ID))
		return
	}

	p.retain(n)
	p.tracker.Record(ctx, n)
	p.scheduler.NotifyLatest(n)
	p.gate.Trigger()

	p.bus.Publish(bus.Event{Topic: bus.TopicNotification, Time: p.now(), Data: n})
}

func (p *Pipeline) retain(n event.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feed = stream.Merge([]event.Notification{n}, p.feed)
}

// Feed snapshots the retained notification feed, newest first.
func (p *Pipeline) Feed() []event.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Notification(nil), p.feed...)
}

// AckAll marks every notification read at the backend, then flips the
// retained feed's read flags.
func (p *Pipeline) AckAll(ctx context.Context) error {
	body, _ := json.Marshal(map[string]any{"all": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.markReadURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("mark-read request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mark-read endpoint returned status %d", resp.StatusCode)
	}

	p.mu.Lock()
	for i := range p.feed {
		p.feed[i].Read = true
	}
	p.mu.Unlock()

	p.logger.Info("all notifications acknowledged")
	return nil
}

// Logout stops the transports, drops the in-memory unread and dedup
// state, and clears this account's persisted state. Day-scoped reminder
// state survives on purpose.
func (p *Pipeline) Logout(ctx context.Context) error {
	p.Stop()

	p.mu.Lock()
	p.feed = nil
	p.mu.Unlock()

	p.streamDedup.Reset()
	p.socketDedup.Reset()
	p.tracker.Reset()

	if err := p.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("clearing session state: %w", err)
	}
	p.logger.Info("session cleared")
	return nil
}
