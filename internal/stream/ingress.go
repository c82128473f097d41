// Package stream maintains the long-lived server-push connection: frame
// parsing, reconnection with backoff, and the one-shot historical
// backfill fetch.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/metrics"
	"github.com/veltadesk/pulse/internal/retry"
)

// RawEvent is one parsed frame payload, not yet normalized.
type RawEvent map[string]any

// Config holds the ingress connection settings.
type Config struct {
	// URL of the long-lived push endpoint.
	URL string

	// AuthToken is passed through as a bearer credential; the engine never
	// inspects it.
	AuthToken string

	// Client to use; nil falls back to a client without timeout (the
	// response body is a stream and must not be cut off by a deadline).
	Client *http.Client

	// Policy governs reconnect backoff; nil gets the default policy.
	Policy *retry.Policy

	// Buffer is the event channel capacity (default 64).
	Buffer int
}

// Ingress owns a single push connection. Starting a new connection always
// cancels the previous one first; the reconnect attempt counter grows for
// the connection's whole lifetime and resets only on explicit Stop.
type Ingress struct {
	cfg    Config
	logger *logger.Logger
	events chan RawEvent

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewIngress creates a stream ingress.
func NewIngress(cfg Config, log *logger.Logger) *Ingress {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Policy == nil {
		cfg.Policy = retry.NewPolicy()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Ingress{
		cfg:    cfg,
		logger: log.WithComponent("stream"),
		events: make(chan RawEvent, cfg.Buffer),
	}
}

// Events is the parsed frame feed. The channel stays open across
// reconnects; consumers should also watch their own context.
func (i *Ingress) Events() <-chan RawEvent {
	return i.events
}

// Connect starts the read loop. Any previously started connection is
// cancelled first, so at most one connection is active at a time.
func (i *Ingress) Connect(ctx context.Context) {
	i.mu.Lock()
	if i.cancel != nil {
		i.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.mu.Unlock()

	go i.run(runCtx)
}

// Stop aborts the read loop, cancels any pending scheduled reconnect, and
// resets the attempt counter.
func (i *Ingress) Stop() {
	i.mu.Lock()
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	i.mu.Unlock()

	i.cfg.Policy.Reset()
}

// Attempt exposes the reconnect attempt counter for the status surface.
func (i *Ingress) Attempt() int {
	return i.cfg.Policy.Attempt()
}

func (i *Ingress) run(ctx context.Context) {
	for {
		err := i.readOnce(ctx)

		if ctx.Err() != nil {
			// Explicit stop, not a transport failure.
			return
		}

		attempt := i.cfg.Policy.Attempt() + 1
		i.logger.Warn("stream connection ended, scheduling reconnect",
			slog.Int("attempt", attempt),
			slog.String("error", errString(err)))
		metrics.Reconnects.WithLabelValues("stream").Inc()

		if waitErr := i.cfg.Policy.Wait(ctx); waitErr != nil {
			return
		}
	}
}

// readOnce connects and pumps frames until the stream ends or fails.
func (i *Ingress) readOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.cfg.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if i.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+i.cfg.AuthToken)
	}

	resp, err := i.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}

	i.logger.Info("stream connected", slog.String("url", i.cfg.URL))

	frames := NewFrameScanner(resp.Body)
	for {
		payload, err := frames.Next()
		if err != nil {
			if err == io.EOF {
				// Unexpected end: the push stream is supposed to stay open.
				return fmt.Errorf("stream ended: %w", err)
			}
			return err
		}

		var raw RawEvent
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			i.logger.Warn("dropping unparsable frame",
				slog.String("error", err.Error()),
				slog.Int("payload_bytes", len(payload)))
			metrics.FramesDropped.Inc()
			continue
		}

		select {
		case i.events <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
