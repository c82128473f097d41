package sound

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/veltadesk/pulse/internal/bus"
	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/metrics"
)

// DefaultMinInterval is the minimum gap between audible triggers.
const DefaultMinInterval = 450 * time.Millisecond

// Gate sits between the pipeline and the Player. Triggers before the
// first user interaction, and triggers inside the rate window, are
// suppressed silently.
type Gate struct {
	player  Player
	limiter *rate.Limiter
	logger  *logger.Logger

	mu     sync.Mutex
	cancel func()
}

// NewGate creates a gate. minInterval <= 0 gets the default.
func NewGate(player Player, minInterval time.Duration, log *logger.Logger) *Gate {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Gate{
		player:  player,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		logger:  log.WithComponent("sound"),
	}
}

// Arm subscribes to interaction signals on the bus and unlocks the player
// on the first one. The subscription is one-shot.
func (g *Gate) Arm(b *bus.Bus) {
	ch, cancel := b.Subscribe(bus.TopicInteraction, 1)

	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	go func() {
		_, ok := <-ch
		if !ok {
			return
		}
		g.Unlock()
		cancel()
	}()
}

// Unlock unlocks the player directly, for hosts that observe the gesture
// themselves.
func (g *Gate) Unlock() {
	if g.player.IsUnlocked() {
		return
	}
	if err := g.player.Unlock(); err != nil {
		g.logger.Warn("audio unlock failed", slog.String("error", err.Error()))
		return
	}
	g.logger.Info("audio unlocked")
}

// Trigger plays the notification sound if the player is unlocked and the
// rate window allows it.
func (g *Gate) Trigger() {
	if !g.player.IsUnlocked() {
		metrics.SoundsSuppressed.Inc()
		g.logger.Debug("sound suppressed, audio locked")
		return
	}
	if !g.limiter.Allow() {
		metrics.SoundsSuppressed.Inc()
		g.logger.Debug("sound suppressed, rate limited")
		return
	}
	if err := g.player.Play(); err != nil {
		g.logger.Warn("sound playback failed", slog.String("error", err.Error()))
	}
}

// Close releases the interaction subscription if still armed.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}
