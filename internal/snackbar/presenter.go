package snackbar

import (
	"log/slog"

	"github.com/veltadesk/pulse/internal/event"
	"github.com/veltadesk/pulse/internal/logger"
)

// Presenter is the boundary to whatever surface renders notices. The
// engine never renders anything itself.
type Presenter interface {
	// ShowLatest replaces the latest lane slot.
	ShowLatest(n event.Notification)

	// DismissLatest clears the latest lane slot.
	DismissLatest()

	// ShowReminder presents one batch lane item.
	ShowReminder(item Item)

	// ShowAggregate presents the "N more pending" overflow notice.
	ShowAggregate(remaining int)
}

// LogPresenter writes notices to the log. It is the default sink for
// headless runs; hosts embedding the engine supply their own Presenter.
type LogPresenter struct {
	logger *logger.Logger
}

// NewLogPresenter creates the log sink.
func NewLogPresenter(log *logger.Logger) *LogPresenter {
	return &LogPresenter{logger: log.WithComponent("presenter")}
}

func (p *LogPresenter) ShowLatest(n event.Notification) {
	p.logger.Info("notice",
		slog.String("lane", "latest"),
		slog.String("id", n.ID),
		slog.String("type", string(n.Type)),
		slog.String("title", n.Title))
}

func (p *LogPresenter) DismissLatest() {
	p.logger.Debug("notice dismissed", slog.String("lane", "latest"))
}

func (p *LogPresenter) ShowReminder(item Item) {
	p.logger.Info("notice",
		slog.String("lane", "batch"),
		slog.String("item", item.Key),
		slog.String("source", item.Source),
		slog.String("title", item.Title))
}

func (p *LogPresenter) ShowAggregate(remaining int) {
	p.logger.Info("notice",
		slog.String("lane", "batch"),
		slog.Int("more_pending", remaining))
}
