package events

import (
	"log/slog"

	"github.com/wkmp/wkmp-ap/internal/logging"
)

// LogConsumer is the default EventConsumer: it writes every error event to
// the structured logger, the same sink every other component logs through.
// Without at least one registered consumer the bus never starts its workers
// and TryPublish drops everything, so this is wired in wherever the bus is.
type LogConsumer struct {
	logger *slog.Logger
}

// NewLogConsumer builds a LogConsumer on the "events" service logger.
func NewLogConsumer() *LogConsumer {
	return &LogConsumer{logger: logging.ForService("events")}
}

func (c *LogConsumer) Name() string { return "log" }

func (c *LogConsumer) ProcessEvent(event ErrorEvent) error {
	c.logger.Error(event.GetMessage(),
		"component", event.GetComponent(),
		"category", event.GetCategory(),
		"error", event.GetError(),
		"context", event.GetContext(),
	)
	event.MarkReported()
	return nil
}

func (c *LogConsumer) ProcessBatch(events []ErrorEvent) error {
	for _, event := range events {
		if err := c.ProcessEvent(event); err != nil {
			return err
		}
	}
	return nil
}

func (c *LogConsumer) SupportsBatching() bool { return true }
