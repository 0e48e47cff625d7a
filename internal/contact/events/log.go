package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events as audit log lines. It is the fallback when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, evts ...Event) error {
	for _, e := range evts {
		p.logger.InfoContext(ctx, string(e.Type),
			"event_id", e.ID,
			"contact_id", e.ContactID,
			"primary_id", e.PrimaryID,
			"precedence", e.Precedence,
			"repointed", e.Repointed,
			"request_id", e.RequestID,
			"log_type", "audit",
		)
	}
	return nil
}
