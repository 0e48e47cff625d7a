package events

import (
	"context"
	"fmt"
	"log/slog"

	"reconciler/pkg/platform/circuit"
)

// GuardedPublisher sends events to a broker through a circuit breaker. While
// the breaker is open, events go to the fallback publisher instead and no
// error is returned.
type GuardedPublisher struct {
	broker   Publisher
	fallback Publisher
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewGuardedPublisher(broker, fallback Publisher, breaker *circuit.Breaker, logger *slog.Logger) *GuardedPublisher {
	return &GuardedPublisher{
		broker:   broker,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
	}
}

func (p *GuardedPublisher) Publish(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	if !p.breaker.Allow() {
		return p.fallback.Publish(ctx, evts...)
	}

	if err := p.broker.Publish(ctx, evts...); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "event broker circuit opened", "breaker", p.breaker.Name(), "error", err)
		}
		_ = p.fallback.Publish(ctx, evts...)
		return fmt.Errorf("publish to %s: %w", p.breaker.Name(), err)
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "event broker circuit closed", "breaker", p.breaker.Name())
	}
	return nil
}
