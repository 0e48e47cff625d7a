package events

import (
	"context"
	"log/slog"

	"reconciler/internal/platform/config"
	"reconciler/pkg/platform/circuit"
)

// Open picks the publisher for cfg: Kafka when brokers are set, AMQP when a
// URL is set, audit log lines otherwise. Broker publishers fall back to log
// lines while their circuit is open. The returned close func is never nil.
func Open(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (Publisher, func(), error) {
	switch {
	case len(cfg.KafkaBrokers) > 0:
		p, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		if err := p.EnsureTopic(ctx, int32(cfg.KafkaPartitions), int16(cfg.KafkaReplicationFactor)); err != nil {
			// auto topic creation on produce still applies
			logger.WarnContext(ctx, "could not ensure kafka topic", "topic", cfg.KafkaTopic, "error", err)
		}
		logger.InfoContext(ctx, "publishing contact events to kafka", "topic", cfg.KafkaTopic)
		return guard("kafka", p, logger), p.Close, nil
	case cfg.AMQPURL != "":
		p, err := NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		logger.InfoContext(ctx, "publishing contact events to amqp", "exchange", cfg.AMQPExchange)
		return guard("amqp", p, logger), func() { _ = p.Close() }, nil
	default:
		return NewLogPublisher(logger), func() {}, nil
	}
}

func guard(name string, broker Publisher, logger *slog.Logger) Publisher {
	return NewGuardedPublisher(broker, NewLogPublisher(logger), circuit.New(name), logger)
}
