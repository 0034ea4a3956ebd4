package events

import (
	"fmt"

	"practice-ledger/internal/config"
)

// New builds the bus selected by cfg.Transport.
func New(cfg config.EventsConfig) (Bus, error) {
	switch cfg.Transport {
	case "", "inline":
		return NewInlineBus(cfg.BufferSize, cfg.Workers), nil
	case "rabbitmq":
		return NewRabbitBus(cfg.RabbitMQURL, cfg.Queue, cfg.Workers)
	case "kafka":
		return NewKafkaBus(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), nil
	default:
		return nil, fmt.Errorf("unknown events transport: %s", cfg.Transport)
	}
}
