package bus

import (
	"fmt"

	"github.com/leaseguard/kestrel/internal/domain"
)

// New builds the bus named by cfg.Type: "channel" for the in-process
// Community bus, "nats" for the Pro bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	}
	return nil, fmt.Errorf("bus: unknown type %q", cfg.Type)
}
