package nats

import (
	"github.com/nats-io/nats.go"

	"pixelmint/internal/bus"
)

// Bus adapts a NATS connection to the bus.Bus interface the ledger
// publishes credit events through.
type Bus struct {
	nc *nats.Conn
}

var _ bus.Bus = (*Bus)(nil)

func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

func (b *Bus) Publish(topic string, data []byte) error {
	return b.nc.Publish(topic, data)
}
