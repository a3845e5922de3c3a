// Package bus defines the message bus boundary the ledger publishes credit
// events through. The NATS implementation lives in transport/nats.
package bus

// Topics.
const (
	TopicCreditEvents = "credits.events"
	TopicCompletions  = "generations.completed"
)

type Bus interface {
	Publish(topic string, data []byte) error
}

// Noop discards every publish. Used when no bus is configured and in tests.
type Noop struct{}

func (Noop) Publish(string, []byte) error { return nil }
