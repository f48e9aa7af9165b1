package messaging

import (
	"context"
)

// ChannelAuditEntries carries every appended audit entry for downstream
// consumers such as SIEM forwarders.
const ChannelAuditEntries = "audit.entries"

// Broker defines the interface for message brokers
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}
