package interfaces

import "context"

// EventPublisher ships committed events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
