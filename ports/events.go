package ports

import "context"

// EventPublisher notifies other instances about credential lifecycle events.
type EventPublisher interface {
	PublishIssued(ctx context.Context, identity string, jti string) error
	PublishRevoked(ctx context.Context, identity string, jti string) error
}
