package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/tokengate/ports"
)

const (
	// TopicIssued carries credential issuance events.
	TopicIssued = "tokengate.credential.issued"

	// TopicRevoked carries revocation events so other instances can drop
	// cached admissions for the jti.
	TopicRevoked = "tokengate.credential.revoked"
)

// CredentialEvent is the payload for both topics.
type CredentialEvent struct {
	Identity string `json:"identity"`
	JTI      string `json:"jti"`
}

// WatermillPublisher implements the EventPublisher port using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishIssued publishes an issuance event.
func (p *WatermillPublisher) PublishIssued(ctx context.Context, identity string, jti string) error {
	return p.publish(TopicIssued, identity, jti)
}

// PublishRevoked publishes a revocation event.
func (p *WatermillPublisher) PublishRevoked(ctx context.Context, identity string, jti string) error {
	return p.publish(TopicRevoked, identity, jti)
}

func (p *WatermillPublisher) publish(topic string, identity string, jti string) error {
	payload, err := json.Marshal(CredentialEvent{Identity: identity, JTI: jti})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(jti, payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
