// Package events publishes notifications about completed authorizations to an
// AMQP exchange, so that other backend services (chat bot, moderation tools)
// can react when a user connects their Twitch account. Publication is
// optional and best-effort: the relay functions identically without a broker.
package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// CredentialIssued is emitted each time an authorization code grant flow
// completes and a handoff key is issued. It deliberately carries no token
// material.
type CredentialIssued struct {
	UserId   string    `json:"userId"`
	Username string    `json:"username"`
	IssuedAt time.Time `json:"issuedAt"`
}

// FormatConnectionString builds an amqp:// URI from discrete connection
// parameters
func FormatConnectionString(host string, port int, vhost, user, password string) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", user, password, host, port, vhost)
}

// Producer publishes messages to a single fanout exchange
type Producer struct {
	ch       *amqp.Channel
	exchange string
}

// NewProducer opens a channel on the given AMQP connection and declares the
// named fanout exchange, creating it if it does not already exist
func NewProducer(conn *amqp.Connection, exchange string) (*Producer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchange, err)
	}
	return &Producer{
		ch:       ch,
		exchange: exchange,
	}, nil
}

// Send publishes a single message to the producer's exchange
func (p *Producer) Send(ctx context.Context, body []byte) error {
	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
