package amqpmail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	provisioning "github.com/goliatone/go-provisioning"
)

// MailJob is the message consumed by the mail worker
type MailJob struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	HTMLBody string    `json:"html_body"`
	QueuedAt time.Time `json:"queued_at"`
}

// Channel is the subset of *amqp.Channel used by the publisher
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher hands invitations to a mail worker queue instead of sending them
type Publisher struct {
	Channel    Channel
	Exchange   string
	RoutingKey string
	now        func() time.Time
}

var _ provisioning.MailSender = (*Publisher)(nil)

func NewPublisher(ch Channel, exchange, routingKey string) *Publisher {
	return &Publisher{
		Channel:    ch,
		Exchange:   exchange,
		RoutingKey: routingKey,
		now:        time.Now,
	}
}

// Dial opens a connection and a channel for a publisher. The caller closes
// the returned connection.
func Dial(url, exchange, routingKey string) (*Publisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqpmail: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("amqpmail: channel: %w", err)
	}

	return NewPublisher(ch, exchange, routingKey), conn, nil
}

// Send implements provisioning.MailSender
func (p *Publisher) Send(ctx context.Context, to, subject, htmlBody string) error {
	now := p.now()

	body, err := json.Marshal(MailJob{
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
		QueuedAt: now.UTC(),
	})
	if err != nil {
		return err
	}

	return p.Channel.PublishWithContext(ctx,
		p.Exchange,
		p.RoutingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    now,
			DeliveryMode: amqp.Persistent,
		},
	)
}
