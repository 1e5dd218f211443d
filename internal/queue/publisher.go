// Package queue carries domain events over RabbitMQ. Queues are named after
// their topic and declared durable on both sides.
package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes JSON events to the queue named by the topic. The
// connection is dialed on first use and redialed after it drops.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) connection() (*amqp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

// Publish marshals payload and publishes it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("rabbitmq: marshal %s event failed: %v", topic, err)
		return err
	}

	conn, err := p.connection()
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", topic, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish %s failed: %v", topic, err)
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}
