package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"Bootcamp/internal/services"
)

// ActionRunner runs reconciliation actions for one application.
type ActionRunner interface {
	RunActions(ctx context.Context, applicationID uuid.UUID, actions []string) (*services.ReconcileReport, error)
}

// KeyGrantConsumer retries checkout key grants that exhausted their
// attempts. A grant that fails again is escalated to the operators by mail;
// failures raised by reconciliation itself are only logged so a broken
// grant cannot loop through the queue.
type KeyGrantConsumer struct {
	url     string
	runner  ActionRunner
	mailer  services.Mailer
	timeout time.Duration
}

func NewKeyGrantConsumer(url string, runner ActionRunner, mailer services.Mailer) *KeyGrantConsumer {
	return &KeyGrantConsumer{url: url, runner: runner, mailer: mailer, timeout: 2 * time.Minute}
}

// Start consumes until ctx is cancelled, redialing with backoff when the
// broker goes away.
func (c *KeyGrantConsumer) Start(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("keygrant-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Printf("keygrant-consumer: consume loop ended: %v; reconnecting", err)
		time.Sleep(2 * time.Second)
	}
}

func (c *KeyGrantConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Printf("keygrant-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(services.TopicKeyGrantFailed, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(services.TopicKeyGrantFailed, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				log.Printf("keygrant-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one keygrant.failed message body.
func (c *KeyGrantConsumer) Handle(ctx context.Context, body []byte) error {
	var ev services.KeyGrantFailedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Origin == services.OriginReconcile {
		log.Printf("keygrant-consumer: reconciliation grant for %s failed again: %s", ev.WalletAddress, ev.Error)
		return nil
	}

	appID, err := uuid.Parse(ev.ApplicationID)
	if err != nil {
		c.alert(ctx, ev)
		return nil
	}

	hctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	report, err := c.runner.RunActions(hctx, appID, []string{services.ActionGrantKey})
	if err != nil || report.Summary.Failed > 0 {
		log.Printf("keygrant-consumer: retry for application %s failed: %v", appID, err)
		c.alert(ctx, ev)
		return nil
	}
	log.Printf("keygrant-consumer: key for application %s granted on retry", appID)
	return nil
}

func (c *KeyGrantConsumer) alert(ctx context.Context, ev services.KeyGrantFailedEvent) {
	if c.mailer == nil {
		return
	}
	if err := c.mailer.SendKeyGrantFailureAlert(ctx, ev); err != nil {
		log.Printf("keygrant-consumer: alert mail failed: %v", err)
	}
}
