package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishDaySave publishes a reconciliation request for the given day.
func (c *Client) PublishDaySave(ctx context.Context, day string) error {
	msg := NewDaySaveMessage(day)
	if err := c.publish(ctx, OpDaySave, msg); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published day save message",
		"day", day,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishMasterExport publishes an export request for a changed master record.
func (c *Client) PublishMasterExport(ctx context.Context, recordID int64, day string) error {
	msg := NewMasterExportMessage(recordID, day)
	if err := c.publish(ctx, OpMasterExport, msg); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published master export message",
		"record_id", recordID,
		"day", day,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, operation string, payload any) error {
	body, err := marshalEnvelope(operation, payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Consume dispatches queue messages to the given handlers until the context
// is cancelled. Malformed messages are rejected without requeue; handler
// failures requeue the delivery.
func (c *Client) Consume(
	ctx context.Context,
	onDaySave func(context.Context, *DaySaveMessage) error,
	onMasterExport func(context.Context, *MasterExportMessage) error,
) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			if err := c.dispatch(ctx, delivery.Body, onDaySave, onMasterExport); err != nil {
				if isMalformed(err) {
					slog.ErrorContext(ctx, "Rejecting malformed message", "error", err)
					delivery.Nack(false, false)
					continue
				}
				slog.ErrorContext(ctx, "Failed to handle message, requeueing", "error", err)
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
		}
	}
}

type malformedError struct{ err error }

func (e *malformedError) Error() string { return e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

func isMalformed(err error) bool {
	var m *malformedError
	return errors.As(err, &m)
}

func (c *Client) dispatch(
	ctx context.Context,
	body []byte,
	onDaySave func(context.Context, *DaySaveMessage) error,
	onMasterExport func(context.Context, *MasterExportMessage) error,
) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &malformedError{fmt.Errorf("unmarshal envelope: %w", err)}
	}

	switch env.Operation {
	case OpDaySave:
		var msg DaySaveMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return &malformedError{fmt.Errorf("unmarshal day save payload: %w", err)}
		}
		return onDaySave(ctx, &msg)
	case OpMasterExport:
		var msg MasterExportMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return &malformedError{fmt.Errorf("unmarshal master export payload: %w", err)}
		}
		return onMasterExport(ctx, &msg)
	default:
		return &malformedError{fmt.Errorf("unknown operation: %s", env.Operation)}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
