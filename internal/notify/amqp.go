package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/port"
)

// Client manages the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex
	url     string
	logger  *zap.Logger
}

// NewClient dials the broker.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	client := &Client{url: url, logger: logger}
	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create AMQP client: %w", err)
	}
	return client, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	c.conn = conn
	c.channel = ch

	go c.handleConnectionClose()

	c.logger.Info("amqp client connected")
	return nil
}

func (c *Client) handleConnectionClose() {
	closeErr := make(chan *amqp.Error, 1)
	c.conn.NotifyClose(closeErr)
	if err := <-closeErr; err != nil {
		c.logger.Error("amqp connection closed", zap.Error(err))
	}
}

// DeclareExchange declares the durable topic exchange notifications go to.
func (c *Client) DeclareExchange(name string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.channel.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", name, err)
	}
	return nil
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// AMQPNotifier publishes notifications as persistent JSON messages for the
// outbound mail sender.
type AMQPNotifier struct {
	client     *Client
	exchange   string
	routingKey string
	logger     *zap.Logger
}

var _ port.Notifier = (*AMQPNotifier)(nil)

// NewAMQPNotifier builds a notifier publishing to exchange with routingKey.
func NewAMQPNotifier(client *Client, exchange, routingKey string, logger *zap.Logger) *AMQPNotifier {
	return &AMQPNotifier{client: client, exchange: exchange, routingKey: routingKey, logger: logger}
}

// Send publishes n.
func (p *AMQPNotifier) Send(ctx context.Context, n port.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	headers := amqp.Table{}
	for k, v := range n.Headers {
		headers[k] = v
	}

	p.client.mu.RLock()
	ch := p.client.channel
	p.client.mu.RUnlock()

	err = ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    n.TicketCode,
		Headers:      headers,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification to exchange '%s' with routing key '%s': %w", p.exchange, p.routingKey, err)
	}
	p.logger.Debug("notification published",
		zap.String("ticket_code", n.TicketCode),
		zap.String("exchange", p.exchange),
		zap.String("routing_key", p.routingKey))
	return nil
}
