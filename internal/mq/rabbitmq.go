package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeRuns  = "runs.exchange"
	ExchangeRetry = "runs.retry.exchange"
	ExchangeDLQ   = "runs.dlq.exchange"

	QueueRuns  = "runs.queue"
	QueueRetry = "runs.retry.queue"
	QueueDLQ   = "runs.dlq.queue"

	RoutingRun   = "run"
	RoutingRetry = "run.retry"
	RoutingDLQ   = "run.dlq"
)

type Client struct {
	Conn      *amqp.Connection //tcp
	Channel   *amqp.Channel    // AMQP
	publishMu sync.Mutex
}

// Dial opens a connection and a channel.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Client) closed() bool {
	return c.Conn.IsClosed() || c.Channel.IsClosed()
}

type exchangeQueue struct {
	exchange string
	queue    string
	routing  string
	args     amqp.Table
}

// topology: retry messages expire back into the run exchange.
var topology = []exchangeQueue{
	{exchange: ExchangeRuns, queue: QueueRuns, routing: RoutingRun},
	{exchange: ExchangeRetry, queue: QueueRetry, routing: RoutingRetry, args: amqp.Table{
		"x-dead-letter-exchange":    ExchangeRuns,
		"x-dead-letter-routing-key": RoutingRun,
	}},
	{exchange: ExchangeDLQ, queue: QueueDLQ, routing: RoutingDLQ},
}

func (c *Client) DeclareTopology() error {
	for _, t := range topology {
		if err := c.Channel.ExchangeDeclare(
			t.exchange,
			"direct",
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", t.exchange, err)
		}
		if _, err := c.Channel.QueueDeclare(
			t.queue,
			true,
			false,
			false,
			false,
			t.args,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.queue, err)
		}
		if err := c.Channel.QueueBind(
			t.queue,
			t.routing,
			t.exchange,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind queue %s: %w", t.queue, err)
		}
	}
	return nil
}

func (c *Client) PublishTask(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeRuns, RoutingRun, body, "")
}

func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	expiration := fmt.Sprintf("%d", delay.Milliseconds())
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, expiration)
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if expiration != "" {
		msg.Expiration = expiration
	}
	return c.Channel.PublishWithContext(
		ctx,
		exchange,
		key,
		false,
		false,
		msg,
	)
}

// Publisher keeps one publishing connection and redials it when it drops.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

// NewPublisher builds a Publisher; the connection is opened on first use.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.closed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return p.client, nil
}

// PublishTask publishes a run message.
func (p *Publisher) PublishTask(ctx context.Context, body []byte) error {
	client, err := p.get()
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	return client.PublishTask(ctx, body)
}

// Close drops the publishing connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
