package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/logger"
)

const (
	exchangeKind = "topic"
	// returnBuffer holds returns the broker sends ahead of the matching confirm.
	returnBuffer = 16
)

var (
	errURLRequired      = errors.New("rabbitmq url is required")
	errExchangeRequired = errors.New("rabbitmq exchange is required")
	errNotInitialized   = errors.New("rabbitmq client not initialized")
	// ErrNacked is returned when the broker refuses a confirmed publish.
	ErrNacked = errors.New("rabbitmq publish nacked")
	// ErrUnroutable is returned when no queue is bound for the routing key.
	ErrUnroutable = errors.New("rabbitmq message unroutable")
)

type connection interface {
	IsClosed() bool
	Close() error
}

type channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	NotifyReturn(c chan amqp.Return) chan amqp.Return
	IsClosed() bool
	Close() error
}

// Message is a single event bound for the configured exchange.
type Message struct {
	RoutingKey string
	MessageID  string
	Type       string
	Timestamp  time.Time
	Headers    map[string]any
	Body       []byte
}

// Client owns one connection and one confirm-mode channel. Publishes are
// serialized, confirm included, so a return can be matched to the publish
// that caused it.
type Client struct {
	conn     connection
	ch       channel
	returns  <-chan amqp.Return
	exchange string
	mu       sync.Mutex
}

// NewClient dials the broker, puts the channel in confirm mode and declares
// the durable topic exchange events are routed through.
func NewClient(ctx context.Context, cfg config.RabbitMQConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errURLRequired
	}
	if strings.TrimSpace(cfg.Exchange) == "" {
		return nil, errExchangeRequired
	}

	props := amqp.NewConnectionProperties()
	if cfg.ConnectionName != "" {
		props.SetClientConnectionName(cfg.ConnectionName)
	}
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat:  cfg.Heartbeat,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("opening rabbitmq channel: %w", err), conn.Close())
	}
	if err := ch.Confirm(false); err != nil {
		return nil, multierr.Combine(fmt.Errorf("enabling publisher confirms: %w", err), ch.Close(), conn.Close())
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return nil, multierr.Combine(fmt.Errorf("declaring exchange %s: %w", cfg.Exchange, err), ch.Close(), conn.Close())
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "rabbitmq client initialized")
	}

	return newClient(conn, ch, cfg.Exchange), nil
}

func newClient(conn connection, ch channel, exchange string) *Client {
	return &Client{
		conn:     conn,
		ch:       ch,
		returns:  ch.NotifyReturn(make(chan amqp.Return, returnBuffer)),
		exchange: exchange,
	}
}

// Exchange returns the exchange every message is published to.
func (c *Client) Exchange() string {
	if c == nil {
		return ""
	}
	return c.exchange
}

// Publish sends msg as a persistent JSON message and waits for the broker
// confirm when the channel is in confirm mode. Messages are published
// mandatory; one the broker hands back as unroutable fails with ErrUnroutable.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if c == nil || c.ch == nil {
		return errNotInitialized
	}
	if strings.TrimSpace(msg.RoutingKey) == "" {
		return errors.New("routing key is required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Type:         msg.Type,
		Timestamp:    msg.Timestamp,
		Headers:      amqp.Table(msg.Headers),
		Body:         msg.Body,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	confirmation, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, c.exchange, msg.RoutingKey, true, false, publishing)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", msg.RoutingKey, err)
	}
	if confirmation != nil {
		acked, err := confirmation.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("awaiting confirm for %s: %w", msg.RoutingKey, err)
		}
		if !acked {
			return fmt.Errorf("%w: %s", ErrNacked, msg.RoutingKey)
		}
	}
	if ret, ok := c.returned(msg.MessageID); ok {
		return fmt.Errorf("%w: %s (%d %s)", ErrUnroutable, msg.RoutingKey, ret.ReplyCode, ret.ReplyText)
	}
	return nil
}

// returned drains pending returns and reports the one for messageID. The
// broker sends basic.return before the confirm, so after an ack any return
// for this publish is already buffered.
func (c *Client) returned(messageID string) (amqp.Return, bool) {
	for {
		select {
		case ret, open := <-c.returns:
			if !open {
				return amqp.Return{}, false
			}
			if ret.MessageId == messageID {
				return ret, true
			}
		default:
			return amqp.Return{}, false
		}
	}
}

// Ping reports whether the connection and channel are still open.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil || c.ch == nil {
		return errNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	if c.ch.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}
	return nil
}

// Close releases the channel and the connection.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.ch != nil && !c.ch.IsClosed() {
		err = multierr.Append(err, c.ch.Close())
	}
	if c.conn != nil && !c.conn.IsClosed() {
		err = multierr.Append(err, c.conn.Close())
	}
	return err
}
