package rabbitmq

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/partsdepot/cart-service/pkg/config"
)

type fakeConn struct {
	closed   bool
	closeErr error
}

func (f *fakeConn) IsClosed() bool { return f.closed }

func (f *fakeConn) Close() error {
	f.closed = true
	return f.closeErr
}

type publishCall struct {
	exchange  string
	key       string
	mandatory bool
	msg       amqp.Publishing
}

type fakeChannel struct {
	calls      []publishCall
	publishErr error
	closed     bool
	closeErr   error
	returns    chan amqp.Return
	// unbound lists routing keys the broker hands back as unroutable.
	unbound    []string
}

func (f *fakeChannel) PublishWithDeferredConfirmWithContext(_ context.Context, exchange, key string, mandatory, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, mandatory: mandatory, msg: msg})
	if mandatory && slices.Contains(f.unbound, key) {
		f.returns <- amqp.Return{ReplyCode: amqp.NoRoute, ReplyText: "NO_ROUTE", RoutingKey: key, MessageId: msg.MessageId}
	}
	return nil, nil
}

func (f *fakeChannel) NotifyReturn(c chan amqp.Return) chan amqp.Return {
	f.returns = c
	return c
}

func (f *fakeChannel) IsClosed() bool { return f.closed }

func (f *fakeChannel) Close() error {
	f.closed = true
	return f.closeErr
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.RabbitMQConfig{Exchange: "events"}, nil)
	require.ErrorIs(t, err, errURLRequired)

	_, err = NewClient(context.Background(), config.RabbitMQConfig{URL: "amqp://localhost"}, nil)
	require.ErrorIs(t, err, errExchangeRequired)
}

func TestPublishSendsPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	client := newClient(&fakeConn{}, ch, "partsdepot.events")

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := client.Publish(context.Background(), Message{
		RoutingKey: "cart.cart_merged.v1",
		MessageID:  "evt-1",
		Type:       "cart_merged",
		Timestamp:  ts,
		Headers:    map[string]any{"aggregate_id": "abc"},
		Body:       []byte(`{"version":1}`),
	})
	require.NoError(t, err)
	require.Len(t, ch.calls, 1)

	call := ch.calls[0]
	assert.Equal(t, "partsdepot.events", call.exchange)
	assert.Equal(t, "cart.cart_merged.v1", call.key)
	assert.True(t, call.mandatory)
	assert.Equal(t, amqp.Persistent, call.msg.DeliveryMode)
	assert.Equal(t, "application/json", call.msg.ContentType)
	assert.Equal(t, "evt-1", call.msg.MessageId)
	assert.Equal(t, ts, call.msg.Timestamp)
	assert.Equal(t, "abc", call.msg.Headers["aggregate_id"])
}

func TestPublishWrapsChannelErrors(t *testing.T) {
	ch := &fakeChannel{publishErr: amqp.ErrClosed}
	client := newClient(&fakeConn{}, ch, "events")

	err := client.Publish(context.Background(), Message{RoutingKey: "cart.cart_created.v1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Contains(t, err.Error(), "cart.cart_created.v1")
}

func TestPublishFailsWhenBrokerReturnsMessage(t *testing.T) {
	ch := &fakeChannel{unbound: []string{"cart.cart_cleared.v1"}}
	client := newClient(&fakeConn{}, ch, "events")

	err := client.Publish(context.Background(), Message{RoutingKey: "cart.cart_cleared.v1", MessageID: "evt-9"})
	require.ErrorIs(t, err, ErrUnroutable)
	assert.Contains(t, err.Error(), "NO_ROUTE")

	require.NoError(t, client.Publish(context.Background(), Message{RoutingKey: "cart.cart_merged.v1", MessageID: "evt-10"}))
}

func TestPublishIgnoresReturnsForOtherMessages(t *testing.T) {
	ch := &fakeChannel{}
	client := newClient(&fakeConn{}, ch, "events")
	ch.returns <- amqp.Return{ReplyCode: amqp.NoRoute, MessageId: "stale"}

	require.NoError(t, client.Publish(context.Background(), Message{RoutingKey: "cart.cart_merged.v1", MessageID: "evt-11"}))
	assert.Empty(t, ch.returns)
}

func TestPublishRequiresRoutingKey(t *testing.T) {
	client := newClient(&fakeConn{}, &fakeChannel{}, "events")
	require.Error(t, client.Publish(context.Background(), Message{}))

	var nilClient *Client
	require.ErrorIs(t, nilClient.Publish(context.Background(), Message{RoutingKey: "x"}), errNotInitialized)
}

func TestPingReportsClosedResources(t *testing.T) {
	conn := &fakeConn{}
	ch := &fakeChannel{}
	client := newClient(conn, ch, "events")

	require.NoError(t, client.Ping(context.Background()))

	ch.closed = true
	require.EqualError(t, client.Ping(context.Background()), "rabbitmq channel closed")

	conn.closed = true
	require.EqualError(t, client.Ping(context.Background()), "rabbitmq connection closed")
}

func TestCloseCombinesErrors(t *testing.T) {
	chErr := errors.New("channel close")
	connErr := errors.New("conn close")
	client := newClient(&fakeConn{closeErr: connErr}, &fakeChannel{closeErr: chErr}, "events")

	err := client.Close()
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, err, chErr)
	assert.ErrorIs(t, err, connErr)

	require.NoError(t, client.Close())
}
