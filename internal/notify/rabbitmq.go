package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/config"
	"github.com/sells-group/veille/internal/model"
)

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes persistent JSON messages to a direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
	now        func() time.Time
}

// NewRabbitMQ connects, declares the exchange and a durable queue, and binds
// them with the routing key.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "notify: connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "notify: open channel")
	}

	fail := func(err error, msg string) (*RabbitMQ, error) {
		ch.Close()   //nolint:errcheck
		conn.Close() //nolint:errcheck
		return nil, eris.Wrap(err, msg)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fail(err, "notify: declare exchange")
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail(err, "notify: declare queue")
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fail(err, "notify: bind queue")
	}

	zap.L().Info("connected to rabbitmq",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", cfg.Queue),
		zap.String("routing_key", cfg.RoutingKey),
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		now:        time.Now,
	}, nil
}

// Publish sends one "created" message.
func (r *RabbitMQ) Publish(ctx context.Context, p model.Publication) error {
	now := r.now().UTC()
	body, err := json.Marshal(Message{
		Action:      ActionCreated,
		Publication: p,
		Timestamp:   now,
	})
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}

	err = r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    now,
	})
	if err != nil {
		return eris.Wrapf(err, "notify: publish %s", p.URL)
	}

	zap.L().Debug("published publication", zap.String("url", p.URL), zap.String("commune", p.Commune))
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close() //nolint:errcheck
	}
	if r.conn != nil {
		return eris.Wrap(r.conn.Close(), "notify: close connection")
	}
	return nil
}

// New returns a RabbitMQ publisher, or Noop when cfg has no URL.
func New(cfg config.RabbitMQConfig) (Publisher, error) {
	if cfg.URL == "" {
		return Noop{}, nil
	}
	r, err := NewRabbitMQ(cfg)
	if err != nil {
		return nil, err
	}
	return r, nil
}
