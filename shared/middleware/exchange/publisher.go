package exchange

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lanmaster/lanmaster/shared/logger"
	"github.com/lanmaster/lanmaster/shared/middleware"
)

const (
	DefaultBufferSize = 64
	publishTimeout    = 2 * time.Second
	dialRetries       = 3
	dialRetryInterval = 500 * time.Millisecond
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends events to a fanout exchange from its own goroutine.
// Publish never blocks; when the buffer is full the event is dropped.
type Publisher struct {
	exchangeName string
	channel      Channel
	conn         io.Closer

	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewPublisher connects to the broker and declares a durable fanout exchange.
func NewPublisher(config *middleware.ConnectionConfig, exchangeName string, bufferSize int) (*Publisher, error) {
	conn, err := middleware.DialWithRetry(config, dialRetries, dialRetryInterval)
	if err != nil {
		return nil, err
	}

	ch, err := middleware.CreateChannel(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	p, err := newPublisher(ch, conn, exchangeName, bufferSize)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch Channel, conn io.Closer, exchangeName string, bufferSize int) (*Publisher, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	err := ch.ExchangeDeclare(
		exchangeName,
		amqp.ExchangeFanout,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchangeName, err)
	}
	logger.LogInfo("Events", "Exchange '%s' declared (fanout)", exchangeName)

	p := &Publisher{
		exchangeName: exchangeName,
		channel:      ch,
		conn:         conn,
		events:       make(chan Event, bufferSize),
		done:         make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p, nil
}

// Publish queues e for sending. It reports false if the event was dropped.
func (p *Publisher) Publish(e Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.events <- e:
		return true
	default:
		p.dropped.Add(1)
		logger.LogWarn("Events", "Buffer full, dropping %s event", e.Type)
		return false
	}
}

// Dropped returns the number of events lost to a full buffer.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close flushes queued events and closes the channel and connection.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()

		if dropped := p.Dropped(); dropped > 0 {
			logger.LogWarn("Events", "%d events for '%s' were dropped", dropped, p.exchangeName)
		}

		if closeErr := p.channel.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close channel: %w", closeErr)
		}
		if p.conn != nil {
			if closeErr := p.conn.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("failed to close connection: %w", closeErr)
			}
		}
		logger.LogInfo("Events", "Publisher for '%s' closed", p.exchangeName)
	})
	return err
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case e := <-p.events:
			p.send(e)
		case <-p.done:
			for {
				select {
				case e := <-p.events:
					p.send(e)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) send(e Event) {
	body, err := e.Encode()
	if err != nil {
		logger.LogError("Events", "%v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchangeName,
		e.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   e.Timestamp,
			Type:        string(e.Type),
			Body:        body,
		},
	)
	if err != nil {
		logger.LogError("Events", "Failed to publish %s event: %v", e.Type, err)
		return
	}
	logger.LogDebug("Events", "Published %s event to '%s'", e.Type, p.exchangeName)
}
