package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// pollInterval bounds a single JetStream fetch so that a Forever dequeue
// still notices ctx cancellation promptly.
const pollInterval = time.Second

// NATSConfig names the JetStream resources backing the transport.
type NATSConfig struct {
	URL    string
	Stream string // work stream name; the dead-letter stream is Stream+"_DEAD"
	Prefix string // subject prefix, e.g. "menujobs"
}

// NATS is a Transport backed by two JetStream streams: a work-queue stream
// holding live queues (an id is removed once a consumer acks it) and a
// limits stream holding dead-letter lists for inspection.
type NATS struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	work     jetstream.Stream
	dead     jetstream.Stream
	deadName string
	prefix   string

	mu        sync.Mutex
	consumers map[string]jetstream.Consumer
}

// Compile-time check that NATS implements Transport.
var _ Transport = (*NATS)(nil)

// NewNATS connects to NATS and creates or updates the work and dead-letter
// streams.
func NewNATS(ctx context.Context, cfg NATSConfig, opts ...nats.Option) (*NATS, error) {
	if cfg.Stream == "" {
		cfg.Stream = "MENUJOBS"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "menujobs"
	}

	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(cfg.URL, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	work, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Prefix + ".queue.>"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating stream %s: %w", cfg.Stream, err)
	}

	dead, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream + "_DEAD",
		Subjects:  []string{cfg.Prefix + ".dead.>"},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating stream %s_DEAD: %w", cfg.Stream, err)
	}

	return &NATS{
		conn:      nc,
		js:        js,
		work:      work,
		dead:      dead,
		deadName:  cfg.Stream + "_DEAD",
		prefix:    cfg.Prefix,
		consumers: make(map[string]jetstream.Consumer),
	}, nil
}

// subject maps a queue or dead-letter list name to its JetStream subject.
// The whole queue name becomes a single token.
func (n *NATS) subject(name string) string {
	if IsDeadLetterName(name) {
		return n.prefix + ".dead." + token(strings.TrimSuffix(name, deadSuffix))
	}
	return n.prefix + ".queue." + token(name)
}

// token escapes name into a subject token that is also a valid durable
// consumer name. ':' becomes '_'; any byte other than a letter or digit is
// written as '-' and two hex digits. The mapping is injective, so distinct
// queue names never share a subject.
func token(name string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case c == ':':
			b.WriteByte('_')
		default:
			b.WriteByte('-')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func (n *NATS) Enqueue(ctx context.Context, queue, id string) error {
	if _, err := n.js.Publish(ctx, n.subject(queue), []byte(id)); err != nil {
		return fmt.Errorf("publishing to %s: %w", queue, err)
	}
	return nil
}

func (n *NATS) DeadLetter(ctx context.Context, queue, id string) error {
	return n.Enqueue(ctx, DeadLetterName(queue), id)
}

// consumer returns the durable pull consumer for a live queue.
func (n *NATS) consumer(ctx context.Context, queue string) (jetstream.Consumer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if c, ok := n.consumers[queue]; ok {
		return c, nil
	}
	c, err := n.work.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "worker_" + token(queue),
		FilterSubject: n.subject(queue),
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer for %s: %w", queue, err)
	}
	n.consumers[queue] = c
	return c, nil
}

// Dequeue pops one id. The message is acked on receipt: in-flight state lives
// in the event store, not in JetStream redelivery.
func (n *NATS) Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	if n.conn.IsClosed() {
		return "", ErrClosed
	}
	cons, err := n.consumer(ctx, queue)
	if err != nil {
		return "", err
	}

	var deadline time.Time
	if timeout != Forever {
		deadline = time.Now().Add(timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		wait := pollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", ErrTimeout
			}
			wait = min(wait, remaining)
		}

		batch, err := cons.Fetch(1, jetstream.FetchMaxWait(wait))
		if err != nil {
			if n.conn.IsClosed() {
				return "", ErrClosed
			}
			return "", fmt.Errorf("fetching from %s: %w", queue, err)
		}
		for msg := range batch.Messages() {
			if err := msg.Ack(); err != nil {
				return "", fmt.Errorf("acking %s message: %w", queue, err)
			}
			return string(msg.Data()), nil
		}
		if err := batch.Error(); err != nil && !isEmptyFetch(err) {
			return "", fmt.Errorf("fetching from %s: %w", queue, err)
		}
	}
}

func isEmptyFetch(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages)
}

func (n *NATS) Len(ctx context.Context, queue string) (int, error) {
	stream := n.work
	if IsDeadLetterName(queue) {
		stream = n.dead
	}
	subj := n.subject(queue)
	info, err := stream.Info(ctx, jetstream.WithSubjectFilter(subj))
	if err != nil {
		return 0, fmt.Errorf("stream info for %s: %w", queue, err)
	}
	return int(info.State.Subjects[subj]), nil
}

// DeadLetters reads the dead-letter list through an ephemeral ordered
// consumer, which leaves the stored messages in place.
func (n *NATS) DeadLetters(ctx context.Context, queue string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	cons, err := n.js.OrderedConsumer(ctx, n.deadName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{n.subject(DeadLetterName(queue))},
	})
	if err != nil {
		return nil, fmt.Errorf("reading dead letters for %s: %w", queue, err)
	}

	batch, err := cons.FetchNoWait(limit)
	if err != nil {
		return nil, fmt.Errorf("reading dead letters for %s: %w", queue, err)
	}
	var ids []string
	for msg := range batch.Messages() {
		ids = append(ids, string(msg.Data()))
	}
	if err := batch.Error(); err != nil && !isEmptyFetch(err) {
		return nil, fmt.Errorf("reading dead letters for %s: %w", queue, err)
	}
	return ids, nil
}

// Close closes the NATS connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
