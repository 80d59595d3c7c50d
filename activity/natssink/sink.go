// Package natssink publishes account activity to NATS as msgpack encoded
// activitymap records.
package natssink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/nats-io/nats.go"
	accounts "github.com/prophet-studio/go-accounts"
	"github.com/prophet-studio/go-accounts/activitymap"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSubjectPrefix is prepended to the event verb
const DefaultSubjectPrefix = "accounts.activity"

// Publisher is the slice of *nats.Conn the sink needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Sink struct {
	pub     Publisher
	prefix  string
	logger  accounts.Logger
	mapOpts []activitymap.Option
}

type Option func(*Sink)

func WithSubjectPrefix(prefix string) Option {
	return func(s *Sink) {
		if prefix = strings.Trim(strings.TrimSpace(prefix), "."); prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithLogger(logger accounts.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNormalizeOptions forwards options to activitymap.Normalize
func WithNormalizeOptions(opts ...activitymap.Option) Option {
	return func(s *Sink) {
		s.mapOpts = append(s.mapOpts, opts...)
	}
}

func New(pub Publisher, opts ...Option) *Sink {
	s := &Sink{
		pub:    pub,
		prefix: DefaultSubjectPrefix,
		logger: accounts.NoopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subject returns the subject an event is published on
func (s *Sink) Subject(eventType accounts.ActivityEventType) string {
	return s.prefix + "." + string(eventType)
}

// Record implements accounts.ActivitySink
func (s *Sink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	if s.pub == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	record := activitymap.Normalize(event, s.mapOpts...)
	payload, err := msgpack.Marshal(&record)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode activity")
	}

	subject := s.Subject(event.EventType)
	if err := s.pub.Publish(subject, payload); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to publish activity").
			WithMetadata(map[string]any{"subject": subject})
	}

	s.logger.Debug("activity published", "subject", subject, "bytes", len(payload))
	return nil
}

// Decode reads a payload produced by Record
func Decode(data []byte) (activitymap.Normalized, error) {
	var record activitymap.Normalized
	err := msgpack.Unmarshal(data, &record)
	return record, err
}

// Connect dials NATS with reconnect settings suited to a long running server
func Connect(url string, logger accounts.Logger) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if logger == nil {
		logger = accounts.NoopLogger()
	}

	return nats.Connect(url,
		nats.Name("go-accounts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
