package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"tipledger/core/types"
)

// DefaultSubjectPrefix namespaces ledger events on the NATS bus.
const DefaultSubjectPrefix = "tipledger.events"

// NATSOptions configures the NATS publisher.
type NATSOptions struct {
	URL            string
	SubjectPrefix  string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	Logger         *slog.Logger
}

// NATSSink publishes every bus event as JSON to <prefix>.<event type>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// ConnectNATS dials the configured server and returns a ready sink.
func ConnectNATS(opts NATSOptions) (*NATSSink, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("events: nats url required")
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	wait := opts.ReconnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("tipledger"),
		nats.Timeout(timeout),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}
	return NewNATSSink(conn, opts.SubjectPrefix), nil
}

// NewNATSSink wraps an existing connection.
func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Conn exposes the underlying connection for consumers sharing it.
func (s *NATSSink) Conn() *nats.Conn { return s.conn }

// Prefix returns the normalized subject prefix.
func (s *NATSSink) Prefix() string { return s.prefix }

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(eventType string) string {
	return SubjectFor(s.prefix, eventType)
}

// Publish implements Sink.
func (s *NATSSink) Publish(evt *types.Event) error {
	if s == nil || s.conn == nil || evt == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", evt.Type, err)
	}
	if err := s.conn.Publish(s.Subject(evt.Type), payload); err != nil {
		return fmt.Errorf("events: publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// SubscribeNATS consumes every event published under prefix and hands the
// decoded payload to handler. Malformed messages are skipped.
func SubscribeNATS(conn *nats.Conn, prefix string, handler func(*types.Event)) (*nats.Subscription, error) {
	if conn == nil || handler == nil {
		return nil, fmt.Errorf("events: nats connection and handler required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return conn.Subscribe(prefix+".>", func(msg *nats.Msg) {
		evt, err := DecodeEvent(msg.Data)
		if err != nil {
			return
		}
		handler(evt)
	})
}

// SubjectFor joins a prefix and event type into a NATS subject.
func SubjectFor(prefix, eventType string) string {
	return prefix + "." + eventType
}

// DecodeEvent parses a JSON encoded event payload.
func DecodeEvent(data []byte) (*types.Event, error) {
	var evt types.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	if strings.TrimSpace(evt.Type) == "" {
		return nil, fmt.Errorf("events: payload missing type")
	}
	if evt.Attributes == nil {
		evt.Attributes = map[string]string{}
	}
	return &evt, nil
}
