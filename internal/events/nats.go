package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/observability/alerting"
	"ForesightX/pkg/logger"
)

const defaultSubjectPrefix = "foresightx"

// natsConn is the subset of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes action events to <prefix>.actions.<ACTION> and
// alerts to <prefix>.alerts.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

var (
	_ agent.Observer    = (*NATSPublisher)(nil)
	_ alerting.Notifier = (*NATSPublisher)(nil)
)

// ConnectNATS dials the server and returns a publisher.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, xerrors.New(xerrors.CodeConfigMissing, "nats url is empty")
	}
	log := logger.Named("events.nats")
	conn, err := nats.Connect(url,
		nats.Name("foresightx"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "connect nats")
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// ActionSubject returns the subject an action's events are published on.
func (p *NATSPublisher) ActionSubject(action string) string {
	action = strings.ToUpper(strings.TrimSpace(action))
	if action == "" {
		action = "NONE"
	}
	// NATS subject tokens cannot contain separators or whitespace.
	action = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, action)
	return p.prefix + ".actions." + action
}

// AlertSubject returns the alerts subject.
func (p *NATSPublisher) AlertSubject() string { return p.prefix + ".alerts" }

// Observe implements agent.Observer.
func (p *NATSPublisher) Observe(_ context.Context, event agent.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Named("events.nats").Warn("marshal event failed", "error", err)
		return
	}
	if err := p.conn.Publish(p.ActionSubject(event.Action), data); err != nil {
		logger.Named("events.nats").Warn("publish event failed", "action", event.Action, "error", err)
	}
}

// Channel implements alerting.Notifier.
func (p *NATSPublisher) Channel() alerting.Channel { return alerting.ChannelNATS }

// Notify implements alerting.Notifier.
func (p *NATSPublisher) Notify(_ context.Context, event alerting.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.AlertSubject(), data)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
