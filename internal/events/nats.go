package events

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fabiand/igor/pkg/log"
)

// Subject is the fixed NATS subject every lifecycle event is published
// to; subscribers filter on the XML's type='' attribute if they only
// care about specific hooks.
const Subject = "igor.events"

// NATSPublisher wraps a *nats.Conn, grounded on the teacher's
// pkg/nats.Client: connect-with-options, reconnect/error handlers
// logged through pkg/log, Publish/Close on the underlying connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher dials url and returns a ready Publisher.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("events: NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("events: NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorf("events: NATS error: %v", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: NATS connect to %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish sends the lifecycle event blob on Subject.
func (p *NATSPublisher) Publish(hook, cookie string) error {
	if err := p.conn.Publish(Subject, Render(hook, cookie)); err != nil {
		return fmt.Errorf("events: NATS publish: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		log.Warnf("events: NATS flush on close: %v", err)
	}
	p.conn.Close()
	return nil
}
