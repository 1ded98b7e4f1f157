package health

import (
	"context"
	"errors"
)

// ErrMQTTDisconnected is returned while the broker session is down.
var ErrMQTTDisconnected = errors.New("mqtt client not connected")

// MQTTConnection reports the state of a broker session.
type MQTTConnection interface {
	IsConnectionOpen() bool
}

// MQTTChecker implements health checking for the MQTT telemetry subscriber.
type MQTTChecker struct {
	conn MQTTConnection
}

// NewMQTTChecker creates a new MQTT health checker.
func NewMQTTChecker(conn MQTTConnection) *MQTTChecker {
	return &MQTTChecker{
		conn: conn,
	}
}

// HealthCheck fails while the subscriber is disconnected. The client
// reconnects on its own, so this only reports state.
func (m *MQTTChecker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.conn.IsConnectionOpen() {
		return ErrMQTTDisconnected
	}
	return nil
}
