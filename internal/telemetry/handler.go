// Package telemetry ingests device traffic from an MQTT broker. Beacons
// publish battery and signal readings to {prefix}/{beacon_id}/telemetry and
// report each advertisement they broadcast to {prefix}/{beacon_id}/delivery.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/deliverylog"
	"github.com/onnwee/beaconads/internal/validate"
)

// TopicKind is the last segment of a device topic.
type TopicKind string

// Topic kinds.
const (
	TopicTelemetry TopicKind = "telemetry"
	TopicDelivery  TopicKind = "delivery"
	TopicUnknown   TopicKind = "unknown"
)

// ErrUnknownTopic is returned for topics outside {prefix}/{id}/{kind}.
var ErrUnknownTopic = errors.New("unknown telemetry topic")

// TelemetryUpdater stores beacon readings.
type TelemetryUpdater interface {
	UpdateTelemetry(ctx context.Context, id string, t beacon.Telemetry, at time.Time) (*beacon.Beacon, error)
}

// DeliveryRecorder appends delivery log entries.
type DeliveryRecorder interface {
	Record(ctx context.Context, beaconID, adID string) (*deliverylog.Log, error)
}

type deliveryPayload struct {
	AdvertisementID string `json:"advertisement_id"`
}

// Handler decodes and applies device messages. It never panics on bad input;
// every message is logged and counted.
type Handler struct {
	prefix     string
	beacons    TelemetryUpdater
	deliveries DeliveryRecorder
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates a Handler for topics under prefix. metrics may be nil.
func NewHandler(prefix string, beacons TelemetryUpdater, deliveries DeliveryRecorder, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		prefix:     strings.Trim(prefix, "/"),
		beacons:    beacons,
		deliveries: deliveries,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Topics returns the subscription filters for the handled topics.
func (h *Handler) Topics() []string {
	return []string{
		h.prefix + "/+/" + string(TopicTelemetry),
		h.prefix + "/+/" + string(TopicDelivery),
	}
}

// ParseTopic splits {prefix}/{beacon_id}/{kind}.
func (h *Handler) ParseTopic(topic string) (string, TopicKind, error) {
	rest, ok := strings.CutPrefix(topic, h.prefix+"/")
	if !ok {
		return "", TopicUnknown, ErrUnknownTopic
	}
	id, kind, ok := strings.Cut(rest, "/")
	if !ok || id == "" || strings.Contains(kind, "/") {
		return "", TopicUnknown, ErrUnknownTopic
	}
	switch TopicKind(kind) {
	case TopicTelemetry, TopicDelivery:
		return id, TopicKind(kind), nil
	}
	return "", TopicUnknown, ErrUnknownTopic
}

// Handle applies one message and returns the reason it was not applied.
func (h *Handler) Handle(ctx context.Context, topic string, payload []byte) error {
	beaconID, kind, err := h.ParseTopic(topic)
	if err != nil {
		h.record(ctx, topic, kind, StatusInvalid, err)
		return err
	}

	switch kind {
	case TopicTelemetry:
		err = h.handleTelemetry(ctx, beaconID, payload)
	case TopicDelivery:
		err = h.handleDelivery(ctx, beaconID, payload)
	}
	h.record(ctx, topic, kind, statusOf(err), err)
	return err
}

func (h *Handler) handleTelemetry(ctx context.Context, beaconID string, payload []byte) error {
	var t beacon.Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("failed to decode telemetry: %w", err)
	}
	_, err := h.beacons.UpdateTelemetry(ctx, beaconID, t, h.now())
	return err
}

func (h *Handler) handleDelivery(ctx context.Context, beaconID string, payload []byte) error {
	var d deliveryPayload
	if err := json.Unmarshal(payload, &d); err != nil {
		return fmt.Errorf("failed to decode delivery: %w", err)
	}
	_, err := h.deliveries.Record(ctx, beaconID, d.AdvertisementID)
	return err
}

func statusOf(err error) string {
	var (
		fe        validate.FieldErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case err == nil:
		return StatusProcessed
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return StatusInvalid
	case errors.As(err, &fe), errors.Is(err, beacon.ErrBeaconNotFound):
		return StatusRejected
	default:
		return StatusFailed
	}
}

func (h *Handler) record(ctx context.Context, topic string, kind TopicKind, status string, err error) {
	if h.metrics != nil {
		h.metrics.IncMessages(kind, status)
	}
	attrs := []any{slog.String("topic", topic), slog.String("status", status)}
	switch status {
	case StatusProcessed:
		h.logger.DebugContext(ctx, "mqtt message processed", attrs...)
	case StatusFailed:
		h.logger.ErrorContext(ctx, "mqtt message failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		h.logger.WarnContext(ctx, "mqtt message dropped", append(attrs, slog.String("error", err.Error()))...)
	}
}
