package deliverylog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onnwee/beaconads/internal/advertisement"
	"github.com/onnwee/beaconads/internal/beacon"
	"github.com/onnwee/beaconads/internal/validate"
)

// Recorder appends delivery entries after checking both references exist and
// publishes each entry to live subscribers. It serves the HTTP and MQTT paths.
type Recorder struct {
	repo        Repository
	beacons     beacon.Repository
	ads         advertisement.Repository
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewRecorder creates a Recorder. broadcaster may be nil.
func NewRecorder(repo Repository, beacons beacon.Repository, ads advertisement.Repository, broadcaster *Broadcaster, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, beacons: beacons, ads: ads, broadcaster: broadcaster, logger: logger}
}

// Record appends a broadcast of adID by beaconID at the current time.
// Missing or unknown ids are reported as validate.FieldErrors.
func (r *Recorder) Record(ctx context.Context, beaconID, adID string) (*Log, error) {
	fe := validate.FieldErrors{}
	if beaconID == "" {
		fe.Add("beacon_id", "this field is required")
	} else if _, err := r.beacons.GetByID(ctx, beaconID); errors.Is(err, beacon.ErrBeaconNotFound) {
		fe.Add("beacon_id", "beacon not found")
	} else if err != nil {
		return nil, err
	}
	if adID == "" {
		fe.Add("advertisement_id", "this field is required")
	} else if _, err := r.ads.GetByID(ctx, adID); errors.Is(err, advertisement.ErrAdvertisementNotFound) {
		fe.Add("advertisement_id", "advertisement not found")
	} else if err != nil {
		return nil, err
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}

	l := &Log{BeaconID: beaconID, AdvertisementID: adID}
	if err := r.repo.Append(ctx, l); err != nil {
		return nil, err
	}
	r.logger.Debug("delivery recorded",
		slog.String("log_id", l.ID),
		slog.String("beacon_id", beaconID),
		slog.String("advertisement_id", adID),
	)
	if r.broadcaster != nil {
		r.broadcaster.Publish(l)
	}
	return l, nil
}

// GetByID returns one entry.
func (r *Recorder) GetByID(ctx context.Context, id string) (*Log, error) {
	return r.repo.GetByID(ctx, id)
}

// List returns one page of entries and the total match count.
func (r *Recorder) List(ctx context.Context, f Filter, limit, offset int) ([]*Log, int, error) {
	return r.repo.List(ctx, f, limit, offset)
}

// Broadcaster returns the live feed, or nil.
func (r *Recorder) Broadcaster() *Broadcaster {
	return r.broadcaster
}
