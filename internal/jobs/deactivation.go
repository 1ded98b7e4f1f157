package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Deactivator switches off advertisements whose assignments have all ended
// and returns how many changed.
type Deactivator interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}

// DeactivationJobConfig configures the deactivation job.
type DeactivationJobConfig struct {
	// Interval is the duration between runs.
	Interval time.Duration
	// Timeout for each run.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
}

// Defaults for DeactivationJobConfig.
const (
	DefaultDeactivationInterval = time.Hour
	DefaultDeactivationTimeout  = 30 * time.Second
)

// DeactivationJob periodically deactivates expired advertisements.
type DeactivationJob struct {
	config      DeactivationJobConfig
	deactivator Deactivator
	now         func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDeactivationJob creates a new deactivation job.
func NewDeactivationJob(config DeactivationJobConfig, deactivator Deactivator) *DeactivationJob {
	if config.Interval <= 0 {
		config.Interval = DefaultDeactivationInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDeactivationTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &DeactivationJob{config: config, deactivator: deactivator, now: time.Now}
}

// Start runs the job once immediately and then on every interval.
// Returns immediately; the job runs in a background goroutine.
func (j *DeactivationJob) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
}

// Stop signals the job to stop and waits for the current run to finish.
func (j *DeactivationJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *DeactivationJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *DeactivationJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	_, _ = j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("deactivation job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("deactivation job stopping due to stop signal")
			return
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single run and reports it to the metrics.
func (j *DeactivationJob) RunOnce(parent context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parent, j.config.Timeout)
	defer cancel()

	start := time.Now()
	changed, err := j.deactivator.DeactivateExpired(ctx, j.now())
	duration := time.Since(start).Seconds()

	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		errorType := "database_error"
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = "timeout"
		}
		j.config.Logger.Error("deactivation job failed",
			slog.String("error", err.Error()),
			slog.String("error_type", errorType))
		if j.config.Metrics != nil {
			j.config.Metrics.IncJobErrors(JobTypeDeactivateExpired, errorType)
		}
	} else {
		j.config.Logger.Info("deactivation job completed",
			slog.Int("deactivated", changed),
			slog.Float64("duration_seconds", duration))
	}

	if j.config.Metrics != nil {
		j.config.Metrics.IncJobsTotal(JobTypeDeactivateExpired, status)
		j.config.Metrics.ObserveJobDuration(JobTypeDeactivateExpired, duration)
		j.config.Metrics.AddDeactivated(changed)
	}
	return changed, err
}
