package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/station"
)

// Job types carried in RefreshMessage.JobType.
const (
	JobStationCacheRefresh = "station_cache_refresh"
	JobHealthCheck         = "health_check"
)

// ErrUnknownJob is returned by HandleJob for unrecognized job types.
var ErrUnknownJob = errors.New("unknown job type")

// healthCheckBounds is a small viewport in central Amsterdam.
var healthCheckBounds = station.BoundingBox{North: 52.3800, West: 4.8850, South: 52.3680, East: 4.9100}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobRunner
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Logger           zerolog.Logger
}

// RefreshMessage represents a worker job message.
type RefreshMessage struct {
	JobType string `json:"job_type"`

	// Targets limits a refresh to the named targets; empty means all.
	Targets []string `json:"targets,omitempty"`

	// CountryOnly refreshes only the country-wide query.
	CountryOnly bool `json:"country_only,omitempty"`
}

// JobRunner executes worker jobs independently of the transport.
type JobRunner struct {
	refreshJob *RefreshJob
	logger     zerolog.Logger
}

// NewJobRunner creates a job runner around a refresh job.
func NewJobRunner(refreshJob *RefreshJob, logger zerolog.Logger) *JobRunner {
	return &JobRunner{refreshJob: refreshJob, logger: logger}
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             NewJobRunner(cfg.RefreshJob, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	// Parse message.
	var refreshMsg RefreshMessage
	if err := json.Unmarshal(msg.Data, &refreshMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	err := h.jobs.HandleJob(ctx, refreshMsg)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", refreshMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", refreshMsg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}

// HandleJob runs the job described by msg.
func (r *JobRunner) HandleJob(ctx context.Context, msg RefreshMessage) error {
	switch msg.JobType {
	case JobStationCacheRefresh:
		return r.handleStationCacheRefresh(ctx, msg)
	case JobHealthCheck:
		return r.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (r *JobRunner) handleStationCacheRefresh(ctx context.Context, msg RefreshMessage) error {
	r.logger.Info().
		Strs("targets", msg.Targets).
		Bool("country_only", msg.CountryOnly).
		Msg("starting station cache refresh")

	job := r.refreshJob
	if msg.CountryOnly || len(msg.Targets) > 0 {
		job = r.scopedJob(msg)
	}

	result := job.Run(ctx)

	// Consider it successful if at least half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalQueries)
	}
	return nil
}

// scopedJob narrows the configured refresh to what msg asks for. Metrics are
// shared with the full job.
func (r *JobRunner) scopedJob(msg RefreshMessage) *RefreshJob {
	cfg := r.refreshJob.config
	cfg.Targets = nil
	cfg.RefreshCountry = msg.CountryOnly

	if !msg.CountryOnly {
		wanted := make(map[string]bool, len(msg.Targets))
		for _, name := range msg.Targets {
			wanted[name] = true
		}
		for _, t := range r.refreshJob.config.Targets {
			if wanted[t.Name] {
				cfg.Targets = append(cfg.Targets, t)
			}
		}
	}

	return &RefreshJob{
		config:    cfg,
		logger:    r.refreshJob.logger,
		refresher: r.refreshJob.refresher,
		metrics:   r.refreshJob.metrics,
	}
}

func (r *JobRunner) handleHealthCheck(ctx context.Context) error {
	r.logger.Debug().Msg("running health check")

	// Refresh a single small viewport to verify provider connectivity.
	if err := r.refreshJob.Probe(ctx, station.BoundsQuery(healthCheckBounds)); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	r.logger.Debug().Msg("health check passed")
	return nil
}
