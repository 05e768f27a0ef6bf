package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/models"
	"github.com/resonatefm/resonate/pkg/logger"
	"github.com/resonatefm/resonate/pkg/mail"
	"github.com/resonatefm/resonate/pkg/metrics"
)

const (
	defaultProcessInterval = 60 * time.Second
	defaultBatchSize       = 10
	defaultBaseRetryDelay  = time.Minute
	purgeSchedule          = "@hourly"
)

// ErrPassInProgress is returned when a pass is skipped because another one is
// still running.
var ErrPassInProgress = errors.New("email processor: pass already in progress")

// ProcessorConfig tunes the background queue processor.
type ProcessorConfig struct {
	Enabled        bool
	Interval       time.Duration
	BatchSize      int
	BaseRetryDelay time.Duration
}

// ProcessorOption customises the EmailProcessor.
type ProcessorOption func(*EmailProcessor)

// WithProcessorCron injects a preconfigured cron instance, primarily for testing.
func WithProcessorCron(c *cron.Cron) ProcessorOption {
	return func(p *EmailProcessor) {
		if c != nil {
			p.cron = c
		}
	}
}

// WithProcessorClock overrides the clock used for backoff computation.
func WithProcessorClock(clock func() time.Time) ProcessorOption {
	return func(p *EmailProcessor) {
		if clock != nil {
			p.now = clock
		}
	}
}

// EmailProcessor periodically drains the email queue: it claims a bounded
// batch of due items, attempts delivery for each through the Mailer, and
// persists every item's outcome independently. A process-local reentrancy
// flag guarantees at most one pass at a time; running multiple processor
// instances against the same store is unsupported.
type EmailProcessor struct {
	db            *gorm.DB
	mailer        mail.Mailer
	verifications *VerificationService
	cfg           ProcessorConfig
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger

	running    atomic.Bool
	processing atomic.Bool
}

// NewEmailProcessor constructs a processor. The verification service is
// optional; when present its expired-token purge is scheduled hourly.
func NewEmailProcessor(db *gorm.DB, mailer mail.Mailer, verifications *VerificationService, cfg ProcessorConfig, opts ...ProcessorOption) (*EmailProcessor, error) {
	if db == nil {
		return nil, errors.New("email processor: db is required")
	}
	if mailer == nil {
		return nil, errors.New("email processor: mailer is required")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaultProcessInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = defaultBaseRetryDelay
	}

	processor := &EmailProcessor{
		db:            db,
		mailer:        mailer,
		verifications: verifications,
		cfg:           cfg,
		now:           time.Now,
		log:           logger.WithModule("email-processor"),
	}

	for _, opt := range opts {
		opt(processor)
	}

	if processor.cron == nil {
		processor.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if err := processor.scheduleJobs(); err != nil {
		return nil, err
	}

	return processor, nil
}

// scheduleJobs registers the queue sweep and token purge exactly once. The
// cron entries survive Stop/Start cycles; only the scheduler is paused.
func (p *EmailProcessor) scheduleJobs() error {
	var errs error

	spec := fmt.Sprintf("@every %s", p.cfg.Interval)
	if _, err := p.cron.AddFunc(spec, func() {
		if _, err := p.ProcessNow(context.Background()); err != nil && !errors.Is(err, ErrPassInProgress) {
			p.log.Warn("queue pass failed", zap.Error(err))
		}
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("email processor: schedule queue sweep: %w", err))
	}

	if p.verifications != nil {
		if _, err := p.cron.AddFunc(purgeSchedule, func() {
			if _, err := p.verifications.PurgeExpired(context.Background()); err != nil {
				p.log.Warn("token purge failed", zap.Error(err))
			}
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("email processor: schedule token purge: %w", err))
		}
	}

	return errs
}

// Start runs one pass immediately, then resumes the scheduler driving the
// repeating sweep and the hourly expired-token purge. It is a no-op when
// background processing is disabled or the processor is already running.
func (p *EmailProcessor) Start() error {
	if !p.cfg.Enabled {
		p.log.Info("background email processing disabled")
		return nil
	}
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}

	go func() {
		if _, err := p.ProcessNow(context.Background()); err != nil && !errors.Is(err, ErrPassInProgress) {
			p.log.Warn("initial queue pass failed", zap.Error(err))
		}
	}()

	p.cron.Start()
	p.log.Info("email processor started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("batch_size", p.cfg.BatchSize))
	return nil
}

// Stop cancels future scheduled passes. A pass already in progress is allowed
// to finish.
func (p *EmailProcessor) Stop() context.Context {
	p.running.Store(false)
	if p.cron == nil {
		return context.Background()
	}
	return p.cron.Stop()
}

// PassResult summarises one claim-and-attempt cycle.
type PassResult struct {
	Claimed   int `json:"claimed"`
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Exhausted int `json:"exhausted"`
}

// ProcessNow executes one pass out-of-band, subject to the same reentrancy
// guard as scheduled passes. When a pass is already running it returns
// ErrPassInProgress without queuing another.
func (p *EmailProcessor) ProcessNow(ctx context.Context) (PassResult, error) {
	if !p.processing.CompareAndSwap(false, true) {
		return PassResult{}, ErrPassInProgress
	}
	defer p.processing.Store(false)

	return p.runPass(ensureContext(ctx))
}

func (p *EmailProcessor) runPass(ctx context.Context) (PassResult, error) {
	var result PassResult
	now := p.now()

	var batch []models.QueuedEmail
	if err := p.db.WithContext(ctx).
		Where("status = ? AND attempts < max_attempts AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
			models.EmailStatusPending, now).
		Order("priority ASC, created_at ASC").
		Limit(p.cfg.BatchSize).
		Find(&batch).Error; err != nil {
		p.log.Error("claim batch failed", zap.Error(err))
		return result, fmt.Errorf("email processor: claim batch: %w", err)
	}
	result.Claimed = len(batch)

	for i := range batch {
		item := &batch[i]

		started := p.now()
		receipt, sendErr := p.mailer.Send(ctx, mail.Message{
			To:       []string{item.ToAddress},
			ToName:   item.ToName,
			Subject:  item.Subject,
			HTMLBody: item.HTMLBody,
			TextBody: item.TextBody,
		})
		elapsed := p.now().Sub(started)

		var persistErr error
		if sendErr == nil {
			persistErr = p.markSent(ctx, item, receipt, elapsed)
			if persistErr == nil {
				result.Sent++
				metrics.EmailsProcessed.WithLabelValues("sent").Inc()
			}
		} else {
			var exhausted bool
			exhausted, persistErr = p.markFailed(ctx, item, sendErr)
			if persistErr == nil {
				if exhausted {
					result.Exhausted++
					metrics.EmailsProcessed.WithLabelValues("exhausted").Inc()
				} else {
					result.Retried++
					metrics.EmailsProcessed.WithLabelValues("retried").Inc()
				}
			}
		}

		// A store failure ends the pass early; unprocessed claimed items were
		// never marked and will simply be reclaimed on the next tick.
		if persistErr != nil {
			p.log.Error("persist outcome failed", zap.String("id", item.ID), zap.Error(persistErr))
			p.updateQueueDepth(ctx)
			return result, fmt.Errorf("email processor: persist outcome: %w", persistErr)
		}
	}

	p.updateQueueDepth(ctx)

	if result.Claimed > 0 {
		p.log.Info("queue pass complete",
			zap.Int("claimed", result.Claimed),
			zap.Int("sent", result.Sent),
			zap.Int("retried", result.Retried),
			zap.Int("exhausted", result.Exhausted))
	}
	return result, nil
}

func (p *EmailProcessor) markSent(ctx context.Context, item *models.QueuedEmail, receipt mail.Receipt, elapsed time.Duration) error {
	now := p.now()
	return p.db.WithContext(ctx).
		Model(item).
		Updates(map[string]any{
			"status":              models.EmailStatusSent,
			"sent_at":             now,
			"next_attempt_at":     nil,
			"last_error":          "",
			"provider_message_id": receipt.MessageID,
			"processing_ms":       elapsed.Milliseconds(),
		}).Error
}

func (p *EmailProcessor) markFailed(ctx context.Context, item *models.QueuedEmail, sendErr error) (exhausted bool, err error) {
	// Backoff doubles per attempt, counted before the increment: the first
	// failure waits one base delay, the second two, the third four.
	delay := p.cfg.BaseRetryDelay << uint(item.Attempts)

	attempts := item.Attempts + 1
	updates := map[string]any{
		"attempts":   attempts,
		"last_error": sendErr.Error(),
	}

	if attempts >= item.MaxAttempts {
		exhausted = true
		updates["status"] = models.EmailStatusFailed
		updates["next_attempt_at"] = nil
		p.log.Warn("email delivery exhausted",
			zap.String("id", item.ID),
			zap.Int("attempts", attempts),
			zap.Error(sendErr))
	} else {
		next := p.now().Add(delay)
		updates["next_attempt_at"] = next
		p.log.Debug("email delivery failed, retry scheduled",
			zap.String("id", item.ID),
			zap.Int("attempts", attempts),
			zap.Time("next_attempt_at", next))
	}

	return exhausted, p.db.WithContext(ctx).Model(item).Updates(updates).Error
}

func (p *EmailProcessor) updateQueueDepth(ctx context.Context) {
	var pending int64
	if err := p.db.WithContext(ctx).
		Model(&models.QueuedEmail{}).
		Where("status = ?", models.EmailStatusPending).
		Count(&pending).Error; err != nil {
		return
	}
	metrics.EmailQueueDepth.Set(float64(pending))
}

// ProcessorStatus is a read-only snapshot of the processor runtime state.
type ProcessorStatus struct {
	Running    bool  `json:"is_running"`
	Processing bool  `json:"is_processing"`
	IntervalMS int64 `json:"interval_ms"`
	Enabled    bool  `json:"enabled"`
}

// Status reports the current runtime state.
func (p *EmailProcessor) Status() ProcessorStatus {
	return ProcessorStatus{
		Running:    p.running.Load(),
		Processing: p.processing.Load(),
		IntervalMS: p.cfg.Interval.Milliseconds(),
		Enabled:    p.cfg.Enabled,
	}
}

// Health describes processor and transport health for monitoring.
type Health struct {
	SMTPReachable bool `json:"smtp_reachable"`
	Running       bool `json:"is_running"`
}

// HealthCheck composes transport connectivity with runtime state. It never
// returns an error; failures degrade to a negative result.
func (p *EmailProcessor) HealthCheck(ctx context.Context) Health {
	health := Health{Running: p.running.Load()}
	if err := p.mailer.Verify(ensureContext(ctx)); err == nil {
		health.SMTPReachable = true
	}
	return health
}
