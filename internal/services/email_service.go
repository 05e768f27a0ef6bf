package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/mailtpl"
	"github.com/resonatefm/resonate/internal/models"
	"github.com/resonatefm/resonate/pkg/logger"
	"github.com/resonatefm/resonate/pkg/mail"
)

const (
	defaultQueueMaxAttempts  = 3
	verificationPriority     = 1
	verificationPathTemplate = "%s/verify-email?token=%s"
)

// EmailOption customises the EmailService.
type EmailOption func(*EmailService)

// WithEmailBaseURL sets the base URL used when building verification links.
func WithEmailBaseURL(url string) EmailOption {
	return func(s *EmailService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithEmailMaxAttempts overrides the default delivery attempt cap for new items.
func WithEmailMaxAttempts(n int) EmailOption {
	return func(s *EmailService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithEmailClock injects a custom time source.
func WithEmailClock(clock func() time.Time) EmailOption {
	return func(s *EmailService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// EmailService owns the outbound email queue: producers enqueue through it,
// and it exposes the direct-send and connectivity paths of the underlying
// transport. Delivery of queued items is the EmailProcessor's job.
type EmailService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	maxAttempts int
	now         func() time.Time
	log         *zap.Logger
}

// NewEmailService constructs an EmailService with the provided dependencies.
func NewEmailService(db *gorm.DB, mailer mail.Mailer, opts ...EmailOption) (*EmailService, error) {
	if db == nil {
		return nil, errors.New("email service: db is required")
	}

	service := &EmailService{
		db:          db,
		mailer:      mailer,
		maxAttempts: defaultQueueMaxAttempts,
		now:         time.Now,
		log:         logger.WithModule("email"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// EnqueueEmailInput describes a new queue item.
type EnqueueEmailInput struct {
	ToAddress    string
	ToName       string
	Subject      string
	HTMLBody     string
	TextBody     string
	EmailType    string
	TemplateData map[string]any
	Priority     int // 0 means the default priority
	MaxAttempts  int // 0 means the configured default
	UserID       *string
	RelatedType  string
	RelatedID    string
}

// Enqueue persists a new queued email and returns its generated id. Store
// failures propagate to the caller; producers must know when the write failed.
func (s *EmailService) Enqueue(ctx context.Context, input EnqueueEmailInput) (string, error) {
	ctx = ensureContext(ctx)

	to := strings.TrimSpace(strings.ToLower(input.ToAddress))
	if to == "" {
		return "", errors.New("email service: recipient address is required")
	}
	if strings.TrimSpace(input.Subject) == "" {
		return "", errors.New("email service: subject is required")
	}

	priority := input.Priority
	if priority <= 0 {
		priority = models.DefaultEmailPriority
	}
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	item := models.QueuedEmail{
		ToAddress:   to,
		ToName:      strings.TrimSpace(input.ToName),
		Subject:     input.Subject,
		HTMLBody:    input.HTMLBody,
		TextBody:    input.TextBody,
		EmailType:   input.EmailType,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Status:      models.EmailStatusPending,
		UserID:      input.UserID,
		RelatedType: input.RelatedType,
		RelatedID:   input.RelatedID,
	}

	if input.TemplateData != nil {
		data, err := json.Marshal(input.TemplateData)
		if err != nil {
			return "", fmt.Errorf("email service: marshal template data: %w", err)
		}
		item.TemplateData = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return "", fmt.Errorf("email service: enqueue: %w", err)
	}

	s.log.Debug("email enqueued",
		zap.String("id", item.ID),
		zap.String("type", item.EmailType),
		zap.Int("priority", item.Priority))

	return item.ID, nil
}

// EnqueueVerificationEmail renders the verification template and queues it at
// high priority for the given user and token.
func (s *EmailService) EnqueueVerificationEmail(ctx context.Context, user *models.User, token string) (string, error) {
	if user == nil {
		return "", errors.New("email service: user is required")
	}

	link := s.VerificationLink(token)
	rendered, err := mailtpl.RenderVerification(user.FirstName, link)
	if err != nil {
		return "", fmt.Errorf("email service: %w", err)
	}

	return s.Enqueue(ctx, EnqueueEmailInput{
		ToAddress: user.Email,
		ToName:    strings.TrimSpace(user.FirstName + " " + user.LastName),
		Subject:   rendered.Subject,
		HTMLBody:  rendered.HTMLBody,
		TextBody:  rendered.TextBody,
		EmailType: models.EmailTypeVerification,
		TemplateData: map[string]any{
			"first_name":       user.FirstName,
			"verification_url": link,
		},
		Priority:    verificationPriority,
		UserID:      &user.ID,
		RelatedType: "user",
		RelatedID:   user.ID,
	})
}

// VerificationLink builds the browser-facing redemption URL for a token.
func (s *EmailService) VerificationLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf(verificationPathTemplate, s.baseURL, token)
}

// SendDirect bypasses the queue and attempts immediate delivery. Callers
// treat email as best-effort, so failures are reported as false, not errors.
func (s *EmailService) SendDirect(ctx context.Context, msg mail.Message) bool {
	if s.mailer == nil {
		return false
	}
	if _, err := s.mailer.Send(ensureContext(ctx), msg); err != nil {
		if !errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Warn("direct send failed", zap.Error(err))
		}
		return false
	}
	return true
}

// VerifyConnection checks transport reachability. It never returns an error;
// failures are reported as false for use in health checks.
func (s *EmailService) VerifyConnection(ctx context.Context) bool {
	if s.mailer == nil {
		return false
	}
	if err := s.mailer.Verify(ensureContext(ctx)); err != nil {
		if !errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Debug("smtp verification failed", zap.Error(err))
		}
		return false
	}
	return true
}

// QueueStats aggregates queue item counts by status.
type QueueStats struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	DueNow  int64 `json:"due_now"`
	Total   int64 `json:"total"`
}

// Stats reports queue composition for operators and monitoring.
func (s *EmailService) Stats(ctx context.Context) (QueueStats, error) {
	ctx = ensureContext(ctx)

	var stats QueueStats
	rows := []struct {
		Status string
		Count  int64
	}{}

	if err := s.db.WithContext(ctx).
		Model(&models.QueuedEmail{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return QueueStats{}, fmt.Errorf("email service: queue stats: %w", err)
	}

	for _, row := range rows {
		switch row.Status {
		case models.EmailStatusPending:
			stats.Pending = row.Count
		case models.EmailStatusSent:
			stats.Sent = row.Count
		case models.EmailStatusFailed:
			stats.Failed = row.Count
		}
		stats.Total += row.Count
	}

	now := s.now()
	if err := s.db.WithContext(ctx).
		Model(&models.QueuedEmail{}).
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", models.EmailStatusPending, now).
		Count(&stats.DueNow).Error; err != nil {
		return QueueStats{}, fmt.Errorf("email service: due count: %w", err)
	}

	return stats, nil
}
