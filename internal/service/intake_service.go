package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jobalert/notifier/internal/domain"
	"github.com/jobalert/notifier/internal/observability"
	"github.com/jobalert/notifier/internal/queue"
	"github.com/jobalert/notifier/internal/repository"
	"go.uber.org/zap"
)

// IntakeService accepts notification requests, assigns them an identity,
// records the queued status, and hands them to the channel work queue.
type IntakeService struct {
	statuses  repository.StatusRepository
	publisher queue.Publisher
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time
}

// IntakeRequest is the transport-agnostic shape of one accepted request.
type IntakeRequest struct {
	Type        string
	Recipient   string
	Message     string
	Subject     string
	JobSearch   bool
	JobTitle    string
	JobLocation string
}

func NewIntakeService(
	statuses repository.StatusRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*IntakeService, error) {
	if statuses == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IntakeService{
		statuses:  statuses,
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

// Accept validates the request, persists a queued status record, and
// publishes the envelope to its channel queue. On publish failure the
// record is marked failed so the caller never sees a phantom queued id.
func (s *IntakeService) Accept(ctx context.Context, req IntakeRequest) (*domain.StatusRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	channel, err := domain.ParseChannelFromString(req.Type)
	if err != nil {
		return nil, err
	}

	env := domain.Envelope{
		MessageID:   s.newID(),
		Type:        channel,
		Recipient:   strings.TrimSpace(req.Recipient),
		Message:     strings.TrimSpace(req.Message),
		Subject:     strings.TrimSpace(req.Subject),
		JobSearch:   req.JobSearch,
		JobTitle:    strings.TrimSpace(req.JobTitle),
		JobLocation: strings.TrimSpace(req.JobLocation),
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	env.Normalize()

	now := s.now().UTC()
	record := &domain.StatusRecord{
		MessageID: env.MessageID,
		Status:    domain.StatusQueued,
		Type:      channel,
		Recipient: env.Recipient,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.statuses.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record queued status: %w", err)
	}

	if err := s.publisher.Publish(ctx, queue.QueueName(channel), env); err != nil {
		logger := observability.WithContextLogger(s.logger, ctx)
		logger.Error("failed to publish envelope",
			zap.String("messageId", env.MessageID),
			zap.String("channel", channel.String()),
			zap.Error(err),
		)
		if updateErr := s.statuses.UpdateStatus(ctx, env.MessageID, domain.StatusFailed, "failed to enqueue"); updateErr != nil {
			logger.Error("failed to mark message as failed after publish error",
				zap.String("messageId", env.MessageID),
				zap.Error(updateErr),
			)
		}
		return nil, fmt.Errorf("failed to publish envelope: %w", err)
	}

	return record, nil
}

// GetStatus returns the delivery status record for one message id.
func (s *IntakeService) GetStatus(ctx context.Context, messageID string) (*domain.StatusRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	id := strings.TrimSpace(messageID)
	if id == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}

	return s.statuses.GetByID(ctx, id)
}

// ListStatuses returns status records matching the filter, newest first.
func (s *IntakeService) ListStatuses(ctx context.Context, params repository.ListParams) ([]domain.StatusRecord, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.statuses.List(ctx, params)
}
