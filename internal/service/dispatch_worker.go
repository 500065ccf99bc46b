package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jobalert/notifier/internal/dedup"
	"github.com/jobalert/notifier/internal/domain"
	"github.com/jobalert/notifier/internal/format"
	"github.com/jobalert/notifier/internal/listings"
	"github.com/jobalert/notifier/internal/observability"
	"github.com/jobalert/notifier/internal/provider"
	"github.com/jobalert/notifier/internal/queue"
	"github.com/jobalert/notifier/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// DispatchWorker consumes the channel work queues and drives each envelope
// through the queued -> processing -> sent/failed lifecycle: optional
// job-listing enrichment, one gateway send, one terminal status write.
type DispatchWorker struct {
	statuses    repository.StatusRepository
	consumer    queue.Consumer
	gateway     provider.Gateway
	listings    listings.Provider
	guard       dedup.Guard
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewDispatchWorker(
	statuses repository.StatusRepository,
	consumer queue.Consumer,
	gateway provider.Gateway,
	listingsProvider listings.Provider,
	guard dedup.Guard,
	concurrency int,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if statuses == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("queue consumer is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("delivery gateway is required")
	}
	if listingsProvider == nil {
		return nil, fmt.Errorf("listings provider is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		statuses:    statuses,
		consumer:    consumer,
		gateway:     gateway,
		listings:    listingsProvider,
		guard:       guard,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (w *DispatchWorker) SetMetrics(metrics *observability.Metrics) {
	w.metrics = metrics
}

// Start consumes the channel work queues until context cancellation.
func (w *DispatchWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.processDelivery)
			if err != nil {
				w.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// processDelivery handles one queue delivery body. Returning nil acks the
// delivery, queue.ErrUnprocessable dead-letters it, and any other error
// requeues it; only status-store failures take the requeue path so a
// transient database outage cannot drop work.
func (w *DispatchWorker) processDelivery(ctx context.Context, body []byte) (err error) {
	messageID := ""
	channelName := ""

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing delivery",
				zap.String("messageId", messageID),
				zap.Any("panic", r),
			)
			if messageID != "" {
				w.markFailed(context.WithoutCancel(ctx), messageID, channelName, fmt.Sprintf("internal error: %v", r))
			}
			err = nil
		}
	}()

	env, parseErr := domain.ParseEnvelope(body)
	if parseErr != nil {
		if env == nil || strings.TrimSpace(env.MessageID) == "" {
			if id := domain.RecoverMessageID(body); id != "" {
				w.markFailed(ctx, id, "", parseErr.Error())
				return nil
			}
			w.logger.Error("discarding delivery without recoverable identity",
				zap.Error(parseErr),
			)
			return fmt.Errorf("%w: %v", queue.ErrUnprocessable, parseErr)
		}

		// Identity survived but the payload is invalid, e.g. an
		// unsupported type. Record the failure instead of sending.
		w.markFailed(ctx, env.MessageID, env.Type.String(), parseErr.Error())
		return nil
	}

	messageID = env.MessageID
	channelName = env.Type.String()

	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(channelName)
		defer w.metrics.DecWorkerInFlight(channelName)
	}

	if skip := w.duplicateDelivery(ctx, env); skip {
		return nil
	}

	if err := w.statuses.UpdateStatus(ctx, env.MessageID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}

	if env.JobSearch {
		w.enrich(ctx, env)
	}

	sendStart := w.now()
	result := w.deliver(ctx, env)
	if w.metrics != nil {
		w.metrics.ObserveNotificationSendDuration(channelName, w.now().Sub(sendStart))
	}

	if !result.Success {
		reason := strings.TrimSpace(result.Error)
		if reason == "" {
			reason = "delivery failed"
		}
		if err := w.statuses.UpdateStatus(ctx, env.MessageID, domain.StatusFailed, reason); err != nil {
			return fmt.Errorf("failed to mark message as failed: %w", err)
		}
		w.markDelivered(ctx, env.MessageID)
		if w.metrics != nil {
			w.metrics.IncNotificationFailed(channelName, "delivery_error")
		}
		w.logger.Warn("delivery failed",
			zap.String("messageId", env.MessageID),
			zap.String("channel", channelName),
			zap.String("error", reason),
		)
		return nil
	}

	if strings.TrimSpace(result.MessageID) != "" {
		if err := w.statuses.SetProviderMessageID(ctx, env.MessageID, result.MessageID); err != nil {
			w.logger.Warn("failed to record provider message id",
				zap.String("messageId", env.MessageID),
				zap.Error(err),
			)
		}
	}

	if err := w.statuses.UpdateStatus(ctx, env.MessageID, domain.StatusSent, ""); err != nil {
		return fmt.Errorf("failed to mark message as sent: %w", err)
	}
	w.markDelivered(ctx, env.MessageID)
	if w.metrics != nil {
		w.metrics.IncNotificationSent(channelName)
	}

	w.logger.Info("notification sent",
		zap.String("messageId", env.MessageID),
		zap.String("channel", channelName),
	)
	return nil
}

// enrich replaces the envelope message (and email subject) with a rendered
// job digest. Lookup failures degrade to the no-results rendering; the
// notification is still delivered.
func (w *DispatchWorker) enrich(ctx context.Context, env *domain.Envelope) {
	postings, err := w.listings.Search(ctx, env.JobTitle, env.JobLocation)
	if err != nil {
		w.logger.Warn("job listings lookup failed, sending empty digest",
			zap.String("messageId", env.MessageID),
			zap.String("query", env.JobTitle),
			zap.Error(err),
		)
		postings = nil
	}
	if len(postings) == 0 && w.metrics != nil {
		w.metrics.IncEnrichmentFallback(env.Type.String())
	}

	switch env.Type {
	case domain.ChannelEmail:
		rendered, renderErr := format.RenderEmail(postings, env.JobTitle)
		if renderErr != nil {
			w.logger.Warn("email digest rendering failed, sending plain fallback",
				zap.String("messageId", env.MessageID),
				zap.Error(renderErr),
			)
			rendered = format.NoJobsMessage(env.JobTitle)
		}
		env.Message = rendered
		env.Subject = format.EmailSubject(env.JobTitle)
	case domain.ChannelSMS:
		env.Message = format.RenderSMS(postings, env.JobTitle)
	}
}

func (w *DispatchWorker) deliver(ctx context.Context, env *domain.Envelope) provider.DeliveryResult {
	switch env.Type {
	case domain.ChannelEmail:
		return w.gateway.SendEmail(ctx, env.Recipient, env.Subject, env.Message)
	case domain.ChannelSMS:
		return w.gateway.SendSMS(ctx, env.Recipient, env.Message)
	default:
		return provider.Undelivered(fmt.Sprintf("unsupported notification type %q", env.Type))
	}
}

// duplicateDelivery reports whether this id already reached a terminal
// status in an earlier delivery. The check is read-only: an attempt that
// crashed before its terminal write left no mark, so the redelivered
// envelope is processed again. Guard failures are fail-open and the
// status store absorbs any resulting overwrite.
func (w *DispatchWorker) duplicateDelivery(ctx context.Context, env *domain.Envelope) bool {
	if w.guard == nil {
		return false
	}

	delivered, err := w.guard.AlreadyDelivered(ctx, env.MessageID)
	if err != nil {
		w.logger.Warn("dedup guard unavailable, processing anyway",
			zap.String("messageId", env.MessageID),
			zap.Error(err),
		)
		return false
	}
	if !delivered {
		return false
	}

	if w.metrics != nil {
		w.metrics.IncDuplicateSkipped(env.Type.String())
	}
	w.logger.Info("skipping duplicate delivery",
		zap.String("messageId", env.MessageID),
		zap.String("channel", env.Type.String()),
	)
	return true
}

// markDelivered records the id after its terminal status write, best
// effort. A lost mark only means a later duplicate gets reprocessed.
func (w *DispatchWorker) markDelivered(ctx context.Context, messageID string) {
	if w.guard == nil {
		return
	}
	if err := w.guard.MarkDelivered(ctx, messageID); err != nil {
		w.logger.Warn("failed to record delivery mark",
			zap.String("messageId", messageID),
			zap.Error(err),
		)
	}
}

func (w *DispatchWorker) markFailed(ctx context.Context, messageID string, channelName string, reason string) {
	if err := w.statuses.UpdateStatus(ctx, messageID, domain.StatusFailed, reason); err != nil {
		w.logger.Error("failed to record failed status",
			zap.String("messageId", messageID),
			zap.Error(err),
		)
		return
	}
	w.markDelivered(ctx, messageID)
	if w.metrics != nil {
		w.metrics.IncNotificationFailed(channelName, "invalid_envelope")
	}
}
