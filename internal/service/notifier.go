package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/pkg/config"
	"github.com/fleetdesk/custody-api/pkg/jobs"
)

// NotificationSender delivers one notification to a recipient. The physical
// transport (email, SMS) is an external collaborator behind this boundary.
type NotificationSender interface {
	Send(ctx context.Context, notification models.Notification) error
}

// LogNotificationSender records deliveries in the structured log. It stands
// in until a real transport is wired, and doubles as the dev-mode sender.
type LogNotificationSender struct {
	logger *zap.Logger
}

// NewLogNotificationSender constructs the sender.
func NewLogNotificationSender(logger *zap.Logger) *LogNotificationSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationSender{logger: logger}
}

// Send implements NotificationSender.
func (s *LogNotificationSender) Send(_ context.Context, n models.Notification) error {
	s.logger.Info("notification",
		zap.String("recipient", n.Recipient),
		zap.String("event", string(n.EventType)),
		zap.String("custody_no", n.CustodyNo),
	)
	return nil
}

// NewNotificationQueue builds the async delivery queue: the dispatcher
// enqueues, workers hand off to the sender.
func NewNotificationQueue(sender NotificationSender, cfg config.NotificationsConfig, logger *zap.Logger) *jobs.Queue {
	handler := func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(models.Notification)
		if !ok {
			return fmt.Errorf("unexpected notification payload type %T", job.Payload)
		}
		return sender.Send(ctx, notification)
	}
	return jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.QueueWorkers,
		BufferSize: cfg.QueueSize,
		Logger:     logger,
	})
}
