package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fleetdesk/custody-api/internal/dto"
	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/pkg/config"
)

const schedulerLockKey = "custody:scheduler:lock"

// Sweep task names, reported in the run summary.
const (
	TaskSLABreaches     = "sla_breach_detection"
	TaskDocumentExpiry  = "document_expiry"
	TaskOverdueReminder = "overdue_reminders"
	TaskWebhookRetry    = "webhook_retry"
	TaskAutoClose       = "auto_close"
)

type schedulerCustodyStore interface {
	ListOpen(ctx context.Context) ([]models.CustodyTransaction, error)
	ListActiveOverdue(ctx context.Context, asOf time.Time) ([]models.CustodyTransaction, error)
	MarkSLABreached(ctx context.Context, id string) (bool, error)
	MarkReminded(ctx context.Context, id string, asOf time.Time) (bool, error)
	GetByID(ctx context.Context, id string) (*models.CustodyTransaction, error)
}

type expiringDocumentStore interface {
	ListExpiringWithin(ctx context.Context, asOf time.Time, horizon time.Duration) ([]models.CustodyDocument, error)
	MarkNotified(ctx context.Context, id string, asOf time.Time) (bool, error)
}

type retryableWebhookStore interface {
	ListFailedRetryable(ctx context.Context, maxAge time.Duration, maxRetries int) ([]models.WebhookLogEntry, error)
}

type sweepDispatcher interface {
	Dispatch(ctx context.Context, tx *models.CustodyTransaction, event models.EventType, metadata map[string]interface{}, recipients []string) error
	RetryWebhook(ctx context.Context, entry *models.WebhookLogEntry) error
}

type autoCloser interface {
	AutoClose(ctx context.Context, id, systemActor, reason string) (*models.CustodyTransaction, error)
}

type breachPredicates interface {
	IsApproveBreached(tx *models.CustodyTransaction, now time.Time) bool
	IsHandoverBreached(tx *models.CustodyTransaction, now time.Time) bool
}

type runLock interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// SchedulerService reconciles open custody transactions on a fixed cadence.
// Its five sweeps are independent: they run concurrently, capture their own
// failures, and a broken sweep never suppresses its siblings.
type SchedulerService struct {
	custody    schedulerCustodyStore
	documents  expiringDocumentStore
	webhooks   retryableWebhookStore
	dispatcher sweepDispatcher
	closer     autoCloser
	sla        breachPredicates
	lock       runLock
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        config.SchedulerConfig

	mu      sync.Mutex
	running bool
}

// NewSchedulerService constructs the scheduler.
func NewSchedulerService(
	custody schedulerCustodyStore,
	documents expiringDocumentStore,
	webhooks retryableWebhookStore,
	dispatcher sweepDispatcher,
	closer autoCloser,
	sla breachPredicates,
	lock runLock,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg config.SchedulerConfig,
) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DocumentUrgentDays <= 0 {
		cfg.DocumentUrgentDays = 7
	}
	if cfg.ReminderStepDays <= 0 {
		cfg.ReminderStepDays = 7
	}
	if cfg.WebhookMaxRetries <= 0 {
		cfg.WebhookMaxRetries = 3
	}
	if cfg.SystemActor == "" {
		cfg.SystemActor = "system"
	}
	return &SchedulerService{
		custody:    custody,
		documents:  documents,
		webhooks:   webhooks,
		dispatcher: dispatcher,
		closer:     closer,
		sla:        sla,
		lock:       lock,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start runs the reconciliation loop until the context is cancelled.
func (s *SchedulerService) Start(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := s.Run(ctx)
				s.logger.Info("reconciliation run finished",
					zap.Bool("success", report.Success),
					zap.Bool("skipped", report.Skipped),
					zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
			}
		}
	}()
}

// Run executes all five sweeps once. It is idempotent and safe to invoke
// more often than necessary; overlapping invocations are skipped via a
// single-flight lease.
func (s *SchedulerService) Run(ctx context.Context) *dto.SchedulerReport {
	report := &dto.SchedulerReport{StartedAt: time.Now().UTC()}

	if !s.acquire(ctx) {
		report.Skipped = true
		report.Success = true
		report.FinishedAt = time.Now().UTC()
		return report
	}
	defer s.release(ctx)

	sweeps := []struct {
		task string
		fn   func(context.Context) (int, error)
	}{
		{TaskSLABreaches, s.sweepSLABreaches},
		{TaskDocumentExpiry, s.sweepDocumentExpiry},
		{TaskOverdueReminder, s.sweepOverdueReminders},
		{TaskWebhookRetry, s.sweepWebhookRetries},
		{TaskAutoClose, s.sweepAutoClose},
	}

	results := make([]dto.SweepResult, len(sweeps))
	var wg sync.WaitGroup
	for i, sweep := range sweeps {
		wg.Add(1)
		go func(i int, task string, fn func(context.Context) (int, error)) {
			defer wg.Done()
			results[i] = s.runSweep(ctx, task, fn)
		}(i, sweep.task, sweep.fn)
	}
	wg.Wait()

	report.Results = results
	report.Success = true
	for _, result := range results {
		if !result.Success {
			report.Success = false
		}
	}
	report.FinishedAt = time.Now().UTC()
	return report
}

// runSweep isolates one task: errors and panics are captured into its
// result and never propagate to sibling sweeps.
func (s *SchedulerService) runSweep(ctx context.Context, task string, fn func(context.Context) (int, error)) (result dto.SweepResult) {
	start := time.Now()
	result = dto.SweepResult{Task: task, Success: true}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		result.Duration = time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveSweep(task, result.Duration, result.Count, result.Success)
		}
		if !result.Success {
			s.logger.Error("sweep failed", zap.String("task", task), zap.String("error", result.Error))
		} else {
			s.logger.Debug("sweep completed", zap.String("task", task), zap.Int("count", result.Count))
		}
	}()

	count, err := fn(ctx)
	result.Count = count
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	return result
}

// sweepSLABreaches flips the monotonic breach flag and fires the breach
// dispatch for newly-breached transactions only.
func (s *SchedulerService) sweepSLABreaches(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	open, err := s.custody.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	var errs []error
	for i := range open {
		tx := &open[i]
		if tx.SLABreached {
			continue
		}
		approveBreach := s.sla.IsApproveBreached(tx, now)
		handoverBreach := s.sla.IsHandoverBreached(tx, now)
		if !approveBreach && !handoverBreach {
			continue
		}
		flipped, err := s.custody.MarkSLABreached(ctx, tx.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark breach %s: %w", tx.ID, err))
			continue
		}
		if !flipped {
			// Another run already recorded the breach; never re-fire.
			continue
		}
		tx.SLABreached = true
		count++
		target := "handover"
		if approveBreach {
			target = "approval"
		}
		if err := s.dispatcher.Dispatch(ctx, tx, models.EventSLABreach,
			map[string]interface{}{"target": target}, nil); err != nil {
			s.logger.Warn("sla breach dispatch failed", zap.String("custody_id", tx.ID), zap.Error(err))
		}
	}
	return count, errors.Join(errs...)
}

// sweepDocumentExpiry notifies on documents expired or within the urgent
// window on active custodies. The notification marker caps it at one
// notification per document per day however often the sweep runs.
func (s *SchedulerService) sweepDocumentExpiry(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	docs, err := s.documents.ListExpiringWithin(ctx, now, s.cfg.DocumentHorizon)
	if err != nil {
		return 0, err
	}
	urgentCutoff := now.Add(time.Duration(s.cfg.DocumentUrgentDays) * 24 * time.Hour)
	var count int
	var errs []error
	for _, doc := range docs {
		if doc.ExpiresAt == nil {
			continue
		}
		event := models.EventDocumentExpiring
		if doc.ExpiresAt.Before(now) {
			event = models.EventDocumentExpired
		} else if doc.ExpiresAt.After(urgentCutoff) {
			continue
		}
		flipped, err := s.documents.MarkNotified(ctx, doc.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark document notified %s: %w", doc.ID, err))
			continue
		}
		if !flipped {
			continue
		}
		tx, err := s.custody.GetByID(ctx, doc.CustodyID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load custody %s: %w", doc.CustodyID, err))
			continue
		}
		count++
		if err := s.dispatcher.Dispatch(ctx, tx, event, map[string]interface{}{
			"documentId": doc.ID,
			"docType":    doc.DocType,
			"reference":  doc.Reference,
			"expiresAt":  doc.ExpiresAt,
		}, nil); err != nil {
			s.logger.Warn("document expiry dispatch failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return count, errors.Join(errs...)
}

// sweepOverdueReminders fires a reminder at weekly multiples of days
// overdue. The reminder marker caps it at one reminder per transaction per
// day, so runs more frequent than daily never repeat a reminder.
func (s *SchedulerService) sweepOverdueReminders(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	overdue, err := s.custody.ListActiveOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	var count int
	var errs []error
	for i := range overdue {
		tx := &overdue[i]
		if tx.ExpectedReturnDate == nil {
			continue
		}
		daysOverdue := int(now.Sub(*tx.ExpectedReturnDate).Hours() / 24)
		if daysOverdue <= 0 || daysOverdue%s.cfg.ReminderStepDays != 0 {
			continue
		}
		flipped, err := s.custody.MarkReminded(ctx, tx.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark reminded %s: %w", tx.ID, err))
			continue
		}
		if !flipped {
			continue
		}
		count++
		if err := s.dispatcher.Dispatch(ctx, tx, models.EventOverdueReminder,
			map[string]interface{}{"daysOverdue": daysOverdue}, nil); err != nil {
			s.logger.Warn("overdue reminder dispatch failed", zap.String("custody_id", tx.ID), zap.Error(err))
		}
	}
	return count, errors.Join(errs...)
}

// sweepWebhookRetries re-attempts recent failed deliveries within the retry
// budget. A failed re-attempt is not a sweep failure; it is recorded in the
// log and picked up again next run.
func (s *SchedulerService) sweepWebhookRetries(ctx context.Context) (int, error) {
	entries, err := s.webhooks.ListFailedRetryable(ctx, s.cfg.WebhookMaxAge, s.cfg.WebhookMaxRetries)
	if err != nil {
		return 0, err
	}
	var count int
	for i := range entries {
		entry := &entries[i]
		count++
		if err := s.dispatcher.RetryWebhook(ctx, entry); err != nil {
			s.logger.Warn("webhook retry failed",
				zap.String("custody_id", entry.CustodyID),
				zap.String("webhook_type", string(entry.WebhookType)),
				zap.Int("retry_count", entry.RetryCount+1),
				zap.Error(err))
		}
	}
	return count, nil
}

// sweepAutoClose force-closes custodies abandoned past the hard threshold.
func (s *SchedulerService) sweepAutoClose(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	abandoned, err := s.custody.ListActiveOverdue(ctx, now.Add(-s.cfg.AutoCloseAfter))
	if err != nil {
		return 0, err
	}
	var count int
	var errs []error
	for i := range abandoned {
		tx := &abandoned[i]
		if tx.ExpectedReturnDate == nil {
			continue
		}
		daysOverdue := int(now.Sub(*tx.ExpectedReturnDate).Hours() / 24)
		reason := fmt.Sprintf("auto-closed after %d days overdue", daysOverdue)
		if _, err := s.closer.AutoClose(ctx, tx.ID, s.cfg.SystemActor, reason); err != nil {
			errs = append(errs, fmt.Errorf("auto-close %s: %w", tx.ID, err))
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}

// acquire takes both the in-process and the cross-instance single-flight
// guards. Without redis the in-process guard still applies.
func (s *SchedulerService) acquire(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	if s.lock == nil {
		return true
	}
	ok, err := s.lock.SetNX(ctx, schedulerLockKey, time.Now().UTC().Format(time.RFC3339), s.cfg.LockTTL)
	if err != nil {
		s.logger.Warn("scheduler lock unavailable, proceeding on in-process guard", zap.Error(err))
		return true
	}
	if !ok {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}
	return ok
}

func (s *SchedulerService) release(ctx context.Context) {
	if s.lock != nil {
		if err := s.lock.Del(ctx, schedulerLockKey); err != nil {
			s.logger.Warn("scheduler lock release failed", zap.Error(err))
		}
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
