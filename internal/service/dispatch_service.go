package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/pkg/config"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
	"github.com/fleetdesk/custody-api/pkg/jobs"
)

// WebhookCaller performs one outbound partner call. Transport lives behind
// this boundary so tests and alternative clients can swap it.
type WebhookCaller interface {
	Call(ctx context.Context, endpoint string, payload []byte) (statusCode int, body string, err error)
}

// HTTPWebhookCaller posts JSON payloads with a hard per-call timeout, so one
// unresponsive partner cannot stall a reconciliation sweep.
type HTTPWebhookCaller struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPWebhookCaller constructs the default caller.
func NewHTTPWebhookCaller(timeout time.Duration) *HTTPWebhookCaller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPWebhookCaller{client: &http.Client{Timeout: timeout}, timeout: timeout}
}

// Call implements WebhookCaller.
func (c *HTTPWebhookCaller) Call(ctx context.Context, endpoint string, payload []byte) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("call webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, string(body), fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, string(body), nil
}

type webhookLogStore interface {
	Create(ctx context.Context, entry *models.WebhookLogEntry) error
}

type preferenceStore interface {
	IsEnabled(ctx context.Context, userID string, event models.EventType) (bool, error)
}

type pendingApproverSource interface {
	PendingApproversFor(ctx context.Context, custodyID string) ([]string, error)
}

type notificationEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type recipientRule func(ctx context.Context, tx *models.CustodyTransaction) ([]string, error)

type webhookRule struct {
	webhookType models.WebhookType
	enabled     bool
	endpoint    string
	matches     func(tx *models.CustodyTransaction) bool
}

type eventRoute struct {
	recipients recipientRule
	webhooks   []webhookRule
}

// DispatchService translates committed state transitions into notifications
// and partner webhooks. Routing is a registry keyed by event type; adding an
// event means adding a route, not editing a monolithic switch.
type DispatchService struct {
	routes  map[models.EventType]eventRoute
	prefs   preferenceStore
	log     webhookLogStore
	queue   notificationEnqueuer
	caller  WebhookCaller
	metrics *MetricsService
	logger  *zap.Logger
}

// NewDispatchService builds the routing table from integration config.
func NewDispatchService(
	prefs preferenceStore,
	log webhookLogStore,
	approvers pendingApproverSource,
	queue notificationEnqueuer,
	caller WebhookCaller,
	cfg config.IntegrationsConfig,
	escalation []string,
	metrics *MetricsService,
	logger *zap.Logger,
) *DispatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DispatchService{
		prefs:   prefs,
		log:     log,
		queue:   queue,
		caller:  caller,
		metrics: metrics,
		logger:  logger,
	}

	toCreator := func(_ context.Context, tx *models.CustodyTransaction) ([]string, error) {
		return []string{tx.CreatedBy}, nil
	}
	toCustomer := func(_ context.Context, tx *models.CustodyTransaction) ([]string, error) {
		return []string{tx.CustomerID}, nil
	}
	toCreatorAndCustomer := func(_ context.Context, tx *models.CustodyTransaction) ([]string, error) {
		return []string{tx.CreatedBy, tx.CustomerID}, nil
	}
	toEscalation := func(_ context.Context, _ *models.CustodyTransaction) ([]string, error) {
		return escalation, nil
	}
	toPendingApprovers := func(ctx context.Context, tx *models.CustodyTransaction) ([]string, error) {
		return approvers.PendingApproversFor(ctx, tx.ID)
	}

	always := func(*models.CustodyTransaction) bool { return true }
	fleetSync := webhookRule{
		webhookType: models.WebhookFleetSync,
		enabled:     cfg.Fleet.Enabled,
		endpoint:    cfg.Fleet.Endpoint,
		matches:     always,
	}
	billingInvoice := webhookRule{
		webhookType: models.WebhookBillingInvoice,
		enabled:     cfg.Billing.Enabled && cfg.BillingAutoInvoice,
		endpoint:    cfg.Billing.Endpoint,
		matches:     always,
	}
	claimsSubmit := webhookRule{
		webhookType: models.WebhookClaimsSubmit,
		enabled:     cfg.Claims.Enabled,
		endpoint:    cfg.Claims.Endpoint,
		matches: func(tx *models.CustodyTransaction) bool {
			return tx.ReasonCode == models.ReasonAccident
		},
	}

	s.routes = map[models.EventType]eventRoute{
		models.EventSubmitted:        {recipients: toPendingApprovers, webhooks: []webhookRule{claimsSubmit}},
		models.EventApproved:         {recipients: toCreator},
		models.EventRejected:         {recipients: toCreator},
		models.EventHandover:         {recipients: toCustomer, webhooks: []webhookRule{fleetSync}},
		models.EventClosed:           {recipients: toCreatorAndCustomer, webhooks: []webhookRule{fleetSync, billingInvoice}},
		models.EventVoided:           {recipients: toCreator},
		models.EventSLABreach:        {recipients: toEscalation},
		models.EventDocumentExpiring: {recipients: toCreator},
		models.EventDocumentExpired:  {recipients: toCreator},
		models.EventOverdueReminder:  {recipients: toCreatorAndCustomer},
		models.EventAutoClosed:       {recipients: toEscalation, webhooks: []webhookRule{fleetSync, billingInvoice}},
	}
	return s
}

// Dispatch fans one committed transition out to notifications and partner
// webhooks. It never fails the transition that triggered it: failures are
// logged and left for the scheduler's retry sweep.
func (s *DispatchService) Dispatch(ctx context.Context, tx *models.CustodyTransaction, event models.EventType, metadata map[string]interface{}, recipients []string) error {
	route, ok := s.routes[event]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown event type: %s", event))
	}

	var failures int

	resolved := recipients
	if len(resolved) == 0 && route.recipients != nil {
		var err error
		resolved, err = route.recipients(ctx, tx)
		if err != nil {
			s.logger.Warn("recipient resolution failed",
				zap.String("custody_id", tx.ID), zap.String("event", string(event)), zap.Error(err))
			failures++
			resolved = nil
		}
	}

	for _, recipient := range dedupe(resolved) {
		enabled, err := s.prefs.IsEnabled(ctx, recipient, event)
		if err != nil {
			s.logger.Warn("preference lookup failed", zap.String("recipient", recipient), zap.Error(err))
			enabled = true
		}
		if !enabled {
			continue
		}
		notification := models.Notification{
			Recipient: recipient,
			EventType: event,
			CustodyID: tx.ID,
			CustodyNo: tx.CustodyNo,
			Payload:   metadata,
		}
		if err := s.queue.Enqueue(jobs.Job{ID: tx.ID, Type: string(event), Payload: notification}); err != nil {
			s.logger.Warn("notification enqueue failed", zap.String("recipient", recipient), zap.Error(err))
			failures++
			continue
		}
		s.observe(event, "notification", true)
	}

	for _, rule := range route.webhooks {
		if !rule.enabled || !rule.matches(tx) {
			continue
		}
		if err := s.deliverWebhook(ctx, tx, event, rule.webhookType, rule.endpoint, metadata, 0); err != nil {
			failures++
		}
	}

	if failures > 0 {
		return appErrors.Clone(appErrors.ErrDispatchFailed, fmt.Sprintf("%d dispatch target(s) failed for event %s", failures, event))
	}
	return nil
}

// RetryWebhook re-attempts a failed delivery, appending a fresh log entry
// with an incremented retry count.
func (s *DispatchService) RetryWebhook(ctx context.Context, entry *models.WebhookLogEntry) error {
	attempt := &models.WebhookLogEntry{
		CustodyID:   entry.CustodyID,
		WebhookType: entry.WebhookType,
		EventType:   entry.EventType,
		Endpoint:    entry.Endpoint,
		Payload:     entry.Payload,
		RetryCount:  entry.RetryCount + 1,
	}
	s.observeRetry(entry.WebhookType)
	return s.attempt(ctx, attempt)
}

func (s *DispatchService) deliverWebhook(ctx context.Context, tx *models.CustodyTransaction, event models.EventType, webhookType models.WebhookType, endpoint string, metadata map[string]interface{}, retryCount int) error {
	payload, err := json.Marshal(map[string]interface{}{
		"custodyId":  tx.ID,
		"custodyNo":  tx.CustodyNo,
		"event":      event,
		"status":     tx.Status,
		"reasonCode": tx.ReasonCode,
		"metadata":   metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	entry := &models.WebhookLogEntry{
		CustodyID:   tx.ID,
		WebhookType: webhookType,
		EventType:   event,
		Endpoint:    endpoint,
		Payload:     payload,
		RetryCount:  retryCount,
	}
	return s.attempt(ctx, entry)
}

// attempt performs the call and appends the log entry, which is the sole
// durable evidence of delivery and the input to retry logic.
func (s *DispatchService) attempt(ctx context.Context, entry *models.WebhookLogEntry) error {
	statusCode, body, callErr := s.caller.Call(ctx, entry.Endpoint, entry.Payload)
	if statusCode != 0 {
		entry.StatusCode = &statusCode
	}
	if body != "" {
		entry.Response = &body
	}
	if callErr != nil {
		msg := callErr.Error()
		entry.ErrorMessage = &msg
		entry.Success = false
	} else {
		entry.Success = true
	}
	s.observe(entry.EventType, "webhook", entry.Success)

	if err := s.log.Create(ctx, entry); err != nil {
		s.logger.Error("webhook log write failed",
			zap.String("custody_id", entry.CustodyID),
			zap.String("webhook_type", string(entry.WebhookType)),
			zap.Error(err))
		return err
	}
	if callErr != nil {
		s.logger.Warn("webhook delivery failed",
			zap.String("custody_id", entry.CustodyID),
			zap.String("webhook_type", string(entry.WebhookType)),
			zap.Int("retry_count", entry.RetryCount),
			zap.Error(callErr))
		return callErr
	}
	return nil
}

func (s *DispatchService) observe(event models.EventType, channel string, success bool) {
	if s.metrics != nil {
		s.metrics.ObserveDispatch(string(event), channel, success)
	}
}

func (s *DispatchService) observeRetry(webhookType models.WebhookType) {
	if s.metrics != nil {
		s.metrics.ObserveWebhookRetry(string(webhookType))
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
