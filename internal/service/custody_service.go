package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetdesk/custody-api/internal/dto"
	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/internal/repository"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
)

type custodyStore interface {
	Create(ctx context.Context, tx *models.CustodyTransaction) error
	GetByID(ctx context.Context, id string) (*models.CustodyTransaction, error)
	List(ctx context.Context, filter models.CustodyFilter) ([]models.CustodyTransaction, int, error)
	UpdateTransition(ctx context.Context, tx *models.CustodyTransaction, expectedUpdatedAt time.Time) error
	Delete(ctx context.Context, id string) (bool, error)
	GetStats(ctx context.Context, from, to time.Time) (*models.CustodyStats, error)
}

type documentStore interface {
	Create(ctx context.Context, doc *models.CustodyDocument) error
	ListByCustody(ctx context.Context, custodyID string) ([]models.CustodyDocument, error)
}

type approvalDecider interface {
	OpenSlots(ctx context.Context, custodyID string) error
	Decide(ctx context.Context, custodyID, approverID string, status models.ApprovalStatus, notes *string) error
	IsSatisfied(ctx context.Context, custodyID string) (bool, error)
	PendingApproversFor(ctx context.Context, custodyID string) ([]string, error)
	Approvals(ctx context.Context, custodyID string) ([]models.Approval, error)
	Roster() []string
}

type slaTargetSource interface {
	Targets(reason models.ReasonCode, submittedAt time.Time) (approveBy, handoverBy time.Time)
}

type eventDispatcher interface {
	Dispatch(ctx context.Context, tx *models.CustodyTransaction, event models.EventType, metadata map[string]interface{}, recipients []string) error
}

type statsCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CustodyService owns the custody transaction state machine: it enforces
// legal transitions, stamps SLA targets and audit fields, and hands
// committed transitions to the dispatcher.
type CustodyService struct {
	repo       custodyStore
	docs       documentStore
	gate       approvalDecider
	sla        slaTargetSource
	dispatcher eventDispatcher
	cache      statsCache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewCustodyService constructs the service.
func NewCustodyService(
	repo custodyStore,
	docs documentStore,
	gate approvalDecider,
	sla slaTargetSource,
	dispatcher eventDispatcher,
	cache statsCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *CustodyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustodyService{
		repo:       repo,
		docs:       docs,
		gate:       gate,
		sla:        sla,
		dispatcher: dispatcher,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Create opens a draft transaction after validating the required linkage.
func (s *CustodyService) Create(ctx context.Context, req dto.CreateCustodyRequest, actorID string) (*models.CustodyTransaction, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	ratePolicy := req.RatePolicy
	if ratePolicy == "" {
		ratePolicy = models.RateInherit
	}

	tx := &models.CustodyTransaction{
		AgreementID:        strings.TrimSpace(req.AgreementID),
		AgreementLineID:    req.AgreementLineID,
		CustomerID:         strings.TrimSpace(req.CustomerID),
		BranchCode:         strings.TrimSpace(req.BranchCode),
		OriginalVehicleID:  strings.TrimSpace(req.OriginalVehicleID),
		CustodianName:      strings.TrimSpace(req.CustodianName),
		CustodianType:      req.CustodianType,
		ReasonCode:         req.ReasonCode,
		IncidentNarrative:  req.IncidentNarrative,
		IncidentDate:       req.IncidentDate,
		EffectiveFrom:      req.EffectiveFrom,
		ExpectedReturnDate: req.ExpectedReturnDate,
		RatePolicy:         ratePolicy,
		SpecialRateCode:    req.SpecialRateCode,
		Status:             models.CustodyStatusDraft,
		Notes:              req.Notes,
		CreatedBy:          actorID,
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create custody transaction")
	}
	return tx, nil
}

// Submit moves a draft into pending approval: approval slots open first,
// SLA targets are stamped exactly once, and the submitted event fires.
// Slots are created before the status write so a slot failure leaves the
// draft untouched instead of stranding it pending with no approvers.
func (s *CustodyService) Submit(ctx context.Context, id, actorID string) (*models.CustodyTransaction, error) {
	if len(s.gate.Roster()) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPrecondition, "no approvers configured")
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.CustodyStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot submit a %s transaction", current.Status))
	}
	if err := s.gate.OpenSlots(ctx, id); err != nil {
		return nil, err
	}

	tx, err := s.transition(ctx, id, func(tx *models.CustodyTransaction) error {
		if tx.Status != models.CustodyStatusDraft {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot submit a %s transaction", tx.Status))
		}
		if tx.SLATargetApproveBy == nil {
			approveBy, handoverBy := s.sla.Targets(tx.ReasonCode, time.Now().UTC())
			tx.SLATargetApproveBy = &approveBy
			tx.SLATargetHandoverBy = &handoverBy
		}
		tx.Status = models.CustodyStatusPendingApproval
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, tx, models.EventSubmitted, map[string]interface{}{"actor": actorID})
	return tx, nil
}

// Approve records one approver's consent; the transaction reaches APPROVED
// only once the gate reports unanimity.
func (s *CustodyService) Approve(ctx context.Context, id, approverID, notes string) (*models.CustodyTransaction, error) {
	tx, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.CustodyStatusPendingApproval {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot approve a %s transaction", tx.Status))
	}

	if err := s.gate.Decide(ctx, tx.ID, approverID, models.ApprovalStatusApproved, optional(notes)); err != nil {
		return nil, err
	}

	satisfied, err := s.gate.IsSatisfied(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if !satisfied {
		return s.load(ctx, id)
	}

	tx, err = s.transition(ctx, id, func(tx *models.CustodyTransaction) error {
		if tx.Status != models.CustodyStatusPendingApproval {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot approve a %s transaction", tx.Status))
		}
		now := time.Now().UTC()
		tx.Status = models.CustodyStatusApproved
		tx.ApprovedBy = &approverID
		tx.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, tx, models.EventApproved, map[string]interface{}{"approver": approverID})
	return tx, nil
}

// Reject vetoes a pending transaction. A single rejection voids the whole
// transaction regardless of other approvers.
func (s *CustodyService) Reject(ctx context.Context, id, approverID, reason string) (*models.CustodyTransaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	tx, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.CustodyStatusPendingApproval {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot reject a %s transaction", tx.Status))
	}

	if err := s.gate.Decide(ctx, tx.ID, approverID, models.ApprovalStatusRejected, &reason); err != nil {
		return nil, err
	}

	tx, err = s.transition(ctx, id, func(tx *models.CustodyTransaction) error {
		if tx.Status != models.CustodyStatusPendingApproval {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot reject a %s transaction", tx.Status))
		}
		tx.Status = models.CustodyStatusVoided
		appendNote(tx, "rejected: "+reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, tx, models.EventRejected, map[string]interface{}{"approver": approverID, "reason": reason})
	return tx, nil
}

// Activate hands the replacement vehicle over. The replacement must be
// assigned before the transaction can go active.
func (s *CustodyService) Activate(ctx context.Context, id, actorID, replacementVehicleID string) (*models.CustodyTransaction, error) {
	tx, err := s.transition(ctx, id, func(tx *models.CustodyTransaction) error {
		if tx.Status != models.CustodyStatusApproved {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot activate a %s transaction", tx.Status))
		}
		if replacementVehicleID != "" {
			tx.ReplacementVehicleID = &replacementVehicleID
		}
		if tx.ReplacementVehicleID == nil || *tx.ReplacementVehicleID == "" {
			return appErrors.Clone(appErrors.ErrPrecondition, "replacement vehicle is not assigned")
		}
		tx.Status = models.CustodyStatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, tx, models.EventHandover, map[string]interface{}{"actor": actorID})
	return tx, nil
}

// RecordReturn notes the physical return of the replacement vehicle without
// closing the transaction; closure is a separate, audited step.
func (s *CustodyService) RecordReturn(ctx context.Context, id string, actualReturn time.Time, notes string) (*models.CustodyTransaction, error) {
	return s.transition(ctx, id, func(tx *models.CustodyTransaction) error {
		if tx.Status != models.CustodyStatusActive {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot record a return on a %s transaction", tx.Status))
		}
		if actualReturn.Before(tx.EffectiveFrom) {
			return appErrors.Clone(appErrors.ErrValidation, "actual return date precedes effective-from")
		}
		returned := actualReturn.UTC()
		tx.ActualReturnDate = &returned
		if notes != "" {
			appendNote(tx, notes)
		}
		return nil
	})
}

// Close finalises an active transaction.
func (s *CustodyService) Close(ctx context.Context, id, closerID, notes string) (*models.CustodyTransaction, error) {
	tx, err := s.close(ctx, id, closerID, notes)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, tx, models.EventClosed, map[string]interface{}{"closer": closerID})
	return tx, nil
}

// AutoClose force-closes an abandoned transaction on behalf of the
// scheduler's system actor.
func (s *CustodyService) AutoClose(ctx context.Context, id, systemActor, reason string) (*models.CustodyTransaction, error) {
	tx, err := s.close(ctx, id, systemActor, reason)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, tx, models.EventAutoClosed, map[string]interface{}{"actor": systemActor, "reason": reason})
	return tx, nil
}

func (s *CustodyService) close(ctx context.Context, id, closerID, notes string) (*models.CustodyTransaction, error) {
	return s.transition(ctx, id, func(tx *models.CustodyTransaction) error {
		if tx.Status != models.CustodyStatusActive {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot close a %s transaction", tx.Status))
		}
		now := time.Now().UTC()
		tx.Status = models.CustodyStatusClosed
		tx.ClosedBy = &closerID
		tx.ClosedAt = &now
		if notes != "" {
			appendNote(tx, notes)
		}
		return nil
	})
}

// Void administratively cancels any non-terminal transaction.
func (s *CustodyService) Void(ctx context.Context, id, reason, actorID string) (*models.CustodyTransaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "void reason is required")
	}
	tx, err := s.transition(ctx, id, func(tx *models.CustodyTransaction) error {
		if tx.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot void a %s transaction", tx.Status))
		}
		tx.Status = models.CustodyStatusVoided
		appendNote(tx, "voided: "+reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, tx, models.EventVoided, map[string]interface{}{"actor": actorID, "reason": reason})
	return tx, nil
}

// Delete removes a draft. Anything past draft has an audit trail to
// preserve and is immutable.
func (s *CustodyService) Delete(ctx context.Context, id string) error {
	tx, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if tx.Status != models.CustodyStatusDraft {
		return appErrors.Clone(appErrors.ErrImmutableState,
			fmt.Sprintf("cannot delete a %s transaction", tx.Status))
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete custody transaction")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrImmutableState, "transaction left draft before deletion")
	}
	return nil
}

// Get returns the aggregate with its approvals and documents.
func (s *CustodyService) Get(ctx context.Context, id string) (*dto.CustodyDetail, error) {
	tx, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	approvals, err := s.gate.Approvals(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByCustody(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	return &dto.CustodyDetail{Transaction: tx, Approvals: approvals, Documents: docs}, nil
}

// List returns transactions matching the filter plus pagination metadata.
func (s *CustodyService) List(ctx context.Context, filter models.CustodyFilter) ([]models.CustodyTransaction, *models.Pagination, error) {
	txs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list custody transactions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return txs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// AttachDocument links paperwork to a non-terminal transaction.
func (s *CustodyService) AttachDocument(ctx context.Context, custodyID string, req dto.AttachDocumentRequest) (*models.CustodyDocument, error) {
	tx, err := s.load(ctx, custodyID)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrImmutableState, "cannot attach documents to a finalised transaction")
	}
	doc := &models.CustodyDocument{
		CustodyID: custodyID,
		DocType:   req.DocType,
		Reference: req.Reference,
		IssuedAt:  req.IssuedAt,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach document")
	}
	return doc, nil
}

// Documents lists paperwork attached to a transaction.
func (s *CustodyService) Documents(ctx context.Context, custodyID string) ([]models.CustodyDocument, error) {
	docs, err := s.docs.ListByCustody(ctx, custodyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// Stats aggregates workflow counters over a period, cached briefly to keep
// dashboard refreshes off the database.
func (s *CustodyService) Stats(ctx context.Context, from, to time.Time) (*models.CustodyStats, error) {
	key := fmt.Sprintf("custody:stats:%d:%d", from.Unix(), to.Unix())
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var stats models.CustodyStats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
		}
	}
	stats, err := s.repo.GetStats(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate statistics")
	}
	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			_ = s.cache.Set(ctx, key, string(raw), s.cacheTTL)
		}
	}
	return stats, nil
}

// transition runs read-mutate-write under the optimistic concurrency guard,
// retrying once on conflict before surfacing it.
func (s *CustodyService) transition(ctx context.Context, id string, mutate func(*models.CustodyTransaction) error) (*models.CustodyTransaction, error) {
	for attempt := 0; attempt < 2; attempt++ {
		tx, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := tx.UpdatedAt
		if err := mutate(tx); err != nil {
			return nil, err
		}
		tx.UpdatedAt = time.Now().UTC()
		err = s.repo.UpdateTransition(ctx, tx, expected)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist transition")
		}
	}
	return nil, appErrors.ErrConcurrentModification
}

func (s *CustodyService) load(ctx context.Context, id string) (*models.CustodyTransaction, error) {
	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load custody transaction")
	}
	return tx, nil
}

// dispatch hands the committed transition to the integration dispatcher.
// Failures must never roll the transition back; they are logged and left
// for the retry sweep.
func (s *CustodyService) dispatch(ctx context.Context, tx *models.CustodyTransaction, event models.EventType, metadata map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, tx, event, metadata, nil); err != nil {
		s.logger.Warn("post-transition dispatch failed",
			zap.String("custody_id", tx.ID),
			zap.String("event", string(event)),
			zap.Error(err))
	}
}

func validateCreate(req dto.CreateCustodyRequest) error {
	missing := make([]string, 0, 6)
	if strings.TrimSpace(req.AgreementID) == "" {
		missing = append(missing, "agreementId")
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		missing = append(missing, "customerId")
	}
	if strings.TrimSpace(req.OriginalVehicleID) == "" {
		missing = append(missing, "originalVehicleId")
	}
	if req.IncidentDate.IsZero() {
		missing = append(missing, "incidentDate")
	}
	if req.EffectiveFrom.IsZero() {
		missing = append(missing, "effectiveFrom")
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "missing required fields: "+strings.Join(missing, ", "))
	}
	if !req.ReasonCode.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown reason code: %s", req.ReasonCode))
	}
	if !req.CustodianType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown custodian type: %s", req.CustodianType))
	}
	if req.RatePolicy != "" && !req.RatePolicy.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown rate policy: %s", req.RatePolicy))
	}
	if req.RatePolicy == models.RateSpecialCode && (req.SpecialRateCode == nil || *req.SpecialRateCode == "") {
		return appErrors.Clone(appErrors.ErrValidation, "specialRateCode is required for SPECIAL_CODE rate policy")
	}
	return nil
}

func appendNote(tx *models.CustodyTransaction, note string) {
	if tx.Notes == nil || *tx.Notes == "" {
		tx.Notes = &note
		return
	}
	combined := *tx.Notes + "\n" + note
	tx.Notes = &combined
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
