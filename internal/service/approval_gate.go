package service

import (
	"context"

	"github.com/fleetdesk/custody-api/internal/models"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
)

type approvalStore interface {
	CreateSlots(ctx context.Context, custodyID string, approverIDs []string) error
	ListByCustody(ctx context.Context, custodyID string) ([]models.Approval, error)
	Decide(ctx context.Context, custodyID, approverID string, status models.ApprovalStatus, notes *string) (bool, error)
}

// ApprovalGate enforces the quorum rule on custody transactions. The rule is
// unanimous: every configured approver must approve, and any single
// rejection vetoes the transaction.
type ApprovalGate struct {
	approvals approvalStore
	roster    []string
}

// NewApprovalGate constructs the gate with the configured approver roster.
func NewApprovalGate(approvals approvalStore, roster []string) *ApprovalGate {
	return &ApprovalGate{approvals: approvals, roster: roster}
}

// Roster returns the configured approver ids.
func (g *ApprovalGate) Roster() []string {
	return g.roster
}

// OpenSlots creates one pending decision row per configured approver.
// Opening is idempotent: slots already present are left untouched, so a
// submission retried after a partial failure never duplicates them.
func (g *ApprovalGate) OpenSlots(ctx context.Context, custodyID string) error {
	if len(g.roster) == 0 {
		return appErrors.Clone(appErrors.ErrPrecondition, "no approvers configured")
	}
	existing, err := g.approvals.ListByCustody(ctx, custodyID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	if len(existing) > 0 {
		return nil
	}
	if err := g.approvals.CreateSlots(ctx, custodyID, g.roster); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval slots")
	}
	return nil
}

// Decide records one approver's verdict. Decisions are idempotent per
// approver: a second decision on the same transaction is rejected.
func (g *ApprovalGate) Decide(ctx context.Context, custodyID, approverID string, status models.ApprovalStatus, notes *string) error {
	slots, err := g.approvals.ListByCustody(ctx, custodyID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	found := false
	for _, slot := range slots {
		if slot.ApproverID == approverID {
			found = true
			if slot.Status != models.ApprovalStatusPending {
				return appErrors.ErrDuplicateDecision
			}
		}
	}
	if !found {
		return appErrors.Clone(appErrors.ErrForbidden, "not a configured approver for this transaction")
	}
	updated, err := g.approvals.Decide(ctx, custodyID, approverID, status, notes)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	if !updated {
		// Lost a race with the approver's own concurrent decision.
		return appErrors.ErrDuplicateDecision
	}
	return nil
}

// Approvals returns every decision slot for a transaction.
func (g *ApprovalGate) Approvals(ctx context.Context, custodyID string) ([]models.Approval, error) {
	slots, err := g.approvals.ListByCustody(ctx, custodyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	return slots, nil
}

// IsSatisfied reports whether every approver has approved.
func (g *ApprovalGate) IsSatisfied(ctx context.Context, custodyID string) (bool, error) {
	slots, err := g.approvals.ListByCustody(ctx, custodyID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	if len(slots) == 0 {
		return false, nil
	}
	for _, slot := range slots {
		if slot.Status != models.ApprovalStatusApproved {
			return false, nil
		}
	}
	return true, nil
}

// PendingApproversFor lists approvers who have not yet decided.
func (g *ApprovalGate) PendingApproversFor(ctx context.Context, custodyID string) ([]string, error) {
	slots, err := g.approvals.ListByCustody(ctx, custodyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	pending := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.Status == models.ApprovalStatusPending {
			pending = append(pending, slot.ApproverID)
		}
	}
	return pending, nil
}
