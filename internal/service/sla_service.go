package service

import (
	"time"

	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/pkg/config"
)

// SLACalculator derives approval and handover deadlines from transaction
// attributes. It is a pure function over its configuration: it never mutates
// transaction state; the scheduler applies breach mutations.
type SLACalculator struct {
	cfg config.SLAConfig
}

// NewSLACalculator constructs the calculator.
func NewSLACalculator(cfg config.SLAConfig) *SLACalculator {
	return &SLACalculator{cfg: cfg}
}

// Targets returns the two deadlines stamped when a transaction enters
// pending approval. Windows are keyed by reason code; accidents get a
// tighter window than scheduled maintenance.
func (c *SLACalculator) Targets(reason models.ReasonCode, submittedAt time.Time) (approveBy, handoverBy time.Time) {
	window := c.cfg.Window(string(reason))
	return submittedAt.Add(window.Approval), submittedAt.Add(window.Handover)
}

// IsApproveBreached reports whether the approval deadline has lapsed while
// the transaction still awaits a decision.
func (c *SLACalculator) IsApproveBreached(tx *models.CustodyTransaction, now time.Time) bool {
	if tx.Status != models.CustodyStatusPendingApproval || tx.SLATargetApproveBy == nil {
		return false
	}
	return now.After(*tx.SLATargetApproveBy)
}

// IsHandoverBreached reports whether the handover deadline has lapsed before
// the replacement vehicle went out.
func (c *SLACalculator) IsHandoverBreached(tx *models.CustodyTransaction, now time.Time) bool {
	if tx.SLATargetHandoverBy == nil {
		return false
	}
	if tx.Status != models.CustodyStatusPendingApproval && tx.Status != models.CustodyStatusApproved {
		return false
	}
	return now.After(*tx.SLATargetHandoverBy)
}
