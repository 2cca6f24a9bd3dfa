package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/pkg/config"
)

func slaTestConfig() config.SLAConfig {
	return config.SLAConfig{
		Default:  config.SLAWindow{Approval: 24 * time.Hour, Handover: 72 * time.Hour},
		Accident: config.SLAWindow{Approval: 4 * time.Hour, Handover: 24 * time.Hour},
	}
}

func TestSLACalculatorTargetsByReason(t *testing.T) {
	calc := NewSLACalculator(slaTestConfig())
	submitted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	approveBy, handoverBy := calc.Targets(models.ReasonAccident, submitted)
	assert.Equal(t, submitted.Add(4*time.Hour), approveBy)
	assert.Equal(t, submitted.Add(24*time.Hour), handoverBy)

	// Unmapped reasons fall back to the default window.
	approveBy, handoverBy = calc.Targets(models.ReasonDamage, submitted)
	assert.Equal(t, submitted.Add(24*time.Hour), approveBy)
	assert.Equal(t, submitted.Add(72*time.Hour), handoverBy)
}

func TestSLACalculatorApproveBreach(t *testing.T) {
	calc := NewSLACalculator(slaTestConfig())
	deadline := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	tx := &models.CustodyTransaction{
		Status:             models.CustodyStatusPendingApproval,
		SLATargetApproveBy: &deadline,
	}
	assert.False(t, calc.IsApproveBreached(tx, deadline.Add(-time.Minute)))
	assert.True(t, calc.IsApproveBreached(tx, deadline.Add(time.Minute)))

	// Once approved, the approval deadline no longer applies.
	tx.Status = models.CustodyStatusApproved
	assert.False(t, calc.IsApproveBreached(tx, deadline.Add(time.Hour)))

	assert.False(t, calc.IsApproveBreached(&models.CustodyTransaction{Status: models.CustodyStatusPendingApproval}, deadline))
}

func TestSLACalculatorHandoverBreach(t *testing.T) {
	calc := NewSLACalculator(slaTestConfig())
	deadline := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tx := &models.CustodyTransaction{
		Status:              models.CustodyStatusApproved,
		SLATargetHandoverBy: &deadline,
	}
	assert.False(t, calc.IsHandoverBreached(tx, deadline.Add(-time.Minute)))
	assert.True(t, calc.IsHandoverBreached(tx, deadline.Add(time.Minute)))

	// The handover clock also runs while approval is still pending.
	tx.Status = models.CustodyStatusPendingApproval
	assert.True(t, calc.IsHandoverBreached(tx, deadline.Add(time.Minute)))

	// Once the vehicle is out, handover can no longer breach.
	tx.Status = models.CustodyStatusActive
	assert.False(t, calc.IsHandoverBreached(tx, deadline.Add(time.Hour)))
}
