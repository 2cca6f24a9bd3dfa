package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/custody-api/internal/models"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
)

type mockApprovalStore struct {
	slots      map[string][]models.Approval
	raceLoss   bool
	decideCall int
}

func (m *mockApprovalStore) CreateSlots(ctx context.Context, custodyID string, approverIDs []string) error {
	if m.slots == nil {
		m.slots = make(map[string][]models.Approval)
	}
	for _, approver := range approverIDs {
		m.slots[custodyID] = append(m.slots[custodyID], models.Approval{
			CustodyID:  custodyID,
			ApproverID: approver,
			Status:     models.ApprovalStatusPending,
		})
	}
	return nil
}

func (m *mockApprovalStore) ListByCustody(ctx context.Context, custodyID string) ([]models.Approval, error) {
	return m.slots[custodyID], nil
}

func (m *mockApprovalStore) Decide(ctx context.Context, custodyID, approverID string, status models.ApprovalStatus, notes *string) (bool, error) {
	m.decideCall++
	if m.raceLoss {
		return false, nil
	}
	now := time.Now().UTC()
	for i, slot := range m.slots[custodyID] {
		if slot.ApproverID == approverID && slot.Status == models.ApprovalStatusPending {
			m.slots[custodyID][i].Status = status
			m.slots[custodyID][i].DecidedAt = &now
			m.slots[custodyID][i].Notes = notes
			return true, nil
		}
	}
	return false, nil
}

func TestApprovalGateOpenSlots(t *testing.T) {
	store := &mockApprovalStore{}
	gate := NewApprovalGate(store, []string{"sup-1", "sup-2"})

	require.NoError(t, gate.OpenSlots(context.Background(), "cust-1"))
	assert.Len(t, store.slots["cust-1"], 2)

	empty := NewApprovalGate(store, nil)
	err := empty.OpenSlots(context.Background(), "cust-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPrecondition.Code, appErrors.FromError(err).Code)
}

func TestApprovalGateOpenSlotsIdempotent(t *testing.T) {
	store := &mockApprovalStore{}
	gate := NewApprovalGate(store, []string{"sup-1", "sup-2"})

	require.NoError(t, gate.OpenSlots(context.Background(), "cust-1"))
	require.NoError(t, gate.OpenSlots(context.Background(), "cust-1"))
	assert.Len(t, store.slots["cust-1"], 2)
}

func TestApprovalGateDecide(t *testing.T) {
	store := &mockApprovalStore{}
	gate := NewApprovalGate(store, []string{"sup-1", "sup-2"})
	require.NoError(t, gate.OpenSlots(context.Background(), "cust-1"))

	require.NoError(t, gate.Decide(context.Background(), "cust-1", "sup-1", models.ApprovalStatusApproved, nil))

	// A second verdict from the same approver is refused.
	err := gate.Decide(context.Background(), "cust-1", "sup-1", models.ApprovalStatusRejected, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateDecision.Code, appErrors.FromError(err).Code)

	// Unknown approvers are refused outright.
	err = gate.Decide(context.Background(), "cust-1", "intruder", models.ApprovalStatusApproved, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApprovalGateDecideRaceLoss(t *testing.T) {
	store := &mockApprovalStore{}
	gate := NewApprovalGate(store, []string{"sup-1"})
	require.NoError(t, gate.OpenSlots(context.Background(), "cust-1"))

	store.raceLoss = true
	err := gate.Decide(context.Background(), "cust-1", "sup-1", models.ApprovalStatusApproved, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateDecision.Code, appErrors.FromError(err).Code)
}

func TestApprovalGateIsSatisfied(t *testing.T) {
	store := &mockApprovalStore{}
	gate := NewApprovalGate(store, []string{"sup-1", "sup-2"})
	require.NoError(t, gate.OpenSlots(context.Background(), "cust-1"))

	satisfied, err := gate.IsSatisfied(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.False(t, satisfied)

	require.NoError(t, gate.Decide(context.Background(), "cust-1", "sup-1", models.ApprovalStatusApproved, nil))
	satisfied, err = gate.IsSatisfied(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.False(t, satisfied)

	require.NoError(t, gate.Decide(context.Background(), "cust-1", "sup-2", models.ApprovalStatusApproved, nil))
	satisfied, err = gate.IsSatisfied(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.True(t, satisfied)

	// No slots means not satisfied, never vacuously approved.
	satisfied, err = gate.IsSatisfied(context.Background(), "cust-none")
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestApprovalGatePendingApprovers(t *testing.T) {
	store := &mockApprovalStore{}
	gate := NewApprovalGate(store, []string{"sup-1", "sup-2"})
	require.NoError(t, gate.OpenSlots(context.Background(), "cust-1"))
	require.NoError(t, gate.Decide(context.Background(), "cust-1", "sup-1", models.ApprovalStatusApproved, nil))

	pending, err := gate.PendingApproversFor(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sup-2"}, pending)
}
