package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetdesk/custody-api/internal/dto"
	"github.com/fleetdesk/custody-api/internal/models"
	"github.com/fleetdesk/custody-api/internal/repository"
	appErrors "github.com/fleetdesk/custody-api/pkg/errors"
)

type mockCustodyStore struct {
	txs       map[string]models.CustodyTransaction
	conflicts int
	deleted   []string
	stats     *models.CustodyStats
	statCalls int
}

func (m *mockCustodyStore) Create(ctx context.Context, tx *models.CustodyTransaction) error {
	if m.txs == nil {
		m.txs = make(map[string]models.CustodyTransaction)
	}
	if tx.ID == "" {
		tx.ID = "new-custody"
	}
	tx.CustodyNo = "CST-000001"
	tx.CreatedAt = time.Now().UTC()
	tx.UpdatedAt = tx.CreatedAt
	m.txs[tx.ID] = *tx
	return nil
}

func (m *mockCustodyStore) GetByID(ctx context.Context, id string) (*models.CustodyTransaction, error) {
	if tx, ok := m.txs[id]; ok {
		copied := tx
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCustodyStore) List(ctx context.Context, filter models.CustodyFilter) ([]models.CustodyTransaction, int, error) {
	list := make([]models.CustodyTransaction, 0, len(m.txs))
	for _, tx := range m.txs {
		list = append(list, tx)
	}
	return list, len(list), nil
}

func (m *mockCustodyStore) UpdateTransition(ctx context.Context, tx *models.CustodyTransaction, expectedUpdatedAt time.Time) error {
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}
	stored, ok := m.txs[tx.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if !stored.UpdatedAt.Equal(expectedUpdatedAt) {
		return repository.ErrVersionConflict
	}
	m.txs[tx.ID] = *tx
	return nil
}

func (m *mockCustodyStore) Delete(ctx context.Context, id string) (bool, error) {
	if tx, ok := m.txs[id]; ok && tx.Status == models.CustodyStatusDraft {
		delete(m.txs, id)
		m.deleted = append(m.deleted, id)
		return true, nil
	}
	return false, nil
}

func (m *mockCustodyStore) GetStats(ctx context.Context, from, to time.Time) (*models.CustodyStats, error) {
	m.statCalls++
	if m.stats != nil {
		return m.stats, nil
	}
	return &models.CustodyStats{}, nil
}

type mockDocumentStore struct {
	docs map[string][]models.CustodyDocument
}

func (m *mockDocumentStore) Create(ctx context.Context, doc *models.CustodyDocument) error {
	if m.docs == nil {
		m.docs = make(map[string][]models.CustodyDocument)
	}
	doc.ID = "doc-1"
	m.docs[doc.CustodyID] = append(m.docs[doc.CustodyID], *doc)
	return nil
}

func (m *mockDocumentStore) ListByCustody(ctx context.Context, custodyID string) ([]models.CustodyDocument, error) {
	return m.docs[custodyID], nil
}

// fakeGate implements approvalDecider with in-memory slots.
type fakeGate struct {
	roster  []string
	slots   map[string]map[string]models.ApprovalStatus
	opened  []string
	openErr error
}

func newFakeGate(roster ...string) *fakeGate {
	return &fakeGate{roster: roster, slots: make(map[string]map[string]models.ApprovalStatus)}
}

func (g *fakeGate) Roster() []string { return g.roster }

func (g *fakeGate) OpenSlots(ctx context.Context, custodyID string) error {
	if g.openErr != nil {
		return g.openErr
	}
	if _, ok := g.slots[custodyID]; ok {
		return nil
	}
	byApprover := make(map[string]models.ApprovalStatus, len(g.roster))
	for _, approver := range g.roster {
		byApprover[approver] = models.ApprovalStatusPending
	}
	g.slots[custodyID] = byApprover
	g.opened = append(g.opened, custodyID)
	return nil
}

func (g *fakeGate) Decide(ctx context.Context, custodyID, approverID string, status models.ApprovalStatus, notes *string) error {
	byApprover, ok := g.slots[custodyID]
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "no slots")
	}
	current, ok := byApprover[approverID]
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "not an approver")
	}
	if current != models.ApprovalStatusPending {
		return appErrors.ErrDuplicateDecision
	}
	byApprover[approverID] = status
	return nil
}

func (g *fakeGate) IsSatisfied(ctx context.Context, custodyID string) (bool, error) {
	byApprover, ok := g.slots[custodyID]
	if !ok || len(byApprover) == 0 {
		return false, nil
	}
	for _, status := range byApprover {
		if status != models.ApprovalStatusApproved {
			return false, nil
		}
	}
	return true, nil
}

func (g *fakeGate) PendingApproversFor(ctx context.Context, custodyID string) ([]string, error) {
	var pending []string
	for approver, status := range g.slots[custodyID] {
		if status == models.ApprovalStatusPending {
			pending = append(pending, approver)
		}
	}
	return pending, nil
}

func (g *fakeGate) Approvals(ctx context.Context, custodyID string) ([]models.Approval, error) {
	var approvals []models.Approval
	for approver, status := range g.slots[custodyID] {
		approvals = append(approvals, models.Approval{CustodyID: custodyID, ApproverID: approver, Status: status})
	}
	return approvals, nil
}

type fixedSLA struct {
	approveBy  time.Time
	handoverBy time.Time
}

func (f fixedSLA) Targets(models.ReasonCode, time.Time) (time.Time, time.Time) {
	return f.approveBy, f.handoverBy
}

type recordingDispatcher struct {
	events []models.EventType
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, tx *models.CustodyTransaction, event models.EventType, metadata map[string]interface{}, recipients []string) error {
	d.events = append(d.events, event)
	return nil
}

type mapStatsCache struct {
	values map[string]string
	sets   int
}

func (c *mapStatsCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *mapStatsCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.values == nil {
		c.values = make(map[string]string)
	}
	c.values[key] = value
	c.sets++
	return nil
}

func newCustodyFixture(gate approvalDecider) (*CustodyService, *mockCustodyStore, *recordingDispatcher) {
	repo := &mockCustodyStore{}
	dispatcher := &recordingDispatcher{}
	sla := fixedSLA{
		approveBy:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		handoverBy: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}
	svc := NewCustodyService(repo, &mockDocumentStore{}, gate, sla, dispatcher, nil, time.Minute, zap.NewNop())
	return svc, repo, dispatcher
}

func validCreateRequest() dto.CreateCustodyRequest {
	return dto.CreateCustodyRequest{
		AgreementID:       "agr-1",
		CustomerID:        "cust-1",
		BranchCode:        "JKT01",
		OriginalVehicleID: "veh-1",
		CustodianName:     "Budi Santoso",
		CustodianType:     models.CustodianCustomer,
		ReasonCode:        models.ReasonBreakdown,
		IncidentDate:      time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		EffectiveFrom:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCustodyServiceCreateDefaultsRatePolicy(t *testing.T) {
	svc, repo, _ := newCustodyFixture(newFakeGate("sup-1"))

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusDraft, tx.Status)
	assert.Equal(t, models.RateInherit, tx.RatePolicy)
	assert.Equal(t, "op-1", tx.CreatedBy)
	assert.NotEmpty(t, tx.CustodyNo)
	assert.Len(t, repo.txs, 1)
}

func TestCustodyServiceCreateValidation(t *testing.T) {
	svc, _, _ := newCustodyFixture(newFakeGate("sup-1"))

	req := validCreateRequest()
	req.AgreementID = ""
	_, err := svc.Create(context.Background(), req, "op-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.ReasonCode = "LOST"
	_, err = svc.Create(context.Background(), req, "op-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validCreateRequest()
	req.RatePolicy = models.RateSpecialCode
	_, err = svc.Create(context.Background(), req, "op-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "specialRateCode")
}

func TestCustodyServiceSubmitStampsSLATargets(t *testing.T) {
	gate := newFakeGate("sup-1", "sup-2")
	svc, _, dispatcher := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusPendingApproval, submitted.Status)
	require.NotNil(t, submitted.SLATargetApproveBy)
	require.NotNil(t, submitted.SLATargetHandoverBy)
	assert.Contains(t, gate.opened, tx.ID)
	assert.Equal(t, []models.EventType{models.EventSubmitted}, dispatcher.events)

	firstApproveBy := *submitted.SLATargetApproveBy

	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	detail, err := svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, detail.Transaction.SLATargetApproveBy.Equal(firstApproveBy))
}

func TestCustodyServiceSubmitSlotFailureLeavesDraft(t *testing.T) {
	gate := newFakeGate("sup-1")
	gate.openErr = appErrors.Clone(appErrors.ErrInternal, "approval store down")
	svc, repo, dispatcher := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.Error(t, err)

	// The draft is untouched and can be re-submitted once slots open again.
	stored := repo.txs[tx.ID]
	assert.Equal(t, models.CustodyStatusDraft, stored.Status)
	assert.Nil(t, stored.SLATargetApproveBy)
	assert.Empty(t, dispatcher.events)

	gate.openErr = nil
	submitted, err := svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusPendingApproval, submitted.Status)
}

func TestCustodyServiceSubmitWithoutRoster(t *testing.T) {
	svc, _, _ := newCustodyFixture(newFakeGate())

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPrecondition.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceApproveRequiresUnanimity(t *testing.T) {
	gate := newFakeGate("sup-1", "sup-2")
	svc, _, dispatcher := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)

	partial, err := svc.Approve(context.Background(), tx.ID, "sup-1", "ok")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusPendingApproval, partial.Status)

	final, err := svc.Approve(context.Background(), tx.ID, "sup-2", "")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusApproved, final.Status)
	require.NotNil(t, final.ApprovedBy)
	assert.Equal(t, "sup-2", *final.ApprovedBy)
	assert.Contains(t, dispatcher.events, models.EventApproved)
}

func TestCustodyServiceDuplicateApproval(t *testing.T) {
	gate := newFakeGate("sup-1", "sup-2")
	svc, _, _ := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), tx.ID, "sup-1", "")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), tx.ID, "sup-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateDecision.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceRejectVetoes(t *testing.T) {
	gate := newFakeGate("sup-1", "sup-2")
	svc, _, dispatcher := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), tx.ID, "sup-1", "")
	require.NoError(t, err)

	voided, err := svc.Reject(context.Background(), tx.ID, "sup-2", "damage exceeds threshold")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusVoided, voided.Status)
	require.NotNil(t, voided.Notes)
	assert.Contains(t, *voided.Notes, "rejected: damage exceeds threshold")
	assert.Contains(t, dispatcher.events, models.EventRejected)

	// A voided transaction takes no further verdicts.
	_, err = svc.Approve(context.Background(), tx.ID, "sup-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceRejectRequiresReason(t *testing.T) {
	svc, _, _ := newCustodyFixture(newFakeGate("sup-1"))

	_, err := svc.Reject(context.Background(), "any", "sup-1", "  ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceActivateRequiresReplacement(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, _, dispatcher := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), tx.ID, "sup-1", "")
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), tx.ID, "op-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPrecondition.Code, appErrors.FromError(err).Code)

	active, err := svc.Activate(context.Background(), tx.ID, "op-1", "veh-repl")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusActive, active.Status)
	require.NotNil(t, active.ReplacementVehicleID)
	assert.Equal(t, "veh-repl", *active.ReplacementVehicleID)
	assert.Contains(t, dispatcher.events, models.EventHandover)
}

func TestCustodyServiceRecordReturn(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, _, _ := newCustodyFixture(gate)

	tx := mustActivate(t, svc)

	_, err := svc.RecordReturn(context.Background(), tx.ID, tx.EffectiveFrom.Add(-24*time.Hour), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	returned, err := svc.RecordReturn(context.Background(), tx.ID, tx.EffectiveFrom.Add(72*time.Hour), "returned clean")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusActive, returned.Status)
	require.NotNil(t, returned.ActualReturnDate)
}

func TestCustodyServiceCloseLifecycle(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, _, dispatcher := newCustodyFixture(gate)

	tx := mustActivate(t, svc)

	closed, err := svc.Close(context.Background(), tx.ID, "op-2", "all settled")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, "op-2", *closed.ClosedBy)
	assert.Contains(t, dispatcher.events, models.EventClosed)

	_, err = svc.Close(context.Background(), tx.ID, "op-2", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceAutoClose(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, _, dispatcher := newCustodyFixture(gate)

	tx := mustActivate(t, svc)

	closed, err := svc.AutoClose(context.Background(), tx.ID, "system", "auto-closed after 90 days overdue")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusClosed, closed.Status)
	assert.Contains(t, dispatcher.events, models.EventAutoClosed)
}

func TestCustodyServiceVoidTerminal(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, _, _ := newCustodyFixture(gate)

	tx := mustActivate(t, svc)
	_, err := svc.Close(context.Background(), tx.ID, "op-1", "")
	require.NoError(t, err)

	_, err = svc.Void(context.Background(), tx.ID, "mistake", "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceDeleteOnlyDrafts(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, repo, _ := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), tx.ID))
	assert.Contains(t, repo.deleted, tx.ID)

	tx, err = svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), tx.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImmutableState.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceTransitionConflictRetries(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, repo, _ := newCustodyFixture(gate)

	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)

	// One conflict is absorbed by the retry.
	repo.conflicts = 1
	submitted, err := svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.CustodyStatusPendingApproval, submitted.Status)

	// A persistent conflict surfaces to the caller.
	tx2, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	tx2store := repo.txs[tx2.ID]
	tx2store.ID = "tx-2"
	repo.txs["tx-2"] = tx2store
	repo.conflicts = 2
	_, err = svc.Submit(context.Background(), "tx-2", "op-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrentModification.Code, appErrors.FromError(err).Code)
}

func TestCustodyServiceStatsCache(t *testing.T) {
	repo := &mockCustodyStore{stats: &models.CustodyStats{ActiveCustodies: 4, SLABreaches: 1}}
	cache := &mapStatsCache{}
	svc := NewCustodyService(repo, &mockDocumentStore{}, newFakeGate("sup-1"), fixedSLA{}, &recordingDispatcher{}, cache, time.Minute, zap.NewNop())

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.Stats(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 4, first.ActiveCustodies)
	assert.Equal(t, 1, repo.statCalls)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.Stats(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 4, second.ActiveCustodies)
	assert.Equal(t, 1, repo.statCalls)
}

func TestCustodyServiceAttachDocumentImmutable(t *testing.T) {
	gate := newFakeGate("sup-1")
	svc, _, _ := newCustodyFixture(gate)

	tx := mustActivate(t, svc)
	doc, err := svc.AttachDocument(context.Background(), tx.ID, dto.AttachDocumentRequest{
		DocType:   models.DocumentHandoverForm,
		Reference: "HF-2026-0042",
	})
	require.NoError(t, err)
	assert.Equal(t, tx.ID, doc.CustodyID)

	_, err = svc.Close(context.Background(), tx.ID, "op-1", "")
	require.NoError(t, err)

	_, err = svc.AttachDocument(context.Background(), tx.ID, dto.AttachDocumentRequest{
		DocType:   models.DocumentOther,
		Reference: "late",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImmutableState.Code, appErrors.FromError(err).Code)
}

func mustActivate(t *testing.T, svc *CustodyService) *models.CustodyTransaction {
	t.Helper()
	tx, err := svc.Create(context.Background(), validCreateRequest(), "op-1")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), tx.ID, "op-1")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), tx.ID, "sup-1", "")
	require.NoError(t, err)
	active, err := svc.Activate(context.Background(), tx.ID, "op-1", "veh-repl")
	require.NoError(t, err)
	return active
}
