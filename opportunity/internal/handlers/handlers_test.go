package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"securities-sales-crm/opportunity/internal/approval"
	"securities-sales-crm/opportunity/internal/models"
	"securities-sales-crm/opportunity/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

type fakeApprovalStore struct {
	byID map[uuid.UUID]models.ApprovalRequest
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{byID: map[uuid.UUID]models.ApprovalRequest{}}
}

func (f *fakeApprovalStore) CreateApproval(_ context.Context, customerID uuid.UUID, requesterID uuid.UUID, productName string, amount decimal.Decimal, comment string) (models.ApprovalRequest, error) {
	a := models.ApprovalRequest{
		ApprovalID:  uuid.New(),
		CustomerID:  customerID,
		RequesterID: requesterID,
		ProductName: productName,
		Amount:      amount,
		Comment:     comment,
		Status:      approval.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	f.byID[a.ApprovalID] = a
	return a, nil
}

func (f *fakeApprovalStore) GetApprovalByID(_ context.Context, approvalID uuid.UUID) (models.ApprovalRequest, error) {
	a, ok := f.byID[approvalID]
	if !ok {
		return models.ApprovalRequest{}, repos.ErrApprovalNotFound
	}
	return a, nil
}

func (f *fakeApprovalStore) ListApprovals(context.Context, *uuid.UUID, *uuid.UUID, string, int, int) ([]models.ApprovalRequest, error) {
	var out []models.ApprovalRequest
	for _, a := range f.byID {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeApprovalStore) Decide(_ context.Context, approvalID uuid.UUID, approverID uuid.UUID, status string) (models.ApprovalRequest, error) {
	a, ok := f.byID[approvalID]
	if !ok {
		return models.ApprovalRequest{}, repos.ErrApprovalNotFound
	}
	if a.Status != approval.StatusPending {
		return models.ApprovalRequest{}, repos.ErrApprovalNotPending
	}
	now := time.Now().UTC()
	a.Status = status
	a.ApproverID = &approverID
	a.ProcessedAt = &now
	f.byID[approvalID] = a
	return a, nil
}

func (f *fakeApprovalStore) Recall(_ context.Context, approvalID uuid.UUID) (models.ApprovalRequest, error) {
	a, ok := f.byID[approvalID]
	if !ok {
		return models.ApprovalRequest{}, repos.ErrApprovalNotFound
	}
	if a.Status != approval.StatusPending {
		return models.ApprovalRequest{}, repos.ErrApprovalNotPending
	}
	a.Status = approval.StatusRecalled
	f.byID[approvalID] = a
	return a, nil
}

func (f *fakeApprovalStore) UpdateFields(_ context.Context, approvalID uuid.UUID, productName string, amount decimal.Decimal, comment string) (models.ApprovalRequest, error) {
	a, ok := f.byID[approvalID]
	if !ok {
		return models.ApprovalRequest{}, repos.ErrApprovalNotFound
	}
	if a.Status != approval.StatusPending {
		return models.ApprovalRequest{}, repos.ErrApprovalNotPending
	}
	a.ProductName, a.Amount, a.Comment = productName, amount, comment
	f.byID[approvalID] = a
	return a, nil
}

type fakeCustomerChecker struct {
	known map[uuid.UUID]bool
}

func (f *fakeCustomerChecker) Exists(_ context.Context, _ string, customerID uuid.UUID) (bool, error) {
	return f.known[customerID], nil
}

type recordingPublisher struct {
	published []struct {
		Topic string
		Env   events.Envelope
	}
}

func (p *recordingPublisher) PublishBestEffort(_ context.Context, topic string, env events.Envelope) {
	p.published = append(p.published, struct {
		Topic string
		Env   events.Envelope
	}{topic, env})
}

func newTestHandlers(store *fakeApprovalStore, known ...uuid.UUID) (*Handlers, *recordingPublisher) {
	checker := &fakeCustomerChecker{known: map[uuid.UUID]bool{}}
	for _, id := range known {
		checker.known[id] = true
	}
	publisher := &recordingPublisher{}
	return &Handlers{
		Logger:    logx.New("opportunity", "test", "", "error"),
		Approvals: store,
		Customers: checker,
		Publisher: publisher,
	}, publisher
}

func as(r *http.Request, userID uuid.UUID, roles ...string) *http.Request {
	ctx := authx.WithAuth(r.Context(), authx.AuthContext{UserID: userID, Roles: roles})
	return r.WithContext(ctx)
}

func submit(t *testing.T, h *Handlers, requester uuid.UUID, customerID uuid.UUID) models.ApprovalRequest {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"customer_id": customerID, "product_name": "Corporate bond", "amount": "5000000"})
	req := as(httptest.NewRequest(http.MethodPost, "/approvals", bytes.NewReader(body)), requester, authx.RoleSales)
	rec := httptest.NewRecorder()
	h.createApproval(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var a models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a
}

func TestSubmitApprovalPublishesRequested(t *testing.T) {
	customerID := uuid.New()
	requester := uuid.New()
	h, publisher := newTestHandlers(newFakeApprovalStore(), customerID)

	a := submit(t, h, requester, customerID)
	require.Equal(t, approval.StatusPending, a.Status)

	require.Len(t, publisher.published, 1)
	require.Equal(t, events.TopicApprovalEvents, publisher.published[0].Topic)
	require.Equal(t, events.TypeApprovalRequested, publisher.published[0].Env.EventType)

	var data events.ApprovalData
	require.NoError(t, json.Unmarshal(publisher.published[0].Env.Data, &data))
	require.Equal(t, a.ApprovalID, data.ApprovalID)
	require.Equal(t, requester, data.RequesterID)
	require.True(t, data.Amount.Equal(decimal.NewFromInt(5000000)))
}

func TestSubmitUnknownCustomerIsNotFound(t *testing.T) {
	h, publisher := newTestHandlers(newFakeApprovalStore())

	body, _ := json.Marshal(map[string]any{"customer_id": uuid.New(), "product_name": "Bond", "amount": "100"})
	req := as(httptest.NewRequest(http.MethodPost, "/approvals", bytes.NewReader(body)), uuid.New(), authx.RoleSales)
	rec := httptest.NewRecorder()
	h.createApproval(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, publisher.published)
}

func TestApproveSetsApproverAndPublishes(t *testing.T) {
	customerID := uuid.New()
	requester := uuid.New()
	approver := uuid.New()
	store := newFakeApprovalStore()
	h, publisher := newTestHandlers(store, customerID)
	a := submit(t, h, requester, customerID)

	req := as(httptest.NewRequest(http.MethodPost, "/approvals/"+a.ApprovalID.String()+"/approve", nil), approver, authx.RoleManager)
	req.SetPathValue("id", a.ApprovalID.String())
	rec := httptest.NewRecorder()
	h.approveApproval(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var decided models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decided))
	require.Equal(t, approval.StatusApproved, decided.Status)
	require.NotNil(t, decided.ApproverID)
	require.Equal(t, approver, *decided.ApproverID)
	require.NotNil(t, decided.ProcessedAt)

	require.Len(t, publisher.published, 2)
	last := publisher.published[1]
	require.Equal(t, events.TypeApprovalApproved, last.Env.EventType)

	var data events.ApprovalData
	require.NoError(t, json.Unmarshal(last.Env.Data, &data))
	require.Equal(t, a.ApprovalID, data.ApprovalID)
	require.Equal(t, requester, data.RequesterID)
	require.NotNil(t, data.ApproverID)
	require.Equal(t, approver, *data.ApproverID)
}

func TestRequesterCannotDecideOwnRequest(t *testing.T) {
	customerID := uuid.New()
	requester := uuid.New()
	store := newFakeApprovalStore()
	// requester also holds MANAGER, which is not enough
	h, publisher := newTestHandlers(store, customerID)
	a := submit(t, h, requester, customerID)

	req := as(httptest.NewRequest(http.MethodPost, "/approvals/"+a.ApprovalID.String()+"/approve", nil), requester, authx.RoleManager)
	req.SetPathValue("id", a.ApprovalID.String())
	rec := httptest.NewRecorder()
	h.approveApproval(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, approval.StatusPending, store.byID[a.ApprovalID].Status)
	require.Len(t, publisher.published, 1)
}

func TestTerminalStateIsImmutable(t *testing.T) {
	customerID := uuid.New()
	requester := uuid.New()
	store := newFakeApprovalStore()
	h, _ := newTestHandlers(store, customerID)
	a := submit(t, h, requester, customerID)

	approver := uuid.New()
	req := as(httptest.NewRequest(http.MethodPost, "/approvals/"+a.ApprovalID.String()+"/approve", nil), approver, authx.RoleCompliance)
	req.SetPathValue("id", a.ApprovalID.String())
	rec := httptest.NewRecorder()
	h.approveApproval(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	approved := store.byID[a.ApprovalID]

	// reject after approve
	req = as(httptest.NewRequest(http.MethodPost, "/approvals/"+a.ApprovalID.String()+"/reject", nil), approver, authx.RoleCompliance)
	req.SetPathValue("id", a.ApprovalID.String())
	rec = httptest.NewRecorder()
	h.rejectApproval(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	// recall after approve
	req = as(httptest.NewRequest(http.MethodPost, "/approvals/"+a.ApprovalID.String()+"/recall", nil), requester, authx.RoleSales)
	req.SetPathValue("id", a.ApprovalID.String())
	rec = httptest.NewRecorder()
	h.recallApproval(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	// edit after approve
	body, _ := json.Marshal(map[string]any{"product_name": "Changed", "amount": "1"})
	req = as(httptest.NewRequest(http.MethodPut, "/approvals/"+a.ApprovalID.String(), bytes.NewReader(body)), requester, authx.RoleSales)
	req.SetPathValue("id", a.ApprovalID.String())
	rec = httptest.NewRecorder()
	h.editApproval(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, approved, store.byID[a.ApprovalID])
}

func TestRecallOnlyByRequester(t *testing.T) {
	customerID := uuid.New()
	requester := uuid.New()
	store := newFakeApprovalStore()
	h, publisher := newTestHandlers(store, customerID)
	a := submit(t, h, requester, customerID)

	req := as(httptest.NewRequest(http.MethodPost, "/approvals/"+a.ApprovalID.String()+"/recall", nil), uuid.New(), authx.RoleSales)
	req.SetPathValue("id", a.ApprovalID.String())
	rec := httptest.NewRecorder()
	h.recallApproval(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = as(httptest.NewRequest(http.MethodPost, "/approvals/"+a.ApprovalID.String()+"/recall", nil), requester, authx.RoleSales)
	req.SetPathValue("id", a.ApprovalID.String())
	rec = httptest.NewRecorder()
	h.recallApproval(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, approval.StatusRecalled, store.byID[a.ApprovalID].Status)
	require.Len(t, publisher.published, 2)
	require.Equal(t, events.TypeApprovalRecalled, publisher.published[1].Env.EventType)
}

func TestEditKeepsPendingAndEmitsNoEvent(t *testing.T) {
	customerID := uuid.New()
	requester := uuid.New()
	store := newFakeApprovalStore()
	h, publisher := newTestHandlers(store, customerID)
	a := submit(t, h, requester, customerID)

	body, _ := json.Marshal(map[string]any{"product_name": "Municipal bond", "amount": "250000", "comment": "revised"})
	req := as(httptest.NewRequest(http.MethodPut, "/approvals/"+a.ApprovalID.String(), bytes.NewReader(body)), requester, authx.RoleSales)
	req.SetPathValue("id", a.ApprovalID.String())
	rec := httptest.NewRecorder()
	h.editApproval(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := store.byID[a.ApprovalID]
	require.Equal(t, approval.StatusPending, updated.Status)
	require.Equal(t, "Municipal bond", updated.ProductName)
	require.Len(t, publisher.published, 1) // only approval.requested
}

func TestSubmitValidation(t *testing.T) {
	customerID := uuid.New()
	h, publisher := newTestHandlers(newFakeApprovalStore(), customerID)

	body, _ := json.Marshal(map[string]any{"customer_id": customerID, "product_name": "Bond", "amount": "-5"})
	req := as(httptest.NewRequest(http.MethodPost, "/approvals", bytes.NewReader(body)), uuid.New(), authx.RoleSales)
	rec := httptest.NewRecorder()
	h.createApproval(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, publisher.published)
}
