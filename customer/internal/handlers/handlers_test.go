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
	"github.com/stretchr/testify/require"

	"securities-sales-crm/customer/internal/models"
	"securities-sales-crm/customer/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

type fakeCustomers struct {
	byID map[uuid.UUID]models.Customer
}

func newFakeCustomers(customers ...models.Customer) *fakeCustomers {
	f := &fakeCustomers{byID: map[uuid.UUID]models.Customer{}}
	for _, c := range customers {
		f.byID[c.CustomerID] = c
	}
	return f
}

func (f *fakeCustomers) CreateCustomer(_ context.Context, name string, email string, phone string, riskProfile string, ownerUserID uuid.UUID) (models.Customer, error) {
	c := models.Customer{CustomerID: uuid.New(), Name: name, Email: email, Phone: phone, RiskProfile: riskProfile, OwnerUserID: ownerUserID, CreatedAt: time.Now().UTC()}
	f.byID[c.CustomerID] = c
	return c, nil
}

func (f *fakeCustomers) GetCustomerByID(_ context.Context, customerID uuid.UUID) (models.Customer, error) {
	c, ok := f.byID[customerID]
	if !ok || c.DeletedAt != nil {
		return models.Customer{}, repos.ErrCustomerNotFound
	}
	return c, nil
}

func (f *fakeCustomers) ListCustomers(context.Context, *uuid.UUID, int, int) ([]models.Customer, error) {
	var out []models.Customer
	for _, c := range f.byID {
		if c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCustomers) UpdateCustomer(_ context.Context, customerID uuid.UUID, name string, email string, phone string, riskProfile string) (models.Customer, error) {
	c, ok := f.byID[customerID]
	if !ok || c.DeletedAt != nil {
		return models.Customer{}, repos.ErrCustomerNotFound
	}
	c.Name, c.Email, c.Phone, c.RiskProfile = name, email, phone, riskProfile
	f.byID[customerID] = c
	return c, nil
}

func (f *fakeCustomers) SoftDeleteCustomer(_ context.Context, customerID uuid.UUID) (models.Customer, error) {
	c, ok := f.byID[customerID]
	if !ok || c.DeletedAt != nil {
		return models.Customer{}, repos.ErrCustomerNotFound
	}
	now := time.Now().UTC()
	c.DeletedAt = &now
	f.byID[customerID] = c
	return c, nil
}

func (f *fakeCustomers) Exists(_ context.Context, customerID uuid.UUID) (bool, error) {
	c, ok := f.byID[customerID]
	return ok && c.DeletedAt == nil, nil
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

func newTestHandlers(store *fakeCustomers) (*Handlers, *recordingPublisher) {
	publisher := &recordingPublisher{}
	return &Handlers{
		Logger:    logx.New("customer", "test", "", "error"),
		Customers: store,
		Publisher: publisher,
	}, publisher
}

func authed(r *http.Request) *http.Request {
	ctx := authx.WithAuth(r.Context(), authx.AuthContext{UserID: uuid.New(), Roles: []string{authx.RoleSales}})
	return r.WithContext(ctx)
}

func TestCreateCustomerPublishesEvent(t *testing.T) {
	h, publisher := newTestHandlers(newFakeCustomers())

	body, _ := json.Marshal(map[string]string{"name": "ACME Capital", "email": "desk@acme.example"})
	req := authed(httptest.NewRequest(http.MethodPost, "/customers", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	h.createCustomer(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, publisher.published, 1)
	require.Equal(t, events.TopicCustomerEvents, publisher.published[0].Topic)
	require.Equal(t, events.TypeCustomerCreated, publisher.published[0].Env.EventType)

	var data events.CustomerData
	require.NoError(t, json.Unmarshal(publisher.published[0].Env.Data, &data))
	require.NotEqual(t, uuid.Nil, data.CustomerID)
}

func TestDeleteCustomerIsSoftAndPublishesOnce(t *testing.T) {
	customer := models.Customer{CustomerID: uuid.New(), Name: "ACME", OwnerUserID: uuid.New()}
	store := newFakeCustomers(customer)
	h, publisher := newTestHandlers(store)

	req := authed(httptest.NewRequest(http.MethodDelete, "/customers/"+customer.CustomerID.String(), nil))
	req.SetPathValue("id", customer.CustomerID.String())
	rec := httptest.NewRecorder()
	h.deleteCustomer(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// second delete: row already gone, no second event
	req = authed(httptest.NewRequest(http.MethodDelete, "/customers/"+customer.CustomerID.String(), nil))
	req.SetPathValue("id", customer.CustomerID.String())
	rec = httptest.NewRecorder()
	h.deleteCustomer(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Len(t, publisher.published, 1)
	require.Equal(t, events.TypeCustomerDeleted, publisher.published[0].Env.EventType)
}

func TestExistsReflectsSoftDelete(t *testing.T) {
	customer := models.Customer{CustomerID: uuid.New(), Name: "ACME"}
	store := newFakeCustomers(customer)
	h, _ := newTestHandlers(store)

	req := authed(httptest.NewRequest(http.MethodGet, "/customers/"+customer.CustomerID.String()+"/exists", nil))
	req.SetPathValue("id", customer.CustomerID.String())
	rec := httptest.NewRecorder()
	h.customerExists(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.SoftDeleteCustomer(context.Background(), customer.CustomerID)
	require.NoError(t, err)

	req = authed(httptest.NewRequest(http.MethodGet, "/customers/"+customer.CustomerID.String()+"/exists", nil))
	req.SetPathValue("id", customer.CustomerID.String())
	rec = httptest.NewRecorder()
	h.customerExists(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCustomerValidation(t *testing.T) {
	h, publisher := newTestHandlers(newFakeCustomers())

	body, _ := json.Marshal(map[string]string{"name": "   "})
	req := authed(httptest.NewRequest(http.MethodPost, "/customers", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	h.createCustomer(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, publisher.published)
}
