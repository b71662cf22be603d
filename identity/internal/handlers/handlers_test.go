package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"securities-sales-crm/identity/internal/models"
	"securities-sales-crm/identity/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

type fakeUsers struct {
	byEmail map[string]models.User
	byID    map[uuid.UUID]models.User
	deleted []uuid.UUID
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{byEmail: map[string]models.User{}, byID: map[uuid.UUID]models.User{}}
	for _, u := range users {
		f.byEmail[u.Email] = u
		f.byID[u.UserID] = u
	}
	return f
}

func (f *fakeUsers) CreateUser(_ context.Context, email string, name string, role string, passwordHash string) (models.User, error) {
	if _, ok := f.byEmail[email]; ok {
		return models.User{}, repos.ErrEmailTaken
	}
	u := models.User{UserID: uuid.New(), Email: email, Name: name, Role: role, Active: true, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	f.byEmail[email] = u
	f.byID[u.UserID] = u
	return u, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return models.User{}, repos.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return models.User{}, repos.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) ListUsers(context.Context, int, int) ([]models.User, error) {
	var out []models.User
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) UpdateUser(_ context.Context, userID uuid.UUID, name string, role string, active bool) (models.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return models.User{}, repos.ErrUserNotFound
	}
	u.Name, u.Role, u.Active = name, role, active
	f.byID[userID] = u
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUsers) DeleteUser(_ context.Context, userID uuid.UUID) error {
	u, ok := f.byID[userID]
	if !ok {
		return repos.ErrUserNotFound
	}
	delete(f.byID, userID)
	delete(f.byEmail, u.Email)
	f.deleted = append(f.deleted, userID)
	return nil
}

func (f *fakeUsers) TouchLastLogin(context.Context, uuid.UUID) error { return nil }

type fakeNotifications struct {
	items map[uuid.UUID]models.Notification
}

func (f *fakeNotifications) ListForUser(_ context.Context, recipient uuid.UUID, unreadOnly bool, _ int, _ int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.items {
		if n.RecipientUserID != recipient {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, notificationID uuid.UUID, recipient uuid.UUID) (models.Notification, error) {
	n, ok := f.items[notificationID]
	if !ok || n.RecipientUserID != recipient {
		return models.Notification{}, repos.ErrNotificationNotFound
	}
	n.IsRead = true
	now := time.Now().UTC()
	n.ReadAt = &now
	f.items[notificationID] = n
	return n, nil
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

func newTestSigner(t *testing.T) *authx.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwt.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600))

	signer, err := authx.NewSigner(path, "https://identity.test", "crm", 30*time.Minute)
	require.NoError(t, err)
	return signer
}

func newTestHandlers(t *testing.T, users *fakeUsers) (*Handlers, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{}
	h := &Handlers{
		Cfg:           config.Config{},
		Logger:        logx.New("identity", "test", "", "error"),
		Users:         users,
		Notifications: &fakeNotifications{items: map[uuid.UUID]models.Notification{}},
		Issuer:        newTestSigner(t),
		Publisher:     publisher,
	}
	return h, publisher
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func asAdmin(r *http.Request) *http.Request {
	return asUser(r, uuid.New(), authx.RoleAdmin)
}

func asUser(r *http.Request, userID uuid.UUID, role string) *http.Request {
	ctx := authx.WithAuth(r.Context(), authx.AuthContext{UserID: userID, Roles: []string{role}})
	return r.WithContext(ctx)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	user := models.User{
		UserID:       uuid.New(),
		Email:        "sales@example.com",
		Name:         "Sales One",
		Role:         authx.RoleSales,
		Active:       true,
		PasswordHash: hashPassword(t, "correct horse"),
	}
	h, _ := newTestHandlers(t, newFakeUsers(user))

	body, _ := json.Marshal(map[string]string{"email": "sales@example.com", "password": "correct horse"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Bearer", resp.TokenType)

	auth, err := h.Issuer.Verify(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.UserID, auth.UserID)
	require.True(t, auth.HasRole(authx.RoleSales))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	user := models.User{
		UserID:       uuid.New(),
		Email:        "sales@example.com",
		Active:       true,
		PasswordHash: hashPassword(t, "right"),
	}
	h, _ := newTestHandlers(t, newFakeUsers(user))

	body, _ := json.Marshal(map[string]string{"email": "sales@example.com", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.login(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	user := models.User{
		UserID:       uuid.New(),
		Email:        "gone@example.com",
		Active:       false,
		PasswordHash: hashPassword(t, "pw123456"),
	}
	h, _ := newTestHandlers(t, newFakeUsers(user))

	body, _ := json.Marshal(map[string]string{"email": "gone@example.com", "password": "pw123456"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.login(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateUserPublishesUserCreated(t *testing.T) {
	h, publisher := newTestHandlers(t, newFakeUsers())

	body, _ := json.Marshal(map[string]string{
		"email":    "new@example.com",
		"name":     "New User",
		"role":     "SALES",
		"password": "long enough",
	})
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	h.createUser(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, publisher.published, 1)
	require.Equal(t, events.TopicUserEvents, publisher.published[0].Topic)
	require.Equal(t, events.TypeUserCreated, publisher.published[0].Env.EventType)
}

func TestDeleteUserPublishesUserDeleted(t *testing.T) {
	victim := models.User{UserID: uuid.New(), Email: "victim@example.com", Active: true}
	users := newFakeUsers(victim)
	h, publisher := newTestHandlers(t, users)

	req := asAdmin(httptest.NewRequest(http.MethodDelete, "/users/"+victim.UserID.String(), nil))
	req.SetPathValue("id", victim.UserID.String())
	rec := httptest.NewRecorder()
	h.deleteUser(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []uuid.UUID{victim.UserID}, users.deleted)
	require.Len(t, publisher.published, 1)
	require.Equal(t, events.TypeUserDeleted, publisher.published[0].Env.EventType)
}

func TestDeleteOwnAccountConflicts(t *testing.T) {
	self := models.User{UserID: uuid.New(), Email: "admin@example.com", Active: true}
	h, publisher := newTestHandlers(t, newFakeUsers(self))

	req := asUser(httptest.NewRequest(http.MethodDelete, "/users/"+self.UserID.String(), nil), self.UserID, authx.RoleAdmin)
	req.SetPathValue("id", self.UserID.String())
	rec := httptest.NewRecorder()
	h.deleteUser(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Empty(t, publisher.published)
}

func TestGetUserSelfAllowedOtherForbidden(t *testing.T) {
	me := models.User{UserID: uuid.New(), Email: "me@example.com", Active: true}
	other := models.User{UserID: uuid.New(), Email: "other@example.com", Active: true}
	h, _ := newTestHandlers(t, newFakeUsers(me, other))

	req := asUser(httptest.NewRequest(http.MethodGet, "/users/"+me.UserID.String(), nil), me.UserID, authx.RoleSales)
	req.SetPathValue("id", me.UserID.String())
	rec := httptest.NewRecorder()
	h.getUser(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = asUser(httptest.NewRequest(http.MethodGet, "/users/"+other.UserID.String(), nil), me.UserID, authx.RoleSales)
	req.SetPathValue("id", other.UserID.String())
	rec = httptest.NewRecorder()
	h.getUser(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkNotificationReadScopedToRecipient(t *testing.T) {
	recipient := uuid.New()
	notificationID := uuid.New()
	h, _ := newTestHandlers(t, newFakeUsers())
	h.Notifications = &fakeNotifications{items: map[uuid.UUID]models.Notification{
		notificationID: {NotificationID: notificationID, RecipientUserID: recipient},
	}}

	req := asUser(httptest.NewRequest(http.MethodPost, "/notifications/"+notificationID.String()+"/read", nil), uuid.New(), authx.RoleSales)
	req.SetPathValue("id", notificationID.String())
	rec := httptest.NewRecorder()
	h.readNotification(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = asUser(httptest.NewRequest(http.MethodPost, "/notifications/"+notificationID.String()+"/read", nil), recipient, authx.RoleSales)
	req.SetPathValue("id", notificationID.String())
	rec = httptest.NewRecorder()
	h.readNotification(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
