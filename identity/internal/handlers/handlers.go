// Package handlers implements the identity service HTTP surface: login and
// logout, token introspection for the gateway, user administration, and the
// notification inbox fed by the identity consumer.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"securities-sales-crm/identity/internal/models"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

const maxBodyBytes = 1 << 20

type UserStore interface {
	CreateUser(ctx context.Context, email string, name string, role string, passwordHash string) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, limit int, offset int) ([]models.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, name string, role string, active bool) (models.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID) error
}

type NotificationStore interface {
	ListForUser(ctx context.Context, recipientUserID uuid.UUID, unreadOnly bool, limit int, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID uuid.UUID, recipientUserID uuid.UUID) (models.Notification, error)
}

type AuditStore interface {
	WriteAuditLog(ctx context.Context, entries []models.AuditLog) error
}

type EventPublisher interface {
	PublishBestEffort(ctx context.Context, topic string, env events.Envelope)
}

type TokenIssuer interface {
	Sign(userID uuid.UUID, email string, name string, roles []string) (string, time.Time, error)
	Verify(ctx context.Context, rawToken string) (authx.AuthContext, error)
	JWKS() []byte
}

type Handlers struct {
	Cfg           config.Config
	Logger        logx.Logger
	Users         UserStore
	Notifications NotificationStore
	Audit         AuditStore
	Issuer        TokenIssuer
	Publisher     EventPublisher
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/logout", h.logout)
	mux.HandleFunc("GET /auth/me", h.me)
	mux.HandleFunc("GET /.well-known/jwks.json", h.jwks)

	mux.HandleFunc("POST /users", authx.RequireRoles(h.createUser, authx.RoleAdmin))
	mux.HandleFunc("GET /users", authx.RequireRoles(h.listUsers, authx.RoleAdmin))
	mux.HandleFunc("GET /users/{id}", h.getUser)
	mux.HandleFunc("PUT /users/{id}", authx.RequireRoles(h.updateUser, authx.RoleAdmin))
	mux.HandleFunc("DELETE /users/{id}", authx.RequireRoles(h.deleteUser, authx.RoleAdmin))

	mux.HandleFunc("GET /notifications", h.listNotifications)
	mux.HandleFunc("POST /notifications/{id}/read", h.readNotification)
}

func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(name))
}
