package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"securities-sales-crm/identity/internal/models"
	"securities-sales-crm/identity/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/httpx"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "email and password are required", nil)
		return
	}

	user, err := h.Users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repos.ErrUserNotFound) {
			h.auditAuth(r, nil, req.Email, "login_failed")
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid credentials", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load user", nil)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.auditAuth(r, &user.UserID, user.Email, "login_failed")
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid credentials", nil)
		return
	}
	if !user.Active {
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "user is deactivated", nil)
		return
	}

	token, expiresAt, err := h.Issuer.Sign(user.UserID, user.Email, user.Name, []string{user.Role})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to issue token", nil)
		return
	}

	if err := h.Users.TouchLastLogin(r.Context(), user.UserID); err != nil {
		h.Logger.Warn(r.Context(), "last_login_update_failed", "failed to record last login",
			slog.String("user_id", user.UserID.String()),
			slog.String("error", err.Error()),
		)
	}
	h.auditAuth(r, &user.UserID, user.Email, "login")

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	// Tokens are stateless; logout only leaves an audit trail.
	h.auditAuth(r, &auth.UserID, auth.Email, "logout")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": auth.UserID,
		"email":   auth.Email,
		"name":    auth.Name,
		"roles":   auth.Roles,
	})
}

func (h *Handlers) jwks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.Issuer.JWKS())
}

// auditAuth writes the login/logout trail best-effort off the request
// goroutine; it is never allowed to fail or delay the HTTP response.
func (h *Handlers) auditAuth(r *http.Request, userID *uuid.UUID, email string, action string) {
	if !h.Cfg.AuditEnabled || h.Audit == nil {
		return
	}
	entry := models.AuditLog{
		OccurredAt:  time.Now().UTC(),
		ActorUserID: userID,
		Email:       email,
		Action:      action,
		RequestID:   httpx.RequestIDFromContext(r.Context()),
		ClientIP:    httpx.ClientIP(r),
		UserAgent:   strings.TrimSpace(r.UserAgent()),
		Details:     auditDetails(r),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.Audit.WriteAuditLog(ctx, []models.AuditLog{entry}); err != nil {
			h.Logger.Warn(context.Background(), "audit_write_failed", "audit write failed",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func auditDetails(r *http.Request) []byte {
	b, err := json.Marshal(map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	if err != nil {
		return nil
	}
	return b
}
