package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"securities-sales-crm/identity/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/httpx"
)

var validRoles = map[string]bool{
	authx.RoleSales:      true,
	authx.RoleManager:    true,
	authx.RoleCompliance: true,
	authx.RoleAdmin:      true,
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active *bool  `json:"active"`
}

func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	switch {
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "valid email is required", nil)
		return
	case req.Name == "":
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required", nil)
		return
	case !validRoles[req.Role]:
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown role", nil)
		return
	case len(req.Password) < 8:
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "password must be at least 8 characters", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to hash password", nil)
		return
	}

	user, err := h.Users.CreateUser(r.Context(), req.Email, req.Name, req.Role, string(hash))
	if err != nil {
		if errors.Is(err, repos.ErrEmailTaken) {
			httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", "email already registered", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create user", nil)
		return
	}

	h.publishUserEvent(r, events.TypeUserCreated, user.UserID, user.Email, user.Name, user.Role)
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, err := h.Users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list users", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	userID, err := pathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid user id", nil)
		return
	}
	// non-admins may only read themselves
	if userID != auth.UserID && !auth.HasRole(authx.RoleAdmin) {
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
		return
	}

	user, err := h.Users.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repos.ErrUserNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load user", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid user id", nil)
		return
	}
	var req updateUserRequest
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if req.Name == "" || !validRoles[req.Role] || req.Active == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name, role and active are required", nil)
		return
	}

	user, err := h.Users.UpdateUser(r.Context(), userID, req.Name, req.Role, *req.Active)
	if err != nil {
		if errors.Is(err, repos.ErrUserNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update user", nil)
		return
	}

	h.publishUserEvent(r, events.TypeUserUpdated, user.UserID, user.Email, user.Name, user.Role)
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	auth, _ := authx.FromContext(r.Context())
	userID, err := pathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid user id", nil)
		return
	}
	if userID == auth.UserID {
		httpx.WriteError(w, r, http.StatusConflict, "CONFLICT", "cannot delete own account", nil)
		return
	}

	if err := h.Users.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, repos.ErrUserNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete user", nil)
		return
	}

	h.publishUserEvent(r, events.TypeUserDeleted, userID, "", "", "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) publishUserEvent(r *http.Request, eventType string, userID uuid.UUID, email string, name string, role string) {
	env, err := events.New(eventType, events.UserData{
		UserID:      userID,
		Email:       email,
		DisplayName: name,
		Role:        role,
	})
	if err != nil {
		h.Logger.Warn(r.Context(), "event_encode_failed", "failed to encode event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	h.Publisher.PublishBestEffort(r.Context(), events.TopicUserEvents, env)
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
