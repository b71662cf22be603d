package handlers

import (
	"errors"
	"net/http"

	"securities-sales-crm/identity/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/httpx"
)

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	limit, offset := pagination(r)
	unreadOnly := r.URL.Query().Get("unread") == "true"

	items, err := h.Notifications.ListForUser(r.Context(), auth.UserID, unreadOnly, limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list notifications", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handlers) readNotification(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	notificationID, err := pathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid notification id", nil)
		return
	}

	item, err := h.Notifications.MarkRead(r.Context(), notificationID, auth.UserID)
	if err != nil {
		if errors.Is(err, repos.ErrNotificationNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "notification not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to mark notification read", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}
