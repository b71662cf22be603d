package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"securities-sales-crm/salesactivity/internal/repos"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/httpx"
)

type meetingRequest struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	Title       string    `json:"title"`
	Notes       string    `json:"notes"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (req *meetingRequest) validate() error {
	req.Title = strings.TrimSpace(req.Title)
	req.Notes = strings.TrimSpace(req.Notes)
	if req.Title == "" {
		return errors.New("title is required")
	}
	if req.ScheduledAt.IsZero() {
		return errors.New("scheduled_at is required")
	}
	return nil
}

func (h *Handlers) createMeeting(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	var req meetingRequest
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if req.CustomerID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "customer_id is required", nil)
		return
	}
	if err := req.validate(); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if !h.requireCustomer(w, r, req.CustomerID) {
		return
	}

	meeting, err := h.Meetings.CreateMeeting(r.Context(), req.CustomerID, auth.UserID, req.Title, req.Notes, req.ScheduledAt)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create meeting", nil)
		return
	}

	h.publishMeetingEvent(r, events.TypeMeetingCreated, meeting)
	httpx.WriteJSON(w, http.StatusCreated, meeting)
}

func (h *Handlers) listMeetings(w http.ResponseWriter, r *http.Request) {
	customerID, err := optionalUUIDQuery(r, "customer_id")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	limit, offset := pagination(r)

	meetings, err := h.Meetings.ListMeetings(r.Context(), customerID, limit, offset)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list meetings", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"meetings": meetings})
}

func (h *Handlers) getMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid meeting id", nil)
		return
	}
	meeting, err := h.Meetings.GetMeetingByID(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, repos.ErrMeetingNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "meeting not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load meeting", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meeting)
}

func (h *Handlers) updateMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid meeting id", nil)
		return
	}
	var req meetingRequest
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	if err := req.validate(); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	meeting, err := h.Meetings.UpdateMeeting(r.Context(), meetingID, req.Title, req.Notes, req.ScheduledAt)
	if err != nil {
		if errors.Is(err, repos.ErrMeetingNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "meeting not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update meeting", nil)
		return
	}

	h.publishMeetingEvent(r, events.TypeMeetingUpdated, meeting)
	httpx.WriteJSON(w, http.StatusOK, meeting)
}

func (h *Handlers) deleteMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid meeting id", nil)
		return
	}
	meeting, err := h.Meetings.DeleteMeeting(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, repos.ErrMeetingNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "meeting not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete meeting", nil)
		return
	}

	h.publishMeetingEvent(r, events.TypeMeetingDeleted, meeting)
	w.WriteHeader(http.StatusNoContent)
}
