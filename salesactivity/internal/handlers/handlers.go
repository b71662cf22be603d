// Package handlers implements the sales-activity HTTP surface: meetings and
// follow-up tasks. Creates check customer existence synchronously against
// the customer service; every committed write publishes a sales event
// best-effort.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"securities-sales-crm/salesactivity/internal/models"
	"securities-sales-crm/shared/authx"
	customerclient "securities-sales-crm/shared/clients/customer"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/httpx"
	"securities-sales-crm/shared/logx"
)

const maxBodyBytes = 1 << 20

type MeetingStore interface {
	CreateMeeting(ctx context.Context, customerID uuid.UUID, ownerUserID uuid.UUID, title string, notes string, scheduledAt time.Time) (models.Meeting, error)
	GetMeetingByID(ctx context.Context, meetingID uuid.UUID) (models.Meeting, error)
	ListMeetings(ctx context.Context, customerID *uuid.UUID, limit int, offset int) ([]models.Meeting, error)
	UpdateMeeting(ctx context.Context, meetingID uuid.UUID, title string, notes string, scheduledAt time.Time) (models.Meeting, error)
	DeleteMeeting(ctx context.Context, meetingID uuid.UUID) (models.Meeting, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, customerID uuid.UUID, assigneeUserID uuid.UUID, title string, description string, dueAt *time.Time) (models.Task, error)
	GetTaskByID(ctx context.Context, taskID uuid.UUID) (models.Task, error)
	ListTasks(ctx context.Context, customerID *uuid.UUID, assigneeUserID *uuid.UUID, limit int, offset int) ([]models.Task, error)
	UpdateTask(ctx context.Context, taskID uuid.UUID, title string, description string, dueAt *time.Time) (models.Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) (models.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID) (models.Task, error)
}

type CustomerChecker interface {
	Exists(ctx context.Context, bearerToken string, customerID uuid.UUID) (bool, error)
}

type EventPublisher interface {
	PublishBestEffort(ctx context.Context, topic string, env events.Envelope)
}

type Handlers struct {
	Logger    logx.Logger
	Meetings  MeetingStore
	Tasks     TaskStore
	Customers CustomerChecker
	Publisher EventPublisher
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /meetings", h.createMeeting)
	mux.HandleFunc("GET /meetings", h.listMeetings)
	mux.HandleFunc("GET /meetings/{id}", h.getMeeting)
	mux.HandleFunc("PUT /meetings/{id}", h.updateMeeting)
	mux.HandleFunc("DELETE /meetings/{id}", h.deleteMeeting)

	mux.HandleFunc("POST /tasks", h.createTask)
	mux.HandleFunc("GET /tasks", h.listTasks)
	mux.HandleFunc("GET /tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /tasks/{id}", h.updateTask)
	mux.HandleFunc("POST /tasks/{id}/complete", h.completeTask)
	mux.HandleFunc("DELETE /tasks/{id}", h.deleteTask)
}

// requireCustomer translates the cross-service existence check into the
// error taxonomy: absent customer is 404, unreachable customer service is
// 502, never an indefinite hang (the client carries its own timeout).
func (h *Handlers) requireCustomer(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) bool {
	exists, err := h.Customers.Exists(r.Context(), authx.BearerToken(r), customerID)
	if err != nil {
		if errors.Is(err, customerclient.ErrUnavailable) {
			httpx.WriteError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "customer service unavailable", nil)
			return false
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to check customer", nil)
		return false
	}
	if !exists {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
		return false
	}
	return true
}

func (h *Handlers) publishMeetingEvent(r *http.Request, eventType string, m models.Meeting) {
	env, err := events.New(eventType, events.MeetingData{
		MeetingID:   m.MeetingID,
		CustomerID:  m.CustomerID,
		OwnerUserID: m.OwnerUserID,
		Title:       m.Title,
	})
	if err != nil {
		h.Logger.Warn(r.Context(), "event_encode_failed", "failed to encode event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	h.Publisher.PublishBestEffort(r.Context(), events.TopicSalesEvents, env)
}

func (h *Handlers) publishTaskEvent(r *http.Request, eventType string, t models.Task) {
	env, err := events.New(eventType, events.TaskData{
		TaskID:         t.TaskID,
		CustomerID:     t.CustomerID,
		AssigneeUserID: t.AssigneeUserID,
		Title:          t.Title,
		DueAt:          t.DueAt,
	})
	if err != nil {
		h.Logger.Warn(r.Context(), "event_encode_failed", "failed to encode event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	h.Publisher.PublishBestEffort(r.Context(), events.TopicSalesEvents, env)
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

func optionalUUIDQuery(r *http.Request, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &id, nil
}
