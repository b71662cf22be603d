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

	"securities-sales-crm/salesactivity/internal/models"
	"securities-sales-crm/salesactivity/internal/repos"
	"securities-sales-crm/shared/authx"
	customerclient "securities-sales-crm/shared/clients/customer"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
)

type fakeMeetings struct {
	byID map[uuid.UUID]models.Meeting
}

func newFakeMeetings() *fakeMeetings {
	return &fakeMeetings{byID: map[uuid.UUID]models.Meeting{}}
}

func (f *fakeMeetings) CreateMeeting(_ context.Context, customerID uuid.UUID, ownerUserID uuid.UUID, title string, notes string, scheduledAt time.Time) (models.Meeting, error) {
	m := models.Meeting{MeetingID: uuid.New(), CustomerID: customerID, OwnerUserID: ownerUserID, Title: title, Notes: notes, ScheduledAt: scheduledAt, CreatedAt: time.Now().UTC()}
	f.byID[m.MeetingID] = m
	return m, nil
}

func (f *fakeMeetings) GetMeetingByID(_ context.Context, meetingID uuid.UUID) (models.Meeting, error) {
	m, ok := f.byID[meetingID]
	if !ok {
		return models.Meeting{}, repos.ErrMeetingNotFound
	}
	return m, nil
}

func (f *fakeMeetings) ListMeetings(context.Context, *uuid.UUID, int, int) ([]models.Meeting, error) {
	var out []models.Meeting
	for _, m := range f.byID {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMeetings) UpdateMeeting(_ context.Context, meetingID uuid.UUID, title string, notes string, scheduledAt time.Time) (models.Meeting, error) {
	m, ok := f.byID[meetingID]
	if !ok {
		return models.Meeting{}, repos.ErrMeetingNotFound
	}
	m.Title, m.Notes, m.ScheduledAt = title, notes, scheduledAt
	f.byID[meetingID] = m
	return m, nil
}

func (f *fakeMeetings) DeleteMeeting(_ context.Context, meetingID uuid.UUID) (models.Meeting, error) {
	m, ok := f.byID[meetingID]
	if !ok {
		return models.Meeting{}, repos.ErrMeetingNotFound
	}
	delete(f.byID, meetingID)
	return m, nil
}

type fakeTasks struct {
	byID map[uuid.UUID]models.Task
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{byID: map[uuid.UUID]models.Task{}}
}

func (f *fakeTasks) CreateTask(_ context.Context, customerID uuid.UUID, assigneeUserID uuid.UUID, title string, description string, dueAt *time.Time) (models.Task, error) {
	t := models.Task{TaskID: uuid.New(), CustomerID: customerID, AssigneeUserID: assigneeUserID, Title: title, Description: description, Status: models.TaskStatusOpen, DueAt: dueAt, CreatedAt: time.Now().UTC()}
	f.byID[t.TaskID] = t
	return t, nil
}

func (f *fakeTasks) GetTaskByID(_ context.Context, taskID uuid.UUID) (models.Task, error) {
	t, ok := f.byID[taskID]
	if !ok {
		return models.Task{}, repos.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeTasks) ListTasks(context.Context, *uuid.UUID, *uuid.UUID, int, int) ([]models.Task, error) {
	var out []models.Task
	for _, t := range f.byID {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTasks) UpdateTask(_ context.Context, taskID uuid.UUID, title string, description string, dueAt *time.Time) (models.Task, error) {
	t, ok := f.byID[taskID]
	if !ok {
		return models.Task{}, repos.ErrTaskNotFound
	}
	if t.Status == models.TaskStatusCompleted {
		return models.Task{}, repos.ErrTaskCompleted
	}
	t.Title, t.Description, t.DueAt = title, description, dueAt
	f.byID[taskID] = t
	return t, nil
}

func (f *fakeTasks) CompleteTask(_ context.Context, taskID uuid.UUID) (models.Task, error) {
	t, ok := f.byID[taskID]
	if !ok {
		return models.Task{}, repos.ErrTaskNotFound
	}
	if t.Status == models.TaskStatusCompleted {
		return models.Task{}, repos.ErrTaskCompleted
	}
	t.Status = models.TaskStatusCompleted
	f.byID[taskID] = t
	return t, nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, taskID uuid.UUID) (models.Task, error) {
	t, ok := f.byID[taskID]
	if !ok {
		return models.Task{}, repos.ErrTaskNotFound
	}
	delete(f.byID, taskID)
	return t, nil
}

type fakeCustomerChecker struct {
	known map[uuid.UUID]bool
	down  bool
}

func (f *fakeCustomerChecker) Exists(_ context.Context, _ string, customerID uuid.UUID) (bool, error) {
	if f.down {
		return false, customerclient.ErrUnavailable
	}
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

func newTestHandlers(checker *fakeCustomerChecker) (*Handlers, *fakeMeetings, *fakeTasks, *recordingPublisher) {
	meetings := newFakeMeetings()
	tasks := newFakeTasks()
	publisher := &recordingPublisher{}
	h := &Handlers{
		Logger:    logx.New("salesactivity", "test", "", "error"),
		Meetings:  meetings,
		Tasks:     tasks,
		Customers: checker,
		Publisher: publisher,
	}
	return h, meetings, tasks, publisher
}

func authedAs(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := authx.WithAuth(r.Context(), authx.AuthContext{UserID: userID, Roles: []string{authx.RoleSales}})
	return r.WithContext(ctx)
}

func TestCreateTaskDefaultsAssigneeToCaller(t *testing.T) {
	customerID := uuid.New()
	caller := uuid.New()
	h, _, _, publisher := newTestHandlers(&fakeCustomerChecker{known: map[uuid.UUID]bool{customerID: true}})

	body, _ := json.Marshal(map[string]any{"customer_id": customerID, "title": "Call back about bond ladder"})
	req := authedAs(httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body)), caller)
	rec := httptest.NewRecorder()
	h.createTask(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, publisher.published, 1)
	require.Equal(t, events.TopicSalesEvents, publisher.published[0].Topic)
	require.Equal(t, events.TypeTaskCreated, publisher.published[0].Env.EventType)

	var data events.TaskData
	require.NoError(t, json.Unmarshal(publisher.published[0].Env.Data, &data))
	require.Equal(t, caller, data.AssigneeUserID)
}

func TestCreateTaskUnknownCustomerIsNotFound(t *testing.T) {
	h, _, _, publisher := newTestHandlers(&fakeCustomerChecker{known: map[uuid.UUID]bool{}})

	body, _ := json.Marshal(map[string]any{"customer_id": uuid.New(), "title": "Follow up"})
	req := authedAs(httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	h.createTask(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, publisher.published)
}

func TestCreateMeetingCustomerServiceDownIsBadGateway(t *testing.T) {
	h, _, _, publisher := newTestHandlers(&fakeCustomerChecker{down: true})

	body, _ := json.Marshal(map[string]any{"customer_id": uuid.New(), "title": "Quarterly review", "scheduled_at": time.Now().Add(48 * time.Hour)})
	req := authedAs(httptest.NewRequest(http.MethodPost, "/meetings", bytes.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	h.createMeeting(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Empty(t, publisher.published)
}

func TestCompleteTaskTwiceConflicts(t *testing.T) {
	customerID := uuid.New()
	h, _, tasks, publisher := newTestHandlers(&fakeCustomerChecker{known: map[uuid.UUID]bool{customerID: true}})

	task, err := tasks.CreateTask(context.Background(), customerID, uuid.New(), "Send prospectus", "", nil)
	require.NoError(t, err)

	req := authedAs(httptest.NewRequest(http.MethodPost, "/tasks/"+task.TaskID.String()+"/complete", nil), uuid.New())
	req.SetPathValue("id", task.TaskID.String())
	rec := httptest.NewRecorder()
	h.completeTask(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = authedAs(httptest.NewRequest(http.MethodPost, "/tasks/"+task.TaskID.String()+"/complete", nil), uuid.New())
	req.SetPathValue("id", task.TaskID.String())
	rec = httptest.NewRecorder()
	h.completeTask(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	// exactly one task.completed for the pair
	require.Len(t, publisher.published, 1)
	require.Equal(t, events.TypeTaskCompleted, publisher.published[0].Env.EventType)
}

func TestUpdateCompletedTaskConflicts(t *testing.T) {
	customerID := uuid.New()
	h, _, tasks, _ := newTestHandlers(&fakeCustomerChecker{known: map[uuid.UUID]bool{customerID: true}})

	task, err := tasks.CreateTask(context.Background(), customerID, uuid.New(), "Prep deck", "", nil)
	require.NoError(t, err)
	_, err = tasks.CompleteTask(context.Background(), task.TaskID)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{"title": "Prep deck v2"})
	req := authedAs(httptest.NewRequest(http.MethodPut, "/tasks/"+task.TaskID.String(), bytes.NewReader(body)), uuid.New())
	req.SetPathValue("id", task.TaskID.String())
	rec := httptest.NewRecorder()
	h.updateTask(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestMeetingLifecyclePublishesEachTransition(t *testing.T) {
	customerID := uuid.New()
	owner := uuid.New()
	h, _, _, publisher := newTestHandlers(&fakeCustomerChecker{known: map[uuid.UUID]bool{customerID: true}})

	body, _ := json.Marshal(map[string]any{"customer_id": customerID, "title": "Kickoff", "scheduled_at": time.Now().Add(24 * time.Hour)})
	req := authedAs(httptest.NewRequest(http.MethodPost, "/meetings", bytes.NewReader(body)), owner)
	rec := httptest.NewRecorder()
	h.createMeeting(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Meeting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body, _ = json.Marshal(map[string]any{"title": "Kickoff (moved)", "scheduled_at": time.Now().Add(72 * time.Hour)})
	req = authedAs(httptest.NewRequest(http.MethodPut, "/meetings/"+created.MeetingID.String(), bytes.NewReader(body)), owner)
	req.SetPathValue("id", created.MeetingID.String())
	rec = httptest.NewRecorder()
	h.updateMeeting(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = authedAs(httptest.NewRequest(http.MethodDelete, "/meetings/"+created.MeetingID.String(), nil), owner)
	req.SetPathValue("id", created.MeetingID.String())
	rec = httptest.NewRecorder()
	h.deleteMeeting(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Len(t, publisher.published, 3)
	require.Equal(t, events.TypeMeetingCreated, publisher.published[0].Env.EventType)
	require.Equal(t, events.TypeMeetingUpdated, publisher.published[1].Env.EventType)
	require.Equal(t, events.TypeMeetingDeleted, publisher.published[2].Env.EventType)
}

func TestCreateMeetingValidation(t *testing.T) {
	h, _, _, publisher := newTestHandlers(&fakeCustomerChecker{})

	body, _ := json.Marshal(map[string]any{"customer_id": uuid.New(), "title": "   "})
	req := authedAs(httptest.NewRequest(http.MethodPost, "/meetings", bytes.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	h.createMeeting(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, publisher.published)
}
