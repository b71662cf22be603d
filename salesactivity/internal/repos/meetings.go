package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"securities-sales-crm/salesactivity/internal/models"
)

var ErrMeetingNotFound = errors.New("meeting not found")

type MeetingsRepo struct {
	pool *pgxpool.Pool
}

func NewMeetingsRepo(pool *pgxpool.Pool) *MeetingsRepo {
	return &MeetingsRepo{pool: pool}
}

const meetingColumns = `meeting_id, customer_id, owner_user_id, title, notes, scheduled_at, created_at, updated_at`

func scanMeeting(row pgx.Row) (models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(&m.MeetingID, &m.CustomerID, &m.OwnerUserID, &m.Title, &m.Notes, &m.ScheduledAt, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Meeting{}, ErrMeetingNotFound
	}
	return m, err
}

func (r *MeetingsRepo) CreateMeeting(ctx context.Context, customerID uuid.UUID, ownerUserID uuid.UUID, title string, notes string, scheduledAt time.Time) (models.Meeting, error) {
	now := time.Now().UTC()
	return scanMeeting(r.pool.QueryRow(ctx, `
		INSERT INTO meetings (meeting_id, customer_id, owner_user_id, title, notes, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+meetingColumns+`
	`, uuid.New(), customerID, ownerUserID, title, notes, scheduledAt.UTC(), now))
}

func (r *MeetingsRepo) GetMeetingByID(ctx context.Context, meetingID uuid.UUID) (models.Meeting, error) {
	return scanMeeting(r.pool.QueryRow(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE meeting_id = $1
	`, meetingID))
}

func (r *MeetingsRepo) ListMeetings(ctx context.Context, customerID *uuid.UUID, limit int, offset int) ([]models.Meeting, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + meetingColumns + `
		FROM meetings`
	args := []any{limit, offset}
	if customerID != nil {
		query += `
		WHERE customer_id = $3`
		args = append(args, *customerID)
	}
	query += `
		ORDER BY scheduled_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

func (r *MeetingsRepo) UpdateMeeting(ctx context.Context, meetingID uuid.UUID, title string, notes string, scheduledAt time.Time) (models.Meeting, error) {
	return scanMeeting(r.pool.QueryRow(ctx, `
		UPDATE meetings
		SET title = $2, notes = $3, scheduled_at = $4, updated_at = $5
		WHERE meeting_id = $1
		RETURNING `+meetingColumns+`
	`, meetingID, title, notes, scheduledAt.UTC(), time.Now().UTC()))
}

func (r *MeetingsRepo) DeleteMeeting(ctx context.Context, meetingID uuid.UUID) (models.Meeting, error) {
	return scanMeeting(r.pool.QueryRow(ctx, `
		DELETE FROM meetings
		WHERE meeting_id = $1
		RETURNING `+meetingColumns+`
	`, meetingID))
}

// DeleteByCustomer backs the customer.deleted cascade; running it twice
// deletes zero rows the second time.
func (r *MeetingsRepo) DeleteByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM meetings WHERE customer_id = $1`, customerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByOwner backs the user.deleted cascade.
func (r *MeetingsRepo) DeleteByOwner(ctx context.Context, ownerUserID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM meetings WHERE owner_user_id = $1`, ownerUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
