package repos

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"securities-sales-crm/opportunity/internal/approval"
	"securities-sales-crm/opportunity/internal/models"
)

var (
	ErrApprovalNotFound   = errors.New("approval not found")
	ErrApprovalNotPending = errors.New("approval is not pending")
)

type ApprovalsRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalsRepo(pool *pgxpool.Pool) *ApprovalsRepo {
	return &ApprovalsRepo{pool: pool}
}

const approvalColumns = `approval_id, customer_id, requester_id, product_name, amount, comment, status, approver_id, processed_at, created_at, updated_at`

func scanApproval(row pgx.Row) (models.ApprovalRequest, error) {
	var a models.ApprovalRequest
	err := row.Scan(&a.ApprovalID, &a.CustomerID, &a.RequesterID, &a.ProductName, &a.Amount, &a.Comment, &a.Status, &a.ApproverID, &a.ProcessedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ApprovalRequest{}, ErrApprovalNotFound
	}
	return a, err
}

func (r *ApprovalsRepo) CreateApproval(ctx context.Context, customerID uuid.UUID, requesterID uuid.UUID, productName string, amount decimal.Decimal, comment string) (models.ApprovalRequest, error) {
	now := time.Now().UTC()
	return scanApproval(r.pool.QueryRow(ctx, `
		INSERT INTO approval_requests (approval_id, customer_id, requester_id, product_name, amount, comment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+approvalColumns+`
	`, uuid.New(), customerID, requesterID, productName, amount, comment, approval.StatusPending, now))
}

func (r *ApprovalsRepo) GetApprovalByID(ctx context.Context, approvalID uuid.UUID) (models.ApprovalRequest, error) {
	return scanApproval(r.pool.QueryRow(ctx, `
		SELECT `+approvalColumns+`
		FROM approval_requests
		WHERE approval_id = $1
	`, approvalID))
}

func (r *ApprovalsRepo) ListApprovals(ctx context.Context, customerID *uuid.UUID, requesterID *uuid.UUID, status string, limit int, offset int) ([]models.ApprovalRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests
		WHERE 1=1`
	args := []any{limit, offset}
	next := 3
	if customerID != nil {
		args = append(args, *customerID)
		query += ` AND customer_id = $` + strconv.Itoa(next)
		next++
	}
	if requesterID != nil {
		args = append(args, *requesterID)
		query += ` AND requester_id = $` + strconv.Itoa(next)
		next++
	}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $` + strconv.Itoa(next)
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []models.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// Decide moves a PENDING request to APPROVED or REJECTED, stamping the
// approver and decision time. The status condition makes concurrent decisions
// race-safe: exactly one wins, the loser sees ErrApprovalNotPending.
func (r *ApprovalsRepo) Decide(ctx context.Context, approvalID uuid.UUID, approverID uuid.UUID, status string) (models.ApprovalRequest, error) {
	now := time.Now().UTC()
	a, err := scanApproval(r.pool.QueryRow(ctx, `
		UPDATE approval_requests
		SET status = $2, approver_id = $3, processed_at = $4, updated_at = $4
		WHERE approval_id = $1 AND status = $5
		RETURNING `+approvalColumns+`
	`, approvalID, status, approverID, now, approval.StatusPending))
	if errors.Is(err, ErrApprovalNotFound) {
		return models.ApprovalRequest{}, r.missOrNotPending(ctx, approvalID)
	}
	return a, err
}

// Recall moves a PENDING request to RECALLED without touching approver or
// decision fields.
func (r *ApprovalsRepo) Recall(ctx context.Context, approvalID uuid.UUID) (models.ApprovalRequest, error) {
	a, err := scanApproval(r.pool.QueryRow(ctx, `
		UPDATE approval_requests
		SET status = $2, updated_at = $3
		WHERE approval_id = $1 AND status = $4
		RETURNING `+approvalColumns+`
	`, approvalID, approval.StatusRecalled, time.Now().UTC(), approval.StatusPending))
	if errors.Is(err, ErrApprovalNotFound) {
		return models.ApprovalRequest{}, r.missOrNotPending(ctx, approvalID)
	}
	return a, err
}

// UpdateFields edits the mutable fields of a PENDING request.
func (r *ApprovalsRepo) UpdateFields(ctx context.Context, approvalID uuid.UUID, productName string, amount decimal.Decimal, comment string) (models.ApprovalRequest, error) {
	a, err := scanApproval(r.pool.QueryRow(ctx, `
		UPDATE approval_requests
		SET product_name = $2, amount = $3, comment = $4, updated_at = $5
		WHERE approval_id = $1 AND status = $6
		RETURNING `+approvalColumns+`
	`, approvalID, productName, amount, comment, time.Now().UTC(), approval.StatusPending))
	if errors.Is(err, ErrApprovalNotFound) {
		return models.ApprovalRequest{}, r.missOrNotPending(ctx, approvalID)
	}
	return a, err
}

// RecallPendingByCustomer is the customer.deleted cascade: every PENDING
// request against the customer is recalled with the cause appended to its
// comment. Terminal rows are untouched and a second run matches nothing.
func (r *ApprovalsRepo) RecallPendingByCustomer(ctx context.Context, customerID uuid.UUID, cause string) ([]models.ApprovalRequest, error) {
	return r.recallPendingWhere(ctx, `customer_id = $1`, customerID, cause)
}

// RecallPendingByRequester is the user.deleted cascade over the deleted
// user's own pending requests.
func (r *ApprovalsRepo) RecallPendingByRequester(ctx context.Context, requesterID uuid.UUID, cause string) ([]models.ApprovalRequest, error) {
	return r.recallPendingWhere(ctx, `requester_id = $1`, requesterID, cause)
}

func (r *ApprovalsRepo) recallPendingWhere(ctx context.Context, cond string, id uuid.UUID, cause string) ([]models.ApprovalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE approval_requests
		SET status = $2, comment = trim(concat_ws(' ', comment, $3)), updated_at = $4
		WHERE `+cond+` AND status = $5
		RETURNING `+approvalColumns+`
	`, id, approval.StatusRecalled, cause, time.Now().UTC(), approval.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recalled []models.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		recalled = append(recalled, a)
	}
	return recalled, rows.Err()
}

// missOrNotPending disambiguates a conditional-update miss: the row is either
// absent or already terminal. A failed follow-up read propagates as-is so a
// transient database error does not masquerade as not-found.
func (r *ApprovalsRepo) missOrNotPending(ctx context.Context, approvalID uuid.UUID) error {
	_, err := r.GetApprovalByID(ctx, approvalID)
	return disambiguateMiss(err, ErrApprovalNotFound, ErrApprovalNotPending)
}

func disambiguateMiss(getErr error, notFound error, conflict error) error {
	switch {
	case getErr == nil:
		return conflict
	case errors.Is(getErr, notFound):
		return notFound
	default:
		return getErr
	}
}
