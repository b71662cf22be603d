package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"securities-sales-crm/customer/internal/models"
)

var ErrCustomerNotFound = errors.New("customer not found")

type CustomersRepo struct {
	pool *pgxpool.Pool
}

func NewCustomersRepo(pool *pgxpool.Pool) *CustomersRepo {
	return &CustomersRepo{pool: pool}
}

const customerColumns = `customer_id, name, email, phone, risk_profile, owner_user_id, created_at, updated_at, deleted_at`

func scanCustomer(row pgx.Row) (models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.CustomerID, &c.Name, &c.Email, &c.Phone, &c.RiskProfile, &c.OwnerUserID, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Customer{}, ErrCustomerNotFound
	}
	return c, err
}

func (r *CustomersRepo) CreateCustomer(ctx context.Context, name string, email string, phone string, riskProfile string, ownerUserID uuid.UUID) (models.Customer, error) {
	now := time.Now().UTC()
	return scanCustomer(r.pool.QueryRow(ctx, `
		INSERT INTO customers (customer_id, name, email, phone, risk_profile, owner_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+customerColumns+`
	`, uuid.New(), name, email, phone, riskProfile, ownerUserID, now))
}

// GetCustomerByID only returns live rows; a soft-deleted customer reads as
// not found.
func (r *CustomersRepo) GetCustomerByID(ctx context.Context, customerID uuid.UUID) (models.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE customer_id = $1 AND deleted_at IS NULL
	`, customerID))
}

func (r *CustomersRepo) ListCustomers(ctx context.Context, ownerUserID *uuid.UUID, limit int, offset int) ([]models.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE deleted_at IS NULL`
	args := []any{limit, offset}
	if ownerUserID != nil {
		query += ` AND owner_user_id = $3`
		args = append(args, *ownerUserID)
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *CustomersRepo) UpdateCustomer(ctx context.Context, customerID uuid.UUID, name string, email string, phone string, riskProfile string) (models.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, risk_profile = $5, updated_at = $6
		WHERE customer_id = $1 AND deleted_at IS NULL
		RETURNING `+customerColumns+`
	`, customerID, name, email, phone, riskProfile, time.Now().UTC()))
}

// SoftDeleteCustomer is idempotent at the SQL level: a second delete matches
// no row and reports ErrCustomerNotFound without touching deleted_at.
func (r *CustomersRepo) SoftDeleteCustomer(ctx context.Context, customerID uuid.UUID) (models.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `
		UPDATE customers
		SET deleted_at = $2, updated_at = $2
		WHERE customer_id = $1 AND deleted_at IS NULL
		RETURNING `+customerColumns+`
	`, customerID, time.Now().UTC()))
}

// Exists backs the cross-service existence check; soft-deleted rows do not
// exist for referential purposes.
func (r *CustomersRepo) Exists(ctx context.Context, customerID uuid.UUID) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM customers WHERE customer_id = $1 AND deleted_at IS NULL
	`, customerID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
