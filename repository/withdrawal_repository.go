package repository

import (
	"context"
	"fmt"

	"spinearn/database"
	"spinearn/models"
)

// WithdrawalRepository implements the WithdrawalRepository interface
type WithdrawalRepository struct {
	q queryable
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *database.DB) *WithdrawalRepository {
	return &WithdrawalRepository{q: db.Pool}
}

// newWithdrawalRepositoryWithTx creates a new withdrawal repository with a transaction
func newWithdrawalRepositoryWithTx(tx queryable) *WithdrawalRepository {
	return &WithdrawalRepository{q: tx}
}

// Create inserts a pending withdrawal request
func (r *WithdrawalRepository) Create(ctx context.Context, request *models.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawals (user_id, username, email, points_withdrawn, withdrawal_method, wallet_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, created_at
	`

	var status string
	err := r.q.QueryRow(ctx, query,
		request.UserID,
		request.Username,
		request.Email,
		request.PointsWithdrawn,
		request.Method,
		request.Details,
	).Scan(&request.ID, &status, &request.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal for user %d: %w", request.UserID, err)
	}

	request.Status = models.WithdrawalStatus(status)
	return nil
}

// GetByUser returns a user's withdrawal requests, newest first
func (r *WithdrawalRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.WithdrawalRequest, error) {
	query := `
		SELECT id, user_id, username, email, points_withdrawn, withdrawal_method, wallet_address, status, created_at
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawals for user %d: %w", userID, err)
	}
	defer rows.Close()

	requests := []*models.WithdrawalRequest{}
	for rows.Next() {
		var request models.WithdrawalRequest
		var status string

		err := rows.Scan(
			&request.ID,
			&request.UserID,
			&request.Username,
			&request.Email,
			&request.PointsWithdrawn,
			&request.Method,
			&request.Details,
			&status,
			&request.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}

		request.Status = models.WithdrawalStatus(status)
		requests = append(requests, &request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate withdrawals: %w", err)
	}

	return requests, nil
}
