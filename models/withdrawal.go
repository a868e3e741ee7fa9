package models

import (
	"time"
)

// WithdrawalStatus is the back-office state of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// WithdrawalRequest is a redemption of points. Only the status changes after
// creation, and only outside this service.
type WithdrawalRequest struct {
	ID              int64            `db:"id" json:"id"`
	UserID          int64            `db:"user_id" json:"userId"`
	Username        string           `db:"username" json:"username"`
	Email           string           `db:"email" json:"email"`
	PointsWithdrawn int64            `db:"points_withdrawn" json:"points"`
	Method          string           `db:"withdrawal_method" json:"method"`
	Details         string           `db:"wallet_address" json:"details"`
	Status          WithdrawalStatus `db:"status" json:"status"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
}
