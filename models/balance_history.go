package models

import (
	"time"
)

// TransactionType represents the type of balance change
type TransactionType string

const (
	TransactionTypeSpinReward            TransactionType = "spin_reward"
	TransactionTypeAdReward              TransactionType = "ad_reward"
	TransactionTypeTaskReward            TransactionType = "task_reward"
	TransactionTypeReferralBonusReferred TransactionType = "referral_bonus_referred"
	TransactionTypeReferralBonusReferrer TransactionType = "referral_bonus_referrer"
	TransactionTypeWithdrawal            TransactionType = "withdrawal"
)

// RelatedType represents what type of entity the related_id refers to
type RelatedType string

const (
	RelatedTypeWithdrawal RelatedType = "withdrawal"
	RelatedTypeUser       RelatedType = "user"
	RelatedTypeTask       RelatedType = "task"
)

// BalanceHistory represents a historical balance change
type BalanceHistory struct {
	ID                  int64           `db:"id" json:"id"`
	UserID              int64           `db:"user_id" json:"userId"`
	BalanceBefore       int64           `db:"balance_before" json:"balanceBefore"`
	BalanceAfter        int64           `db:"balance_after" json:"balanceAfter"`
	ChangeAmount        int64           `db:"change_amount" json:"changeAmount"`
	TransactionType     TransactionType `db:"transaction_type" json:"transactionType"`
	TransactionMetadata map[string]any  `db:"transaction_metadata" json:"metadata,omitempty"`
	RelatedID           *int64          `db:"related_id" json:"relatedId,omitempty"`
	RelatedType         *RelatedType    `db:"related_type" json:"relatedType,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
}
