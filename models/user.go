package models

import (
	"time"
)

// User is the persisted per-user ledger record
type User struct {
	ID                    int64      `db:"user_id"`
	Username              string     `db:"username"`
	Email                 string     `db:"email"`
	PasswordHash          string     `db:"password_hash"`
	Points                int64      `db:"points"`
	SpinsLeftToday        int        `db:"spins_left_today"`
	AdsWatchedToday       int        `db:"ads_watched_today"`
	SpinAdsWatchedToday   int        `db:"spin_ads_watched_today"`
	DailyTasksStatus      TaskStatus `db:"daily_tasks_status"`
	UsedLowWithdrawalTier bool       `db:"used_low_withdrawal_tier"`
	LastActivityDate      *time.Time `db:"last_activity_date"` // UTC calendar date, nil until first activity
	ReferralCode          string     `db:"referral_code"`
	ReferredByUserID      *int64     `db:"referred_by_user_id"`
	TotalReferralsMade    int        `db:"total_referrals_made"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

// NewUser holds the fields set at registration
type NewUser struct {
	Username         string
	Email            string
	PasswordHash     string
	ReferralCode     string
	SpinsLeftToday   int
	DailyTasksStatus TaskStatus
	LastActivityDate time.Time
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.DailyTasksStatus = u.DailyTasksStatus.Clone()
	if u.LastActivityDate != nil {
		d := *u.LastActivityDate
		c.LastActivityDate = &d
	}
	if u.ReferredByUserID != nil {
		id := *u.ReferredByUserID
		c.ReferredByUserID = &id
	}
	return &c
}
