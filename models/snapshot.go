package models

// UserSnapshot is the client-facing view of a user's ledger state
type UserSnapshot struct {
	UserID                int64      `json:"user_id"`
	Username              string     `json:"username"`
	Email                 string     `json:"email"`
	Points                int64      `json:"points"`
	SpinsLeftToday        int        `json:"spins_left_today"`
	AdsWatchedToday       int        `json:"ads_watched_today"`
	SpinAdsWatchedToday   int        `json:"spin_ads_watched_today"`
	ReferralCode          string     `json:"referral_code"`
	ReferredByUserID      *int64     `json:"referred_by_user_id"`
	TotalReferralsMade    int        `json:"total_referrals_made"`
	DailyTasksStatus      TaskStatus `json:"daily_tasks_status"`
	UsedLowWithdrawalTier bool       `json:"used_low_withdrawal_tier"`
	LastActivityDate      string     `json:"last_activity_date,omitempty"`
}

// Snapshot builds the client-facing view of the user
func (u *User) Snapshot() *UserSnapshot {
	s := &UserSnapshot{
		UserID:                u.ID,
		Username:              u.Username,
		Email:                 u.Email,
		Points:                u.Points,
		SpinsLeftToday:        u.SpinsLeftToday,
		AdsWatchedToday:       u.AdsWatchedToday,
		SpinAdsWatchedToday:   u.SpinAdsWatchedToday,
		ReferralCode:          u.ReferralCode,
		ReferredByUserID:      u.ReferredByUserID,
		TotalReferralsMade:    u.TotalReferralsMade,
		DailyTasksStatus:      u.DailyTasksStatus.Clone(),
		UsedLowWithdrawalTier: u.UsedLowWithdrawalTier,
	}
	if u.LastActivityDate != nil {
		s.LastActivityDate = u.LastActivityDate.Format("2006-01-02")
	}
	return s
}
