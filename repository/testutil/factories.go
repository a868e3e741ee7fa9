package testutil

import (
	"fmt"
	"strings"
	"time"

	"spinearn/catalog"
	"spinearn/models"
)

// CreateTestNewUser returns registration fields for a user created on the given day
func CreateTestNewUser(username string, today time.Time) *models.NewUser {
	return &models.NewUser{
		Username:         username,
		Email:            fmt.Sprintf("%s@example.com", strings.ToLower(username)),
		PasswordHash:     "hash-" + username,
		ReferralCode:     "AST" + strings.ToUpper(username),
		SpinsLeftToday:   catalog.MaxFreeSpinsPerDay,
		DailyTasksStatus: catalog.Default().NewTaskStatus(),
		LastActivityDate: today,
	}
}

// CreateTestBalanceHistory creates a test balance history entry
func CreateTestBalanceHistory(userID int64, transactionType models.TransactionType) *models.BalanceHistory {
	return &models.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   100,
		BalanceAfter:    120,
		ChangeAmount:    20,
		TransactionType: transactionType,
		TransactionMetadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestBalanceHistoryWithAmounts creates a test balance history with specific amounts
func CreateTestBalanceHistoryWithAmounts(userID int64, before, after int64, transactionType models.TransactionType) *models.BalanceHistory {
	history := CreateTestBalanceHistory(userID, transactionType)
	history.BalanceBefore = before
	history.BalanceAfter = after
	history.ChangeAmount = after - before
	return history
}

// CreateTestWithdrawal creates a withdrawal request for the user
func CreateTestWithdrawal(user *models.User, points int64) *models.WithdrawalRequest {
	return &models.WithdrawalRequest{
		UserID:          user.ID,
		Username:        user.Username,
		Email:           user.Email,
		PointsWithdrawn: points,
		Method:          "PayPal",
		Details:         user.Email,
	}
}
