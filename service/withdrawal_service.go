package service

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"spinearn/events"
	"spinearn/models"
)

// ListLimit caps the withdrawal and balance history listings
const ListLimit = 50

// withdrawalService implements the WithdrawalService interface
type withdrawalService struct {
	uowFactory UnitOfWorkFactory
	policy     *DailyResetPolicy
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(uowFactory UnitOfWorkFactory, policy *DailyResetPolicy) WithdrawalService {
	return &withdrawalService{
		uowFactory: uowFactory,
		policy:     policy,
	}
}

// RequestWithdrawal deducts a tier amount and records a pending request.
// The deduction is conditional on the stored balance, so two concurrent
// requests can never both spend the same points.
func (s *withdrawalService) RequestWithdrawal(ctx context.Context, userID int64, amount int64, method, details string) (*WithdrawalResult, error) {
	method = strings.TrimSpace(method)
	details = strings.TrimSpace(details)

	tier, ok := s.policy.Catalog().Tier(amount)
	if !ok {
		return nil, newError(KindValidation, "Invalid withdrawal amount.")
	}
	if method == "" || details == "" {
		return nil, newError(KindValidation, "Method and details required.")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	users := uow.UserRepository()
	user, _, err := s.policy.Load(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	if tier.OneTime && user.UsedLowWithdrawalTier {
		return nil, newError(KindAlreadyDone, "%d points option already used.", tier.Amount)
	}
	if user.Points < amount {
		return nil, newError(KindInsufficientFunds, "Not enough points.")
	}

	applied, err := users.DeductPoints(ctx, userID, amount)
	if err != nil {
		return nil, internalError(err, "failed to deduct points for user %d", userID)
	}
	if !applied {
		return nil, newError(KindInsufficientFunds, "Withdrawal failed (insufficient points or error).")
	}

	if tier.OneTime {
		applied, err := users.MarkLowTierUsed(ctx, userID)
		if err != nil {
			return nil, internalError(err, "failed to mark low tier used for user %d", userID)
		}
		if !applied {
			return nil, newError(KindAlreadyDone, "%d points option already used.", tier.Amount)
		}
		user.UsedLowWithdrawalTier = true
	}

	request := &models.WithdrawalRequest{
		UserID:          userID,
		Username:        user.Username,
		Email:           user.Email,
		PointsWithdrawn: amount,
		Method:          method,
		Details:         details,
	}
	if err := uow.WithdrawalRepository().Create(ctx, request); err != nil {
		return nil, internalError(err, "failed to create withdrawal request")
	}

	before := user.Points
	user.Points -= amount

	relatedType := models.RelatedTypeWithdrawal
	history := &models.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   before,
		BalanceAfter:    user.Points,
		ChangeAmount:    -amount,
		TransactionType: models.TransactionTypeWithdrawal,
		TransactionMetadata: map[string]any{
			"method": method,
		},
		RelatedID:   &request.ID,
		RelatedType: &relatedType,
	}
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, internalError(err, "failed to record withdrawal")
	}

	uow.EventBus().Publish(events.WithdrawalRequestedEvent{
		WithdrawalID: request.ID,
		UserID:       userID,
		Username:     user.Username,
		Email:        user.Email,
		Points:       amount,
		Method:       method,
		Details:      details,
	})

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}

	log.WithFields(log.Fields{
		"userID":       userID,
		"withdrawalID": request.ID,
		"points":       amount,
	}).Info("Withdrawal requested")

	return &WithdrawalResult{Request: request, User: user}, nil
}

// GetWithdrawals lists the user's requests, newest first
func (s *withdrawalService) GetWithdrawals(ctx context.Context, userID int64) ([]*models.WithdrawalRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	requests, err := uow.WithdrawalRepository().GetByUser(ctx, userID, ListLimit)
	if err != nil {
		return nil, internalError(err, "failed to list withdrawals for user %d", userID)
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	return requests, nil
}
