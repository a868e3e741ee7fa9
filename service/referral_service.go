package service

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"spinearn/catalog"
	"spinearn/events"
	"spinearn/models"
)

// referralService implements the ReferralService interface
type referralService struct {
	uowFactory UnitOfWorkFactory
	policy     *DailyResetPolicy
}

// NewReferralService creates a new referral service
func NewReferralService(uowFactory UnitOfWorkFactory, policy *DailyResetPolicy) ReferralService {
	return &referralService{
		uowFactory: uowFactory,
		policy:     policy,
	}
}

// SubmitReferralCode links the user to the owner of code and credits both of
// them. Both credits commit together or not at all.
func (s *referralService) SubmitReferralCode(ctx context.Context, userID int64, code string) (*ReferralResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newError(KindValidation, "Referral code cannot be empty.")
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

	if user.ReferredByUserID != nil {
		return nil, newError(KindAlreadyDone, "Referral code already submitted.")
	}

	referrer, err := users.GetByReferralCode(ctx, code, userID)
	if err != nil {
		return nil, internalError(err, "failed to look up referral code")
	}
	if referrer == nil {
		return nil, newError(KindInvalidArgument, "Invalid referral code or self-referral.")
	}

	applied, err := users.SetReferredBy(ctx, userID, referrer.ID, catalog.PointsPerReferralForReferred)
	if err != nil {
		return nil, internalError(err, "failed to set referrer for user %d", userID)
	}
	if !applied {
		return nil, newError(KindAlreadyDone, "Referral code already submitted.")
	}

	referrerBalance, err := users.CreditReferrer(ctx, referrer.ID, catalog.PointsPerReferralForReferrer)
	if err != nil {
		return nil, internalError(err, "failed to credit referrer %d", referrer.ID)
	}

	before := user.Points
	user.Points += catalog.PointsPerReferralForReferred
	referrerID := referrer.ID
	user.ReferredByUserID = &referrerID

	relatedType := models.RelatedTypeUser
	referredHistory := &models.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   before,
		BalanceAfter:    user.Points,
		ChangeAmount:    catalog.PointsPerReferralForReferred,
		TransactionType: models.TransactionTypeReferralBonusReferred,
		TransactionMetadata: map[string]any{
			"referral_code": referrer.ReferralCode,
		},
		RelatedID:   &referrerID,
		RelatedType: &relatedType,
	}
	if err := RecordBalanceChange(ctx, uow, referredHistory); err != nil {
		return nil, internalError(err, "failed to record referral bonus")
	}

	referredID := userID
	referrerHistory := &models.BalanceHistory{
		UserID:          referrer.ID,
		BalanceBefore:   referrerBalance - catalog.PointsPerReferralForReferrer,
		BalanceAfter:    referrerBalance,
		ChangeAmount:    catalog.PointsPerReferralForReferrer,
		TransactionType: models.TransactionTypeReferralBonusReferrer,
		TransactionMetadata: map[string]any{
			"referred_username": user.Username,
		},
		RelatedID:   &referredID,
		RelatedType: &relatedType,
	}
	if err := RecordBalanceChange(ctx, uow, referrerHistory); err != nil {
		return nil, internalError(err, "failed to record referrer bonus")
	}

	uow.EventBus().Publish(events.ReferralAcceptedEvent{
		ReferredUserID: userID,
		ReferrerUserID: referrer.ID,
		ReferredBonus:  catalog.PointsPerReferralForReferred,
		ReferrerBonus:  catalog.PointsPerReferralForReferrer,
	})

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}

	log.WithFields(log.Fields{
		"userID":     userID,
		"referrerID": referrer.ID,
	}).Info("Referral accepted")

	return &ReferralResult{
		ReferrerUsername: referrer.Username,
		ReferredBonus:    catalog.PointsPerReferralForReferred,
		ReferrerBonus:    catalog.PointsPerReferralForReferrer,
		User:             user,
	}, nil
}
