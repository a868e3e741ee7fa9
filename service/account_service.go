package service

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"spinearn/catalog"
	"spinearn/events"
	"spinearn/models"
)

const (
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 6

	// MaxPasswordLength is the bcrypt input limit in bytes
	MaxPasswordLength = 72

	// ReferralCodePrefix starts every generated referral code
	ReferralCodePrefix = "AST"

	maxReferralCodeAttempts = 1000
)

// accountService implements the AccountService interface
type accountService struct {
	uowFactory UnitOfWorkFactory
	policy     *DailyResetPolicy
	hasher     PasswordHasher
}

// NewAccountService creates a new account service
func NewAccountService(uowFactory UnitOfWorkFactory, policy *DailyResetPolicy, hasher PasswordHasher) AccountService {
	return &accountService{
		uowFactory: uowFactory,
		policy:     policy,
		hasher:     hasher,
	}
}

// BaseReferralCode derives a referral code from the alphanumeric characters of a username
func BaseReferralCode(username string) string {
	var b strings.Builder
	b.WriteString(ReferralCodePrefix)
	for _, r := range username {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidEmail reports whether s is a bare email address
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// Register creates a new user with fresh daily limits
func (s *accountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)

	if username == "" || email == "" || input.Password == "" || input.ConfirmPassword == "" {
		return nil, newError(KindValidation, "All fields are required for registration.")
	}
	if input.Password != input.ConfirmPassword {
		return nil, newError(KindValidation, "Passwords do not match.")
	}
	if len(input.Password) < MinPasswordLength {
		return nil, newError(KindValidation, "Password must be at least %d characters.", MinPasswordLength)
	}
	if len(input.Password) > MaxPasswordLength {
		return nil, newError(KindValidation, "Password must be at most %d bytes.", MaxPasswordLength)
	}
	if !ValidEmail(email) {
		return nil, newError(KindValidation, "Invalid email format.")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	users := uow.UserRepository()
	taken, err := users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, internalError(err, "failed to check existing users")
	}
	if taken {
		return nil, newError(KindValidation, "Username or email already taken.")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	code, err := s.uniqueReferralCode(ctx, users, username)
	if err != nil {
		return nil, err
	}

	user, err := users.Create(ctx, &models.NewUser{
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		ReferralCode:     code,
		SpinsLeftToday:   catalog.MaxFreeSpinsPerDay,
		DailyTasksStatus: s.policy.Catalog().NewTaskStatus(),
		LastActivityDate: s.policy.Today(),
	})
	if errors.Is(err, ErrDuplicateUser) {
		return nil, newError(KindValidation, "Username or email already taken.")
	}
	if err != nil {
		return nil, internalError(err, "failed to create user")
	}

	uow.EventBus().Publish(events.UserRegisteredEvent{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		ReferralCode: user.ReferralCode,
	})

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}

	log.WithFields(log.Fields{
		"userID":   user.ID,
		"username": user.Username,
	}).Info("User registered")

	return user, nil
}

func (s *accountService) uniqueReferralCode(ctx context.Context, users UserRepository, username string) (string, error) {
	base := BaseReferralCode(username)
	code := base
	for attempt := 1; attempt <= maxReferralCodeAttempts; attempt++ {
		exists, err := users.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", internalError(err, "failed to check referral code")
		}
		if !exists {
			return code, nil
		}
		code = base + strconv.Itoa(attempt)
	}
	return "", internalError(errors.New("no free suffix"), "failed to generate referral code for %q", username)
}

// Login verifies credentials and returns the user after the daily reset
func (s *accountService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, newError(KindValidation, "Email and password are required.")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	users := uow.UserRepository()
	found, err := users.GetByEmail(ctx, email)
	if err != nil {
		return nil, internalError(err, "failed to look up user by email")
	}
	if found == nil || !s.hasher.Compare(found.PasswordHash, password) {
		return nil, newError(KindInvalidArgument, "Invalid email or password.")
	}

	user, _, err := s.policy.Load(ctx, users, found.ID)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	return user, nil
}

// CurrentUser returns the user after the daily reset, nil if it no longer exists
func (s *accountService) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	user, _, err := s.policy.Load(ctx, uow.UserRepository(), userID)
	if IsKind(err, KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	return user, nil
}

// GetHistory lists the user's balance history, newest first
func (s *accountService) GetHistory(ctx context.Context, userID int64) ([]*models.BalanceHistory, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	history, err := uow.BalanceHistoryRepository().GetByUser(ctx, userID, ListLimit)
	if err != nil {
		return nil, internalError(err, "failed to list balance history for user %d", userID)
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	return history, nil
}
