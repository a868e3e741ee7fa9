package api

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"spinearn/catalog"
	"spinearn/service"
	"spinearn/session"
)

// SessionCookieName carries the session token for browser clients
const SessionCookieName = "spinearn_session"

// Services groups the operations the action endpoint dispatches to
type Services struct {
	Accounts    service.AccountService
	Rewards     service.RewardService
	Referrals   service.ReferralService
	Withdrawals service.WithdrawalService
}

// Options tunes transport behaviour
type Options struct {
	CookieSecure bool
	Debug        bool // attach underlying error text to failures
}

// actionFunc runs one action for a caller. userID is zero for public actions
// called without a session.
type actionFunc func(h *Handler, c *gin.Context, req *request, userID int64) (gin.H, error)

type actionSpec struct {
	public bool
	run    actionFunc
}

var actions = map[string]actionSpec{
	"register":           {public: true, run: (*Handler).register},
	"login":              {public: true, run: (*Handler).login},
	"logout":             {public: true, run: (*Handler).logout},
	"spin":               {run: (*Handler).spin},
	"getSpinsFromAd":     {run: (*Handler).getSpinsFromAd},
	"adWatched":          {run: (*Handler).adWatched},
	"get_tasks":          {run: (*Handler).getTasks},
	"completeTask":       {run: (*Handler).completeTask},
	"submitReferralCode": {run: (*Handler).submitReferralCode},
	"requestWithdrawal":  {run: (*Handler).requestWithdrawal},
	"get_withdrawals":    {run: (*Handler).getWithdrawals},
	"get_history":        {run: (*Handler).getHistory},
}

// Handler serves the single action endpoint
type Handler struct {
	services     Services
	sessions     *session.Manager
	cookieSecure bool
	debug        bool
}

// NewHandler creates the action endpoint handler
func NewHandler(services Services, sessions *session.Manager, opts Options) *Handler {
	return &Handler{
		services:     services,
		sessions:     sessions,
		cookieSecure: opts.CookieSecure,
		debug:        opts.Debug,
	}
}

// Dispatch resolves the action and the caller's session, then runs the action
func (h *Handler) Dispatch(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		h.failMessage(c, "invalid", "Invalid JSON payload received: "+err.Error())
		return
	}

	action := req.action()
	if action == "" {
		h.failMessage(c, "none", "No action specified for API request.")
		return
	}

	// check_session never fails for a missing or stale session
	if action == "check_session" {
		h.checkSession(c)
		return
	}

	spec, known := actions[action]
	userID, loggedIn, err := h.sessionUser(c)
	if err != nil && !spec.public {
		h.fail(c, metricAction(action, known), 0, err)
		return
	}

	if !loggedIn && !spec.public {
		h.requireLogin(c, metricAction(action, known))
		return
	}
	if !known {
		h.failMessage(c, "unknown", "Unknown API action: "+html.EscapeString(action))
		return
	}

	body, err := spec.run(h, c, req, userID)
	if err != nil {
		h.fail(c, action, userID, err)
		return
	}
	h.succeed(c, action, body)
}

// metricAction keeps arbitrary client-supplied names out of metric labels
func metricAction(action string, known bool) string {
	if known {
		return action
	}
	return "unknown"
}

func (h *Handler) sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookieName); err == nil && token != "" {
		return token
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// sessionUser resolves the caller. Invalid or expired tokens mean logged out;
// only session store faults are errors.
func (h *Handler) sessionUser(c *gin.Context) (int64, bool, error) {
	token := h.sessionToken(c)
	if token == "" {
		return 0, false, nil
	}

	userID, err := h.sessions.Resolve(c.Request.Context(), token)
	if errors.Is(err, session.ErrInvalidSession) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return userID, true, nil
}

func (h *Handler) setSessionCookie(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(ttl.Seconds()), "/", "", h.cookieSecure, true)
}

func (h *Handler) clearSession(c *gin.Context) {
	if token := h.sessionToken(c); token != "" {
		if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
			log.WithError(err).Warn("Failed to revoke session")
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", h.cookieSecure, true)
}

func (h *Handler) checkSession(c *gin.Context) {
	const action = "check_session"

	userID, loggedIn, err := h.sessionUser(c)
	if err != nil {
		h.fail(c, action, 0, err)
		return
	}
	if !loggedIn {
		h.succeed(c, action, gin.H{"isLoggedIn": false})
		return
	}

	user, err := h.services.Accounts.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, action, userID, err)
		return
	}
	if user == nil {
		h.clearSession(c)
		h.succeed(c, action, gin.H{
			"isLoggedIn": false,
			"message":    "Session invalid. Please login.",
		})
		return
	}

	h.succeed(c, action, gin.H{
		"isLoggedIn": true,
		"userData":   user.Snapshot(),
	})
}

func (h *Handler) register(c *gin.Context, req *request, _ int64) (gin.H, error) {
	_, err := h.services.Accounts.Register(c.Request.Context(), service.RegisterInput{
		Username:        req.String("username"),
		Email:           req.String("email"),
		Password:        req.String("password"),
		ConfirmPassword: req.String("confirm_password"),
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"message": "Registration successful! Please login."}, nil
}

func (h *Handler) login(c *gin.Context, req *request, _ int64) (gin.H, error) {
	ctx := c.Request.Context()

	user, err := h.services.Accounts.Login(ctx, req.String("email"), req.String("password"))
	if err != nil {
		return nil, err
	}

	token, err := h.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	h.setSessionCookie(c, token, h.sessions.TTL())

	return gin.H{
		"message":  "Login successful.",
		"userData": user.Snapshot(),
	}, nil
}

func (h *Handler) logout(c *gin.Context, _ *request, _ int64) (gin.H, error) {
	h.clearSession(c)
	return gin.H{"message": "Logged out."}, nil
}

func (h *Handler) spin(c *gin.Context, _ *request, userID int64) (gin.H, error) {
	result, err := h.services.Rewards.Spin(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"message":      fmt.Sprintf("You won %d points!", result.Reward),
		"pointsEarned": result.Reward,
		"userData":     result.User.Snapshot(),
	}, nil
}

func (h *Handler) getSpinsFromAd(c *gin.Context, _ *request, userID int64) (gin.H, error) {
	user, err := h.services.Rewards.GetSpinsFromAd(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"message":  fmt.Sprintf("%d extra spins added!", catalog.SpinsGainedPerAd),
		"userData": user.Snapshot(),
	}, nil
}

func (h *Handler) adWatched(c *gin.Context, _ *request, userID int64) (gin.H, error) {
	user, err := h.services.Rewards.WatchAdForPoints(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"message":  fmt.Sprintf("%d points added for ad.", catalog.PointsPerAd),
		"userData": user.Snapshot(),
	}, nil
}

func (h *Handler) getTasks(c *gin.Context, _ *request, userID int64) (gin.H, error) {
	tasks, err := h.services.Rewards.GetTasks(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return gin.H{"tasks": nonNil(tasks)}, nil
}

func (h *Handler) completeTask(c *gin.Context, req *request, userID int64) (gin.H, error) {
	raw := req.String("taskId")
	taskID, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, service.InvalidTaskError(html.EscapeString(raw))
	}

	result, err := h.services.Rewards.CompleteTask(c.Request.Context(), userID, taskID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"message":  fmt.Sprintf("Task '%s' completed! %d points awarded.", result.Task.Name, result.Task.Points),
		"userData": result.User.Snapshot(),
		"tasks":    nonNil(result.Tasks),
	}, nil
}

func (h *Handler) submitReferralCode(c *gin.Context, req *request, userID int64) (gin.H, error) {
	result, err := h.services.Referrals.SubmitReferralCode(c.Request.Context(), userID, req.String("referralCode"))
	if err != nil {
		return nil, err
	}
	return gin.H{
		"message": fmt.Sprintf("Referral accepted! You got %d points. %s got %d points.",
			result.ReferredBonus, result.ReferrerUsername, result.ReferrerBonus),
		"userData": result.User.Snapshot(),
	}, nil
}

func (h *Handler) requestWithdrawal(c *gin.Context, req *request, userID int64) (gin.H, error) {
	result, err := h.services.Withdrawals.RequestWithdrawal(c.Request.Context(), userID,
		req.Int64("points"), req.String("method"), req.String("details"))
	if err != nil {
		return nil, err
	}
	return gin.H{
		"message":    fmt.Sprintf("Withdrawal for %d points requested.", result.Request.PointsWithdrawn),
		"withdrawal": result.Request,
		"userData":   result.User.Snapshot(),
	}, nil
}

func (h *Handler) getWithdrawals(c *gin.Context, _ *request, userID int64) (gin.H, error) {
	list, err := h.services.Withdrawals.GetWithdrawals(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return gin.H{"withdrawals": nonNil(list)}, nil
}

func (h *Handler) getHistory(c *gin.Context, _ *request, userID int64) (gin.H, error) {
	list, err := h.services.Accounts.GetHistory(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}
	return gin.H{"history": nonNil(list)}, nil
}

// nonNil makes empty lists encode as [] rather than null
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
