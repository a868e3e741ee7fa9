package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"spinearn/metrics"
	"spinearn/service"
)

const authRequiredMessage = "Authentication required. Please login."

func (h *Handler) succeed(c *gin.Context, action string, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	metrics.ObserveAction(action, "ok")
	c.JSON(http.StatusOK, body)
}

// fail writes the uniform failure body. Internal errors are logged and
// replaced by a generic message.
func (h *Handler) fail(c *gin.Context, action string, userID int64, err error) {
	kind := service.KindOf(err)
	fields := log.Fields{
		"action":  action,
		"user_id": userID,
		"kind":    kind,
	}

	if kind == service.KindInternal {
		log.WithFields(fields).WithError(err).Error("Action failed")
	} else {
		log.WithFields(fields).Debug(service.UserMessage(err))
	}
	metrics.ObserveAction(action, string(kind))

	body := gin.H{
		"success": false,
		"message": service.UserMessage(err),
	}
	if h.debug {
		if detail := debugDetail(err); detail != "" {
			body["debug"] = detail
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) failMessage(c *gin.Context, action, message string) {
	metrics.ObserveAction(action, string(service.KindValidation))
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"message": message,
	})
}

func (h *Handler) requireLogin(c *gin.Context, action string) {
	metrics.ObserveAction(action, string(service.KindAuthenticationRequired))
	c.JSON(http.StatusOK, gin.H{
		"success":         false,
		"message":         authRequiredMessage,
		"redirectToLogin": true,
	})
}

// debugDetail returns the underlying cause of err, if any
func debugDetail(err error) string {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		if svcErr.Err == nil {
			return ""
		}
		return svcErr.Err.Error()
	}
	return err.Error()
}
