package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// request is one call to the action endpoint. Fields come from a JSON object
// body, falling back to form values; the action name may also be given in
// the query string.
type request struct {
	c    *gin.Context
	body map[string]json.RawMessage
}

func parseRequest(c *gin.Context) (*request, error) {
	req := &request{c: c}
	if c.Request.Body == nil {
		return req, nil
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	if len(bytes.TrimSpace(raw)) == 0 || isFormContent(c.ContentType()) {
		return req, nil
	}

	if err := json.Unmarshal(raw, &req.body); err != nil {
		// Well-formed JSON that is not an object carries no fields
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			req.body = nil
			return req, nil
		}
		return nil, err
	}
	return req, nil
}

func isFormContent(contentType string) bool {
	return contentType == gin.MIMEPOSTForm || contentType == gin.MIMEMultipartPOSTForm
}

// action returns the requested action name
func (r *request) action() string {
	if action := r.String("action"); action != "" {
		return action
	}
	return r.c.Query("action")
}

// String returns a field as text. JSON numbers are returned in their literal form.
func (r *request) String(key string) string {
	if raw, ok := r.body[key]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
		return ""
	}
	if value, ok := r.c.GetPostForm(key); ok {
		return value
	}
	return ""
}

// Int64 returns a field as an integer, truncating fractions. Anything
// non-numeric is zero.
func (r *request) Int64(key string) int64 {
	s := strings.TrimSpace(r.String(key))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) &&
		f > math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return 0
}
