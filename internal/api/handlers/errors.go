// Package handlers holds what the OpenAI and query route groups share: error
// classification and JSON writers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/json"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/query"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/streaming"
	"github.com/nghyane/query-gateway/internal/target"
)

// Error type strings used in OpenAI error bodies.
const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeUpstream       = "upstream_error"
	ErrTypeTimeout        = "timeout_error"
	ErrTypeServer         = "server_error"
	ErrTypeNotFound       = "not_found_error"
)

// RequestError is a malformed client request.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func BadRequest(msg string) error { return &RequestError{Message: msg} }

// StatusFor maps an error onto an HTTP status and an OpenAI error type.
func StatusFor(err error) (int, string) {
	var (
		reqErr     *RequestError
		invalid    *target.InvalidTargetError
		submission *query.SubmissionError
		timeout    *query.PollTimeoutError
		failed     *query.JobFailedError
		unresolved *streaming.StreamAddressUnresolvedError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &invalid), errors.Is(err, streaming.ErrStreamingNotEnabled):
		return http.StatusBadRequest, ErrTypeInvalidRequest
	case errors.As(err, &submission), errors.As(err, &unresolved):
		return http.StatusBadGateway, ErrTypeUpstream
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, ErrTypeTimeout
	case errors.As(err, &failed):
		return http.StatusInternalServerError, ErrTypeServer
	case errors.Is(err, resource.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, resource.ErrConflict):
		return http.StatusConflict, ErrTypeInvalidRequest
	default:
		return http.StatusInternalServerError, ErrTypeServer
	}
}

// Message is the client-facing text of err. A failed job surfaces its own
// detail.
func Message(err error) string {
	var failed *query.JobFailedError
	if errors.As(err, &failed) && failed.Detail != "" {
		return failed.Detail
	}
	return err.Error()
}

// RespondJSON writes v with the gateway's JSON codec.
func RespondJSON(c *gin.Context, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Errorf("encode response: %v", err)
		c.Data(http.StatusInternalServerError, "application/json; charset=utf-8", []byte(`{"detail":"failed to encode response"}`))
		return
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

// OpenAIError is the error envelope of the OpenAI-compatible routes.
type OpenAIError struct {
	Error OpenAIErrorBody `json:"error"`
}

type OpenAIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// RespondOpenAIError writes err in the OpenAI error shape.
func RespondOpenAIError(c *gin.Context, err error) {
	status, errType := StatusFor(err)
	logFailure(c, status, err)
	RespondJSON(c, status, OpenAIError{Error: OpenAIErrorBody{
		Message: Message(err),
		Type:    errType,
		Code:    http.StatusText(status),
	}})
}

// DetailError is the error envelope of the /api/v1 routes.
type DetailError struct {
	Detail string `json:"detail"`
}

// RespondDetailError writes err as {"detail": ...}.
func RespondDetailError(c *gin.Context, err error) {
	status, _ := StatusFor(err)
	logFailure(c, status, err)
	RespondJSON(c, status, DetailError{Detail: Message(err)})
}

func logFailure(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Errorf("%s %s failed", c.Request.Method, c.Request.URL.Path)
		return
	}
	log.WithError(err).Debugf("%s %s rejected", c.Request.Method, c.Request.URL.Path)
}

// DecodeJSON reads the request body into v.
func DecodeJSON(c *gin.Context, v any) error {
	body, err := c.GetRawData()
	if err != nil {
		return BadRequest("cannot read request body")
	}
	if len(body) == 0 {
		return BadRequest("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return BadRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
