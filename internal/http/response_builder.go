// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON and file
// responses, and maps domain errors onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"eaccountant/internal/core"
	"eaccountant/internal/export"
	"eaccountant/internal/report"
	"eaccountant/internal/services"
	"eaccountant/internal/view"
)

// ResponseBuilder provides a fluent API for building API responses.
type ResponseBuilder struct {
	statusCode int
	body       []byte
	payload    any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets a value to be encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.headers["Content-Type"] = "application/json"
	b.payload = v
	b.body = nil
	return b
}

// Attachment sets a downloadable body with its filename.
func (b *ResponseBuilder) Attachment(filename, contentType string, body []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.headers["Content-Disposition"] = `attachment; filename="` + filename + `"`
	b.headers["Content-Length"] = strconv.Itoa(len(body))
	b.body = body
	b.payload = nil
	return b
}

// Body sets the response body as bytes.
func (b *ResponseBuilder) Body(contentType string, content []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.body = content
	b.payload = nil
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	body := b.body
	if b.payload != nil {
		encoded, err := json.Marshal(b.payload)
		if err != nil {
			slog.Error("Failed to encode response", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		body = append(encoded, '\n')
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	w.WriteHeader(b.statusCode)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message, detail string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(ErrorBody{Error: message, Detail: detail})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message, "")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message, "")
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message, "")
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed", "").
		Header("Allow", allowedMethods)
}

// TooManyRequestsError creates a 429 response for the rate limiter.
func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded", "try again in a minute")
}

// errorStatus maps domain errors onto HTTP status codes. Unknown errors
// are 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, report.ErrUnknownBucket),
		errors.Is(err, core.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, view.ErrFetchInFlight),
		errors.Is(err, view.ErrNotReady),
		errors.Is(err, view.ErrNotFailed):
		return http.StatusConflict
	case errors.Is(err, export.ErrFontUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainError builds the error response for err. Internal errors hide
// their text; everything else is safe to show.
func DomainError(err error) *ResponseBuilder {
	status := errorStatus(err)
	switch status {
	case http.StatusInternalServerError:
		return InternalServerError("internal error")
	case http.StatusBadGateway:
		return ErrorResponse(status, services.ErrUnavailable.Error(), unwrapDetail(err, services.ErrUnavailable))
	case http.StatusUnprocessableEntity:
		return ErrorResponse(status, export.ErrNoData.Error(), "")
	default:
		return ErrorResponse(status, err.Error(), "")
	}
}

// unwrapDetail strips the sentinel prefix from a wrapped message, leaving
// the failure message of the fetch.
func unwrapDetail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return ""
}
