package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-notes/internal/api/shared"
	"github.com/phrazzld/scry-notes/internal/domain"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case err == nil:
		return http.StatusInternalServerError

	case errors.Is(err, domain.ErrValidation),
		errors.As(err, &validationErrs),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, domain.ErrAdmissionRejected):
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)

	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"

	case errors.Is(err, domain.ErrNoInputs):
		return "At least one input is required"

	case errors.Is(err, domain.ErrEmptyInput):
		return "Each input must carry text or an image"

	case errors.Is(err, domain.ErrValidation):
		// Scheduler validation messages name counts and indexes only.
		return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")

	case errors.Is(err, domain.ErrUnauthorized):
		return "You do not own this task"

	case errors.Is(err, domain.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, domain.ErrNotReady):
		return "Task result is not ready"

	case errors.Is(err, domain.ErrAlreadyTerminal):
		return "Task has already finished"

	case errors.Is(err, domain.ErrAdmissionRejected):
		return "Too many active tasks, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message naming the first failing field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fieldPath(fe.Namespace()), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// fieldPath drops the top-level struct name from a validator namespace,
// "SubmitRequest.Inputs[0].MimeType" becomes "Inputs[0].MimeType".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required", "required_without", "required_with":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "base64":
		return "must be base64 encoded"
	case "excluded_with":
		return "cannot be combined with text"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted detail. A non-empty fallbackMsg replaces the message for 5xx
// responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status >= http.StatusInternalServerError && fallbackMsg != "" {
		msg = fallbackMsg
	}

	var opts []shared.ResponseOption
	if status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}
