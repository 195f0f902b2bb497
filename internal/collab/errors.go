package collab

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeSessionEnded     = "SESSION_ENDED"
	CodeValidation       = "VALIDATION_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, message, nil)
}

func permissionDenied(message string) *DomainError {
	return domainError(http.StatusForbidden, CodePermissionDenied, message, nil)
}

func sessionEnded(sessionID string) *DomainError {
	return domainError(http.StatusConflict, CodeSessionEnded, "session has ended", map[string]any{"sessionId": sessionID})
}

func invalid(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
}

// AsDomain unwraps err into a DomainError if it carries one.
func AsDomain(err error) (*DomainError, bool) {
	var domain *DomainError
	if errors.As(err, &domain) {
		return domain, true
	}
	return nil, false
}

func hasCode(err error, code string) bool {
	domain, ok := AsDomain(err)
	return ok && domain.Code == code
}

func IsNotFound(err error) bool         { return hasCode(err, CodeNotFound) }
func IsPermissionDenied(err error) bool { return hasCode(err, CodePermissionDenied) }
func IsSessionEnded(err error) bool     { return hasCode(err, CodeSessionEnded) }
func IsValidation(err error) bool       { return hasCode(err, CodeValidation) }
