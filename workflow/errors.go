package workflow

import (
	"fmt"
	"time"
)

// Error is a classified workflow failure carrying the HTTP status the
// handler should surface and the certificate context for operator diagnosis.
type Error struct {
	Status        int
	Message       string
	CertNo        string
	CalibrationID string

	// Populated on re-approval conflicts so callers can see both sides
	ValidationApprovedAt *time.Time
	LatestEvaluationAt   *time.Time
}

func (e *Error) Error() string {
	if e.CertNo != "" {
		return fmt.Sprintf("%s (cert_no=%s)", e.Message, e.CertNo)
	}
	return e.Message
}

// Details returns the diagnostic payload to attach to an error response.
func (e *Error) Details() map[string]interface{} {
	details := map[string]interface{}{}
	if e.CertNo != "" {
		details["cert_no"] = e.CertNo
	}
	if e.CalibrationID != "" {
		details["CalibrationId"] = e.CalibrationID
	}
	if e.ValidationApprovedAt != nil {
		details["validation_approved_at"] = e.ValidationApprovedAt
	}
	if e.LatestEvaluationAt != nil {
		details["latest_evaluation_at"] = e.LatestEvaluationAt
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func inputError(certNo, message string) *Error {
	return &Error{Status: 400, Message: message, CertNo: certNo}
}

func authError(certNo, message string) *Error {
	return &Error{Status: 401, Message: message, CertNo: certNo}
}

func notFoundError(certNo, message string) *Error {
	return &Error{Status: 404, Message: message, CertNo: certNo}
}

func conflictError(certNo, message string) *Error {
	return &Error{Status: 409, Message: message, CertNo: certNo}
}

func internalError(certNo, message string) *Error {
	return &Error{Status: 500, Message: message, CertNo: certNo}
}

func externalError(certNo, message string) *Error {
	return &Error{Status: 502, Message: message, CertNo: certNo}
}
