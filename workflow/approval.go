package workflow

import (
	"calreview/models"
	"calreview/phoenix"
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ambiguousRejection replaces Phoenix's generic 400 message when no inner
// reason could be extracted from the response.
const ambiguousRejection = "Phoenix rejected the approval without a specific reason"

// CertificateAuthority is the slice of the Phoenix client the orchestrator
// needs. Tests substitute a stub.
type CertificateAuthority interface {
	GetCertificateDetails(ctx context.Context, certNo string) (map[string]interface{}, error)
	ApproveCalibration(ctx context.Context, req phoenix.ApprovalRequest) error
}

// Notifier receives the approved record after local persistence succeeds.
// Delivery failures must never surface to the approval caller.
type Notifier interface {
	NotifyApproved(record models.ValidationRecord)
}

// ApproveInput is one reviewer approval action
type ApproveInput struct {
	CertNo               string
	CalibrationID        string
	RevisionComment      string
	JustificationComment string
	ApprovedBy           string
}

// Approve runs the approval state machine for one certificate. The external
// authority call happens strictly before any local write: a local APPROVED
// record means Phoenix has accepted the approval.
func Approve(ctx context.Context, db *gorm.DB, authority CertificateAuthority, notifier Notifier, in ApproveInput) (*models.ValidationRecord, error) {
	if in.CertNo == "" {
		return nil, inputError("", "cert_no is required")
	}
	if strings.TrimSpace(in.RevisionComment) == "" {
		return nil, inputError(in.CertNo, "revision_comment is required")
	}
	if in.ApprovedBy == "" {
		return nil, inputError(in.CertNo, "approver identity is required")
	}

	var existing models.ValidationRecord
	err := db.Where("cert_no = ?", in.CertNo).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[WORKFLOW] Failed to load validation record for %s: %v", in.CertNo, err)
		return nil, internalError(in.CertNo, "failed to load validation record")
	}

	latestEval, err := latestEvaluation(db, in.CertNo)
	if err != nil {
		log.Printf("[WORKFLOW] Failed to load evaluation records for %s: %v", in.CertNo, err)
		return nil, internalError(in.CertNo, "failed to load evaluation records")
	}

	if found {
		switch existing.Status {
		case models.StatusApproved:
			// Refuse loudly, a silent second approval could mask a mistake
			return nil, conflictError(in.CertNo, "certificate is already approved")
		case models.StatusRejected:
			// The UI runs the same check in advance, but stale UI state is
			// not trusted here
			if !evaluationIsFresher(latestEval, &existing) {
				conflict := conflictError(in.CertNo, "re-approval requires a newer evaluation than the rejection")
				conflict.ValidationApprovedAt = &existing.ApprovedAt
				if latestEval != nil {
					conflict.LatestEvaluationAt = &latestEval.CreatedAt
				}
				return nil, conflict
			}
		default:
			return nil, conflictError(in.CertNo, "validation record has unknown status "+existing.Status)
		}
	}

	calibrationID, err := resolveCalibrationID(ctx, authority, in, latestEval, &existing, found)
	if err != nil {
		return nil, err
	}
	if calibrationID == "" {
		return nil, inputError(in.CertNo, "no CalibrationId could be resolved for this certificate")
	}

	aiAnalysis := ""
	if latestEval != nil {
		aiAnalysis = latestEval.AIAnalysis
	}

	// External authority first. No local write on any failure.
	if err := authority.ApproveCalibration(ctx, phoenix.ApprovalRequest{
		CalibrationID:        calibrationID,
		RevisionComment:      in.RevisionComment,
		JustificationComment: in.JustificationComment,
		AIAnalysis:           aiAnalysis,
	}); err != nil {
		return nil, classifyAuthorityError(err, in.CertNo, calibrationID)
	}

	now := time.Now()
	var record models.ValidationRecord
	if found {
		// Conditional update keyed on the loaded decision so a concurrent
		// re-decision loses cleanly instead of being overwritten
		res := db.Model(&models.ValidationRecord{}).
			Where("cert_no = ? AND status = ? AND approved_at = ?", in.CertNo, models.StatusRejected, existing.ApprovedAt).
			Updates(map[string]interface{}{
				"status":              models.StatusApproved,
				"approved_by":         in.ApprovedBy,
				"approved_at":         now,
				"calibration_id":      calibrationID,
				"tolerance_errors":    nil,
				"cmc_errors":          nil,
				"requirements_errors": nil,
				"client_feedback":     nil,
			})
		if res.Error != nil {
			log.Printf("[WORKFLOW] Failed to update validation record for %s: %v", in.CertNo, res.Error)
			return nil, internalError(in.CertNo, "failed to persist approval")
		}
		if res.RowsAffected == 0 {
			return nil, conflictError(in.CertNo, "validation record changed concurrently, approval not recorded")
		}
		if err := db.Where("cert_no = ?", in.CertNo).First(&record).Error; err != nil {
			log.Printf("[WORKFLOW] Failed to reload validation record for %s: %v", in.CertNo, err)
			return nil, internalError(in.CertNo, "failed to reload validation record")
		}
	} else {
		record = models.ValidationRecord{
			CertNo:        in.CertNo,
			Status:        models.StatusApproved,
			ApprovedBy:    in.ApprovedBy,
			ApprovedAt:    now,
			CalibrationID: calibrationID,
		}
		if err := db.Create(&record).Error; err != nil {
			if isDuplicateKey(err) {
				return nil, conflictError(in.CertNo, "validation record created concurrently, approval not recorded")
			}
			log.Printf("[WORKFLOW] Failed to insert validation record for %s: %v", in.CertNo, err)
			return nil, internalError(in.CertNo, "failed to persist approval")
		}
	}

	// Mirror the resolved identifier back into the evaluation row so the
	// next lookup skips the live Phoenix round trip. Best effort only.
	if latestEval != nil && latestEval.CalibrationID != calibrationID {
		if err := db.Model(latestEval).Update("calibration_id", calibrationID).Error; err != nil {
			log.Printf("[WORKFLOW] Failed to mirror CalibrationId into evaluation for %s: %v", in.CertNo, err)
		}
	}

	if notifier != nil {
		notifier.NotifyApproved(record)
	}

	return &record, nil
}

// RejectInput is one reviewer rejection action
type RejectInput struct {
	CertNo             string
	RejectedBy         string
	ToleranceErrors    datatypes.JSON
	CMCErrors          datatypes.JSON
	RequirementsErrors datatypes.JSON
}

// Reject records a rejection, overwriting any prior decision for the
// certificate. Rejecting an approved certificate is a review reversal and
// clears its client feedback.
func Reject(db *gorm.DB, in RejectInput) (*models.ValidationRecord, error) {
	if in.CertNo == "" {
		return nil, inputError("", "cert_no is required")
	}
	if in.RejectedBy == "" {
		return nil, inputError(in.CertNo, "reviewer identity is required")
	}

	now := time.Now()

	var existing models.ValidationRecord
	err := db.Where("cert_no = ?", in.CertNo).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[WORKFLOW] Failed to load validation record for %s: %v", in.CertNo, err)
		return nil, internalError(in.CertNo, "failed to load validation record")
	}

	if err == nil {
		res := db.Model(&models.ValidationRecord{}).
			Where("cert_no = ?", in.CertNo).
			Updates(map[string]interface{}{
				"status":              models.StatusRejected,
				"approved_by":         in.RejectedBy,
				"approved_at":         now,
				"tolerance_errors":    in.ToleranceErrors,
				"cmc_errors":          in.CMCErrors,
				"requirements_errors": in.RequirementsErrors,
				"client_feedback":     nil,
			})
		if res.Error != nil {
			log.Printf("[WORKFLOW] Failed to update validation record for %s: %v", in.CertNo, res.Error)
			return nil, internalError(in.CertNo, "failed to persist rejection")
		}
		var record models.ValidationRecord
		if err := db.Where("cert_no = ?", in.CertNo).First(&record).Error; err != nil {
			log.Printf("[WORKFLOW] Failed to reload validation record for %s: %v", in.CertNo, err)
			return nil, internalError(in.CertNo, "failed to reload validation record")
		}
		return &record, nil
	}

	record := models.ValidationRecord{
		CertNo:             in.CertNo,
		Status:             models.StatusRejected,
		ApprovedBy:         in.RejectedBy,
		ApprovedAt:         now,
		ToleranceErrors:    in.ToleranceErrors,
		CMCErrors:          in.CMCErrors,
		RequirementsErrors: in.RequirementsErrors,
	}
	if err := db.Create(&record).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, conflictError(in.CertNo, "validation record created concurrently, rejection not recorded")
		}
		log.Printf("[WORKFLOW] Failed to insert validation record for %s: %v", in.CertNo, err)
		return nil, internalError(in.CertNo, "failed to persist rejection")
	}
	return &record, nil
}

// resolveCalibrationID tries the identifier sources in fixed priority order,
// stopping at the first non-empty hit: caller input, latest evaluation,
// existing validation record, then a live Phoenix detail lookup.
func resolveCalibrationID(ctx context.Context, authority CertificateAuthority, in ApproveInput, latestEval *models.EvaluationRecord, existing *models.ValidationRecord, found bool) (string, error) {
	if in.CalibrationID != "" {
		return in.CalibrationID, nil
	}
	if latestEval != nil && latestEval.CalibrationID != "" {
		return latestEval.CalibrationID, nil
	}
	if found && existing.CalibrationID != "" {
		return existing.CalibrationID, nil
	}

	detail, err := authority.GetCertificateDetails(ctx, in.CertNo)
	if err != nil {
		return "", classifyAuthorityError(err, in.CertNo, "")
	}
	return phoenix.ResolveCalibrationID(detail), nil
}

// latestEvaluation returns the most recent evaluation row for a certificate,
// or nil when none exists.
func latestEvaluation(db *gorm.DB, certNo string) (*models.EvaluationRecord, error) {
	var eval models.EvaluationRecord
	err := db.Where("cert_no = ?", certNo).Order("created_at DESC").First(&eval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &eval, nil
}

// evaluationIsFresher is the single freshness predicate for re-approval:
// the latest evaluation must be strictly newer than the rejection decision.
// Both the advisory checker and the orchestrator go through here.
func evaluationIsFresher(eval *models.EvaluationRecord, record *models.ValidationRecord) bool {
	if eval == nil {
		return false
	}
	return eval.CreatedAt.After(record.ApprovedAt)
}

// classifyAuthorityError maps a Phoenix client failure onto the local error
// taxonomy. Raw transport errors never reach the caller.
func classifyAuthorityError(err error, certNo, calibrationID string) *Error {
	var authErr *phoenix.AuthError
	if errors.As(err, &authErr) {
		e := authError(certNo, authErr.Error())
		e.CalibrationID = calibrationID
		return e
	}

	var apiErr *phoenix.APIError
	if errors.As(err, &apiErr) {
		var e *Error
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			e = authError(certNo, "Phoenix rejected our credentials")
		case apiErr.StatusCode == http.StatusNotFound:
			e = notFoundError(certNo, "certificate not found in Phoenix")
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			message := apiErr.Message
			if message == "" || message == "The request is invalid." {
				message = ambiguousRejection
			}
			e = inputError(certNo, message)
		default:
			e = externalError(certNo, "Phoenix approval failed: "+apiErr.Message)
		}
		e.CalibrationID = calibrationID
		return e
	}

	e := externalError(certNo, "Phoenix is unreachable: "+err.Error())
	e.CalibrationID = calibrationID
	return e
}

// isDuplicateKey recognizes a unique constraint violation on cert_no from
// postgres or the sqlite test driver.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(strings.ToUpper(msg), "UNIQUE")
}
