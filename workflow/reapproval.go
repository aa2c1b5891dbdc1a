package workflow

import (
	"calreview/models"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
)

// Eligibility is the advisory answer to "may this certificate be approved
// again". The orchestrator re-derives the same answer on the write path, so
// the UI can act on this without it being trusted.
type Eligibility struct {
	CanReapprove         bool       `json:"can_reapprove"`
	Reason               string     `json:"reason"`
	ValidationApprovedAt *time.Time `json:"validation_approved_at,omitempty"`
	LatestEvaluationAt   *time.Time `json:"latest_evaluation_at,omitempty"`
}

// CanReapprove reports whether a previously rejected certificate is eligible
// for re-approval, with the timestamps behind the answer.
func CanReapprove(db *gorm.DB, certNo string) (*Eligibility, error) {
	if certNo == "" {
		return nil, inputError("", "cert_no is required")
	}

	var record models.ValidationRecord
	err := db.Where("cert_no = ?", certNo).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Eligibility{CanReapprove: false, Reason: "no validation record exists for this certificate"}, nil
	}
	if err != nil {
		log.Printf("[WORKFLOW] Failed to load validation record for %s: %v", certNo, err)
		return nil, internalError(certNo, "failed to load validation record")
	}

	switch record.Status {
	case models.StatusApproved:
		return &Eligibility{CanReapprove: false, Reason: "certificate is already approved"}, nil
	case models.StatusRejected:
		// handled below
	default:
		return &Eligibility{CanReapprove: false, Reason: "validation record has unknown status " + record.Status}, nil
	}

	latestEval, err := latestEvaluation(db, certNo)
	if err != nil {
		log.Printf("[WORKFLOW] Failed to load evaluation records for %s: %v", certNo, err)
		return nil, internalError(certNo, "failed to load evaluation records")
	}

	eligibility := &Eligibility{
		CanReapprove:         evaluationIsFresher(latestEval, &record),
		ValidationApprovedAt: &record.ApprovedAt,
	}
	if latestEval != nil {
		eligibility.LatestEvaluationAt = &latestEval.CreatedAt
	}

	switch {
	case latestEval == nil:
		eligibility.Reason = "no evaluation exists for this certificate"
	case eligibility.CanReapprove:
		eligibility.Reason = "a newer evaluation exists since the rejection"
	default:
		eligibility.Reason = "latest evaluation is not newer than the rejection"
	}
	return eligibility, nil
}
