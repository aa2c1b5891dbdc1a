package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Validation statuses
const (
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// ValidationRecord is the reviewer decision for one certificate. One row per
// cert_no; a re-decision overwrites the row in place, no history is kept.
type ValidationRecord struct {
	gorm.Model
	CertNo        string    `gorm:"uniqueIndex;not null" json:"cert_no"`
	Status        string    `gorm:"not null" json:"status"` // APPROVED, REJECTED
	ApprovedBy    string    `json:"approved_by"`
	ApprovedAt    time.Time `json:"approved_at"` // decision timestamp, set on reject too
	CalibrationID string    `gorm:"column:calibration_id" json:"CalibrationId"`

	// Structured error detail captured on rejection, nulled on approval
	ToleranceErrors    datatypes.JSON `json:"tolerance_errors"`
	CMCErrors          datatypes.JSON `gorm:"column:cmc_errors" json:"cmc_errors"`
	RequirementsErrors datatypes.JSON `json:"requirements_errors"`

	// Free-text feedback, settable only while status is APPROVED
	ClientFeedback *string `json:"client_feedback"`
}

// TableName sets the table name for GORM
func (ValidationRecord) TableName() string {
	return "validation_records"
}
