package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EvaluationRecord is one AI evaluation run for a certificate. A certificate
// may have many rows; freshness is decided by CreatedAt, newest wins.
type EvaluationRecord struct {
	gorm.Model
	CertNo        string `gorm:"index;not null" json:"cert_no"`
	CalibrationID string `gorm:"column:calibration_id" json:"CalibrationId"`

	// Full evaluation payload as produced by the evaluation pipeline
	Result datatypes.JSON `json:"result"`

	// Free-text analysis forwarded to Phoenix as supporting context on approval
	AIAnalysis string `gorm:"type:text" json:"ai_analysis"`

	// Derived pass flags; nil means the section could not be verified
	ToleranceOK    *bool `json:"tolerance_ok"`
	CMCOK          *bool `gorm:"column:cmc_ok" json:"cmc_ok"`
	RequirementsOK *bool `json:"requirements_ok"`
}

// TableName sets the table name for GORM
func (EvaluationRecord) TableName() string {
	return "evaluation_records"
}

// DerivedStatus classifies an evaluation for list views. Tolerance that could
// not be verified needs a human look regardless of the other sections.
func (e *EvaluationRecord) DerivedStatus() string {
	if e.ToleranceOK == nil {
		return "ATTENTION"
	}
	if *e.ToleranceOK && (e.CMCOK == nil || *e.CMCOK) && (e.RequirementsOK == nil || *e.RequirementsOK) {
		return "PASS"
	}
	return "FAIL"
}
