package workflow

import (
	"calreview/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanReapprove_NoRecord(t *testing.T) {
	db := setupTestDb(t)

	eligibility, err := CanReapprove(db, "CAL-100")
	require.NoError(t, err)

	assert.False(t, eligibility.CanReapprove)
	assert.Equal(t, "no validation record exists for this certificate", eligibility.Reason)
	assert.Nil(t, eligibility.ValidationApprovedAt)
}

func TestCanReapprove_AlreadyApproved(t *testing.T) {
	db := setupTestDb(t)
	require.NoError(t, db.Create(&models.ValidationRecord{
		CertNo:     "CAL-101",
		Status:     models.StatusApproved,
		ApprovedBy: "reviewer-a",
		ApprovedAt: time.Now(),
	}).Error)

	eligibility, err := CanReapprove(db, "CAL-101")
	require.NoError(t, err)

	assert.False(t, eligibility.CanReapprove)
	assert.Equal(t, "certificate is already approved", eligibility.Reason)
}

func TestCanReapprove_UnknownStatus(t *testing.T) {
	db := setupTestDb(t)
	require.NoError(t, db.Create(&models.ValidationRecord{
		CertNo:     "CAL-102",
		Status:     "PENDING",
		ApprovedBy: "reviewer-a",
		ApprovedAt: time.Now(),
	}).Error)

	eligibility, err := CanReapprove(db, "CAL-102")
	require.NoError(t, err)

	assert.False(t, eligibility.CanReapprove)
	assert.Contains(t, eligibility.Reason, "unknown status")
}

func TestCanReapprove_RejectedWithoutEvaluation(t *testing.T) {
	db := setupTestDb(t)
	createRejection(t, db, "CAL-103", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	eligibility, err := CanReapprove(db, "CAL-103")
	require.NoError(t, err)

	assert.False(t, eligibility.CanReapprove)
	assert.Equal(t, "no evaluation exists for this certificate", eligibility.Reason)
	assert.NotNil(t, eligibility.ValidationApprovedAt)
	assert.Nil(t, eligibility.LatestEvaluationAt)
}

func TestCanReapprove_ReturnsBothTimestamps(t *testing.T) {
	db := setupTestDb(t)
	rejectedAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	evalAt := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	createRejection(t, db, "CAL-104", rejectedAt)
	createEvaluation(t, db, "CAL-104", "C-104", evalAt)

	eligibility, err := CanReapprove(db, "CAL-104")
	require.NoError(t, err)

	assert.True(t, eligibility.CanReapprove)
	require.NotNil(t, eligibility.ValidationApprovedAt)
	require.NotNil(t, eligibility.LatestEvaluationAt)
	assert.True(t, eligibility.LatestEvaluationAt.After(*eligibility.ValidationApprovedAt))
}

func TestCanReapprove_UsesLatestEvaluation(t *testing.T) {
	db := setupTestDb(t)
	rejectedAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	createRejection(t, db, "CAL-105", rejectedAt)
	// An older and a newer run exist; the newer one decides
	createEvaluation(t, db, "CAL-105", "C-105", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	createEvaluation(t, db, "CAL-105", "C-105", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))

	eligibility, err := CanReapprove(db, "CAL-105")
	require.NoError(t, err)

	assert.True(t, eligibility.CanReapprove)
}
