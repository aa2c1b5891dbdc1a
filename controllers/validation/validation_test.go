package validationController_test

import (
	"bytes"
	"calreview/config"
	validationControllers "calreview/controllers/validation"
	"calreview/database"
	"calreview/middleware"
	"calreview/models"
	"calreview/phoenix"
	"calreview/routers/validationRoutes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubAuthority stands in for the Phoenix client behind the handlers
type stubAuthority struct {
	detail     map[string]interface{}
	approveErr error
}

func (s *stubAuthority) GetCertificateDetails(ctx context.Context, certNo string) (map[string]interface{}, error) {
	return s.detail, nil
}

func (s *stubAuthority) ApproveCalibration(ctx context.Context, req phoenix.ApprovalRequest) error {
	return s.approveErr
}

func setupTestApp(t *testing.T) (*fiber.App, *stubAuthority, *gorm.DB) {
	t.Helper()

	config.AppConfig = &config.Config{
		JWTKey:    "test-secret",
		SaltRound: 4,
	}

	dsn := filepath.Join(t.TempDir(), "handlers.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.ValidationRecord{}, &models.EvaluationRecord{}))
	database.Database = database.DbInstance{Db: db}

	authority := &stubAuthority{}
	validationControllers.Init(authority, nil)

	app := fiber.New()
	validationRoutes.SetupValidationRoutes(app)
	return app, authority, db
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "response was not the standard envelope: %s", raw)
	return resp.StatusCode, env
}

func sessionToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.GenerateJWT(1, "reviewer-a", "REVIEWER", "reviewer-a@example.com")
	require.NoError(t, err)
	return token
}

func TestApproveRequiresSession(t *testing.T) {
	app, _, _ := setupTestApp(t)

	status, _ := doJSON(t, app, "POST", "/validation/approve", "", fiber.Map{
		"cert_no":          "CAL-001",
		"revision_comment": "looks good",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestApproveEndToEnd(t *testing.T) {
	app, _, db := setupTestApp(t)
	token := sessionToken(t)

	eval := models.EvaluationRecord{CertNo: "CAL-001", CalibrationID: "C-9"}
	eval.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&eval).Error)

	status, env := doJSON(t, app, "POST", "/validation/approve", token, fiber.Map{
		"cert_no":          "CAL-001",
		"revision_comment": "looks good",
	})
	require.Equal(t, fiber.StatusOK, status, "message: %s", env.Message)

	var record models.ValidationRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, models.StatusApproved, record.Status)
	assert.Equal(t, "C-9", record.CalibrationID)
	assert.Equal(t, "reviewer-a", record.ApprovedBy)
}

func TestApproveValidatorRejectsMissingComment(t *testing.T) {
	app, _, _ := setupTestApp(t)
	token := sessionToken(t)

	status, _ := doJSON(t, app, "POST", "/validation/approve", token, fiber.Map{
		"cert_no": "CAL-001",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestStatusReportsUnvalidatedCertificate(t *testing.T) {
	app, _, _ := setupTestApp(t)

	status, env := doJSON(t, app, "GET", "/validation/status?cert_no=CAL-404", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	var data struct {
		Validated bool `json:"validated"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.False(t, data.Validated)
}

func TestRejectThenReapproveFlow(t *testing.T) {
	app, _, db := setupTestApp(t)
	token := sessionToken(t)

	// Evaluation exists before the rejection
	eval := models.EvaluationRecord{CertNo: "CAL-002", CalibrationID: "C-2"}
	eval.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Create(&eval).Error)

	status, _ := doJSON(t, app, "POST", "/validation/reject", token, fiber.Map{
		"cert_no":          "CAL-002",
		"tolerance_errors": []string{"out of tolerance"},
	})
	require.Equal(t, fiber.StatusOK, status)

	// Not eligible: the only evaluation predates the rejection
	status, env := doJSON(t, app, "GET", "/validation/can-reapprove?cert_no=CAL-002", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	var eligibility struct {
		CanReapprove bool   `json:"can_reapprove"`
		Reason       string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &eligibility))
	assert.False(t, eligibility.CanReapprove)

	// Approval attempt must agree with the advisory answer
	status, _ = doJSON(t, app, "POST", "/validation/approve", token, fiber.Map{
		"cert_no":          "CAL-002",
		"revision_comment": "retry",
	})
	assert.Equal(t, fiber.StatusConflict, status)

	// A fresh evaluation arrives
	fresh := models.EvaluationRecord{CertNo: "CAL-002", CalibrationID: "C-2"}
	fresh.CreatedAt = time.Now().Add(time.Hour)
	require.NoError(t, db.Create(&fresh).Error)

	status, env = doJSON(t, app, "GET", "/validation/can-reapprove?cert_no=CAL-002", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &eligibility))
	assert.True(t, eligibility.CanReapprove)

	status, _ = doJSON(t, app, "POST", "/validation/approve", token, fiber.Map{
		"cert_no":          "CAL-002",
		"revision_comment": "fresh evaluation",
	})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestSaveFeedbackOnlyOnApproved(t *testing.T) {
	app, _, db := setupTestApp(t)
	token := sessionToken(t)

	require.NoError(t, db.Create(&models.ValidationRecord{
		CertNo:     "CAL-003",
		Status:     models.StatusRejected,
		ApprovedBy: "reviewer-a",
		ApprovedAt: time.Now(),
	}).Error)

	status, _ := doJSON(t, app, "POST", "/validation/recommendation/save", token, fiber.Map{
		"cert_no":         "CAL-003",
		"client_feedback": "client disagrees",
	})
	assert.Equal(t, fiber.StatusConflict, status)

	require.NoError(t, db.Model(&models.ValidationRecord{}).
		Where("cert_no = ?", "CAL-003").
		Update("status", models.StatusApproved).Error)

	status, env := doJSON(t, app, "POST", "/validation/recommendation/save", token, fiber.Map{
		"cert_no":         "CAL-003",
		"client_feedback": "client satisfied",
	})
	require.Equal(t, fiber.StatusOK, status)

	var record models.ValidationRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))
	require.NotNil(t, record.ClientFeedback)
	assert.Equal(t, "client satisfied", *record.ClientFeedback)
}

func TestCertNosFiltersByStatus(t *testing.T) {
	app, _, db := setupTestApp(t)

	require.NoError(t, db.Create(&models.ValidationRecord{CertNo: "CAL-A", Status: models.StatusApproved, ApprovedAt: time.Now()}).Error)
	require.NoError(t, db.Create(&models.ValidationRecord{CertNo: "CAL-B", Status: models.StatusRejected, ApprovedAt: time.Now()}).Error)

	status, env := doJSON(t, app, "GET", "/validation/cert-nos?status=APPROVED", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	var data struct {
		CertNos []string `json:"cert_nos"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, []string{"CAL-A"}, data.CertNos)
}

func TestListRequiresSession(t *testing.T) {
	app, _, _ := setupTestApp(t)

	status, _ := doJSON(t, app, "GET", "/validation/list", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRecommendationStreamsCompletion(t *testing.T) {
	app, _, _ := setupTestApp(t)

	upstream := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "summarize the tolerance failures", reqBody["prompt"])
		assert.Equal(t, true, reqBody["stream"])

		flusher := w.(nethttp.Flusher)
		for _, chunk := range []string{"the certificate ", "shows tolerance drift"} {
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	defer upstream.Close()
	config.AppConfig.RecommendationApiURL = upstream.URL

	payload, err := json.Marshal(fiber.Map{"prompt": "summarize the tolerance failures"})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/validation/recommendation", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "the certificate shows tolerance drift", string(body))
}

func TestRecommendationRequiresPrompt(t *testing.T) {
	app, _, _ := setupTestApp(t)
	config.AppConfig.RecommendationApiURL = "http://localhost:1"

	status, _ := doJSON(t, app, "POST", "/validation/recommendation", "", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRecommendationUpstreamErrorIs502(t *testing.T) {
	app, _, _ := setupTestApp(t)

	upstream := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusInternalServerError)
	}))
	defer upstream.Close()
	config.AppConfig.RecommendationApiURL = upstream.URL

	status, _ := doJSON(t, app, "POST", "/validation/recommendation", "", fiber.Map{
		"prompt": "anything",
	})
	assert.Equal(t, fiber.StatusBadGateway, status)
}

func TestRecommendationUnconfiguredIs500(t *testing.T) {
	app, _, _ := setupTestApp(t)
	config.AppConfig.RecommendationApiURL = ""

	status, _ := doJSON(t, app, "POST", "/validation/recommendation", "", fiber.Map{
		"prompt": "anything",
	})
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestListPaginatesRecords(t *testing.T) {
	app, _, db := setupTestApp(t)
	token := sessionToken(t)

	for i := 0; i < 15; i++ {
		require.NoError(t, db.Create(&models.ValidationRecord{
			CertNo:     "CAL-" + string(rune('A'+i)),
			Status:     models.StatusApproved,
			ApprovedBy: "reviewer-a",
			ApprovedAt: time.Now().Add(-time.Duration(i) * time.Minute),
		}).Error)
	}

	status, env := doJSON(t, app, "GET", "/validation/list?page=2&pageSize=10", token, nil)
	require.Equal(t, fiber.StatusOK, status)

	var data struct {
		Records    []models.ValidationRecord `json:"records"`
		Pagination struct {
			Total    int64 `json:"total"`
			Page     int   `json:"page"`
			PageSize int   `json:"pageSize"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Records, 5)
	assert.EqualValues(t, 15, data.Pagination.Total)
	assert.Equal(t, 2, data.Pagination.Page)
}
