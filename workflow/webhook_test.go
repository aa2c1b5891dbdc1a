package workflow

import (
	"calreview/models"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotifier(url, reportBase string) *WebhookNotifier {
	return &WebhookNotifier{
		http:          resty.New().SetTimeout(webhookTimeout),
		url:           url,
		reportBaseURL: reportBase,
		enabled:       url != "",
	}
}

func TestWebhookSendsApprovalPayload(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := testNotifier(server.URL, "https://reports.example.com")
	notifier.send(models.ValidationRecord{
		CertNo:     "CAL-001",
		Status:     models.StatusApproved,
		ApprovedBy: "reviewer-a",
		ApprovedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, received)
	assert.Equal(t, "CAL-001", received["cert_no"])
	assert.Equal(t, "reviewer-a", received["approved_by"])
	assert.Equal(t, "https://reports.example.com/certificates/CAL-001/report", received["report_url"])
}

func TestWebhookFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close() // connection refused from here on

	notifier := testNotifier(server.URL, "https://reports.example.com")

	// Must not panic or block; delivery failure is log-only
	notifier.send(models.ValidationRecord{CertNo: "CAL-002", ApprovedBy: "reviewer-a"})
}

func TestWebhookDisabledDoesNothing(t *testing.T) {
	notifier := testNotifier("", "https://reports.example.com")
	notifier.NotifyApproved(models.ValidationRecord{CertNo: "CAL-003"})
}

// An approval must report success even when the webhook target is down.
func TestApproveSucceedsDespiteWebhookFailure(t *testing.T) {
	db := setupTestDb(t)
	authority := &stubAuthority{}
	createEvaluation(t, db, "CAL-050", "C-50", time.Now().Add(-time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	notifier := testNotifier(server.URL, "https://reports.example.com")

	record, err := Approve(context.Background(), db, authority, notifier, ApproveInput{
		CertNo:          "CAL-050",
		RevisionComment: "webhook is down",
		ApprovedBy:      "reviewer-a",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, record.Status)
}
