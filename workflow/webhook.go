package workflow

import (
	"calreview/config"
	"calreview/models"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// webhookTimeout bounds the notification POST; the approval itself is never
// held up or failed by delivery.
const webhookTimeout = 5 * time.Second

// WebhookNotifier delivers approval notifications as a detached side effect.
// Failures are logged and swallowed.
type WebhookNotifier struct {
	http          *resty.Client
	url           string
	reportBaseURL string
	enabled       bool
}

// NewWebhookNotifier builds a notifier from AppConfig
func NewWebhookNotifier() *WebhookNotifier {
	cfg := config.AppConfig
	return &WebhookNotifier{
		http:          resty.New().SetTimeout(webhookTimeout),
		url:           cfg.WebhookURL,
		reportBaseURL: cfg.ReportViewerBaseURL,
		enabled:       cfg.WebhookEnabled && cfg.WebhookURL != "",
	}
}

// NotifyApproved fires the webhook in the background and returns immediately
func (w *WebhookNotifier) NotifyApproved(record models.ValidationRecord) {
	if !w.enabled {
		return
	}
	go w.send(record)
}

func (w *WebhookNotifier) send(record models.ValidationRecord) {
	reportURL := fmt.Sprintf("%s/certificates/%s/report", w.reportBaseURL, record.CertNo)

	resp, err := w.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"cert_no":     record.CertNo,
			"approved_by": record.ApprovedBy,
			"approved_at": record.ApprovedAt,
			"report_url":  reportURL,
		}).
		Post(w.url)
	if err != nil {
		log.Printf("[WEBHOOK] Delivery failed for %s: %v", record.CertNo, err)
		return
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		log.Printf("[WEBHOOK] Delivery for %s returned status %d", record.CertNo, resp.StatusCode())
	}
}
