package phoenix

import (
	"calreview/config"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// calibrationIDAliases are the legacy field names Phoenix has used for the
// calibration identifier across API revisions, in lookup order.
var calibrationIDAliases = []string{
	"CalibrationId",
	"CalibrationID",
	"CalibrationGuid",
	"CalibrationGUID",
	"calibrationId",
	"calibration_id",
}

// tokenKeys are the keys a token may appear under in the auth response,
// either top-level or nested one level down.
var tokenKeys = []string{"token", "access_token", "Token", "AccessToken"}

// tokenEnvelopes are the wrapper objects a nested token may sit under.
var tokenEnvelopes = []string{"data", "result", "response"}

// AuthError means Phoenix rejected our credentials or returned a response
// with no usable token in it.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "phoenix authentication failed: " + e.Reason
}

// APIError is a non-2xx response from a Phoenix endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("phoenix API error (%d): %s", e.StatusCode, e.Message)
}

// Certificate is one entry of the Phoenix certificate list
type Certificate struct {
	CertNo        string `json:"certNo"`
	CalibrationID string `json:"calibrationId"`
	Customer      string `json:"customer"`
	Status        string `json:"status"`
	CalibratedAt  string `json:"calibrationDate"`
}

// ApprovalRequest is the payload Phoenix expects on approval submission
type ApprovalRequest struct {
	CalibrationID        string `json:"calibrationId"`
	RevisionComment      string `json:"revisionComment"`
	JustificationComment string `json:"justificationComment"`
	AIAnalysis           string `json:"AIAnalysis"`
}

// Client talks to the Phoenix calibration authority and owns the cached
// bearer token for this process.
type Client struct {
	http *resty.Client

	authURL    string
	listURL    string
	detailURL  string // contains {certNo}
	approveURL string
	username   string
	password   string
	tokenTTL   time.Duration

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	authFlight singleflight.Group
}

// NewClient builds a client from AppConfig
func NewClient() *Client {
	cfg := config.AppConfig
	httpClient := resty.New().
		SetBaseURL(cfg.PhoenixBaseURL).
		SetTimeout(time.Duration(cfg.PhoenixTimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:       httpClient,
		authURL:    cfg.PhoenixAuthURL,
		listURL:    cfg.PhoenixListURL,
		detailURL:  cfg.PhoenixDetailURL,
		approveURL: cfg.PhoenixApproveURL,
		username:   cfg.PhoenixUsername,
		password:   cfg.PhoenixPassword,
		tokenTTL:   time.Duration(cfg.PhoenixTokenTTLMinutes) * time.Minute,
	}
}

// Authenticate posts credentials and caches the returned bearer token. The
// expiry is the configured TTL margin unless Phoenix declares its own
// expires_in, which wins.
func (p *Client) Authenticate(ctx context.Context) error {
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"username": p.username,
			"password": p.password,
		}).
		Post(p.authURL)
	if err != nil {
		return fmt.Errorf("phoenix auth request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return &AuthError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))}
	}

	token, expiresIn := extractToken(resp.Body())
	if token == "" {
		return &AuthError{Reason: "no token found in auth response"}
	}

	ttl := p.tokenTTL
	if expiresIn > 0 {
		// Server-declared lifetime overrides the assumed margin
		ttl = time.Duration(expiresIn) * time.Second
		log.Printf("[PHOENIX] Server declared token expiry of %ds, overriding configured margin", expiresIn)
	}

	p.mu.Lock()
	p.token = token
	p.tokenExpiry = time.Now().Add(ttl)
	p.mu.Unlock()

	return nil
}

// extractToken pulls a string token from the known auth response shapes:
// a top-level string under a known key, or the same keys nested one level
// down under a wrapper object. Also returns expires_in if present.
func extractToken(body []byte) (string, int) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0
	}

	expiresIn := 0
	if v, ok := payload["expires_in"].(float64); ok {
		expiresIn = int(v)
	}

	if token := tokenFromMap(payload); token != "" {
		return token, expiresIn
	}
	for _, envelope := range tokenEnvelopes {
		if nested, ok := payload[envelope].(map[string]interface{}); ok {
			if expiresIn == 0 {
				if v, ok := nested["expires_in"].(float64); ok {
					expiresIn = int(v)
				}
			}
			if token := tokenFromMap(nested); token != "" {
				return token, expiresIn
			}
		}
	}
	return "", 0
}

func tokenFromMap(m map[string]interface{}) string {
	for _, key := range tokenKeys {
		if token, ok := m[key].(string); ok && token != "" {
			return token
		}
	}
	return ""
}

// AuthHeaders returns bearer auth headers, re-authenticating when the cached
// token is missing or expired. Concurrent callers during expiry share a
// single authentication call.
func (p *Client) AuthHeaders(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	token := p.token
	valid := token != "" && time.Now().Before(p.tokenExpiry)
	p.mu.Unlock()

	if !valid {
		_, err, _ := p.authFlight.Do("authenticate", func() (interface{}, error) {
			return nil, p.Authenticate(ctx)
		})
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		token = p.token
		p.mu.Unlock()
	}

	return map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}, nil
}

// GetAllCertificates fetches the full certificate list from Phoenix. The
// filter payload is currently unfiltered.
func (p *Client) GetAllCertificates(ctx context.Context) ([]Certificate, error) {
	headers, err := p.AuthHeaders(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(map[string]interface{}{"filters": map[string]interface{}{}}).
		Post(p.listURL)
	if err != nil {
		return nil, fmt.Errorf("phoenix certificate list request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: messageFromBody(resp.Body())}
	}

	return unwrapCertificateList(resp.Body())
}

// unwrapCertificateList accepts either a bare array or a list wrapped under
// data/certificates/result.
func unwrapCertificateList(body []byte) ([]Certificate, error) {
	var certs []Certificate
	if err := json.Unmarshal(body, &certs); err == nil {
		return certs, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected certificate list response shape")
	}
	for _, key := range []string{"data", "certificates", "result"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &certs); err == nil {
			return certs, nil
		}
	}
	return nil, fmt.Errorf("unexpected certificate list response shape")
}

// GetCertificateDetails fetches one certificate by number. The result is the
// raw detail map since field names vary across Phoenix revisions.
func (p *Client) GetCertificateDetails(ctx context.Context, certNo string) (map[string]interface{}, error) {
	headers, err := p.AuthHeaders(ctx)
	if err != nil {
		return nil, err
	}

	url := strings.Replace(p.detailURL, "{certNo}", certNo, 1)
	resp, err := p.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("phoenix certificate detail request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: messageFromBody(resp.Body())}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse certificate detail response: %w", err)
	}

	// Unwrap the envelope when the detail sits under data or result
	for _, key := range []string{"data", "result"} {
		if nested, ok := payload[key].(map[string]interface{}); ok {
			return nested, nil
		}
	}
	return payload, nil
}

// ResolveCalibrationID scans a certificate detail map for the calibration
// identifier under its known legacy field names, in fixed order.
func ResolveCalibrationID(detail map[string]interface{}) string {
	for _, key := range calibrationIDAliases {
		if v, ok := detail[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ApproveCalibration submits the approval decision to Phoenix. Callers must
// not persist a local APPROVED record unless this returns nil.
func (p *Client) ApproveCalibration(ctx context.Context, req ApprovalRequest) error {
	headers, err := p.AuthHeaders(ctx)
	if err != nil {
		return err
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(req).
		Post(p.approveURL)
	if err != nil {
		return fmt.Errorf("phoenix approval request failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &APIError{StatusCode: resp.StatusCode(), Message: messageFromBody(resp.Body())}
	}
	return nil
}

// messageFromBody extracts a human-readable message from a Phoenix error
// body. Phoenix 400s often carry the real reason nested under ModelState
// behind a generic "The request is invalid." message.
func messageFromBody(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}

	message := ""
	for _, key := range []string{"message", "Message", "error", "Error"} {
		if v, ok := payload[key].(string); ok && v != "" {
			message = v
			break
		}
	}

	if message == "The request is invalid." {
		if inner := modelStateMessage(payload); inner != "" {
			return inner
		}
	}
	if message != "" {
		return message
	}
	return strings.TrimSpace(string(body))
}

// modelStateMessage digs the first concrete message out of a WebAPI-style
// ModelState error map.
func modelStateMessage(payload map[string]interface{}) string {
	modelState, ok := payload["ModelState"].(map[string]interface{})
	if !ok {
		return ""
	}
	for _, v := range modelState {
		switch inner := v.(type) {
		case []interface{}:
			for _, item := range inner {
				if s, ok := item.(string); ok && s != "" {
					return s
				}
			}
		case string:
			if inner != "" {
				return inner
			}
		}
	}
	return ""
}
