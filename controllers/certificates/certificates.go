package certificateController

import (
	"calreview/database"
	"calreview/middleware"
	"calreview/models"
	"calreview/phoenix"
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Authority is the slice of the Phoenix client this controller needs
type Authority interface {
	GetAllCertificates(ctx context.Context) ([]phoenix.Certificate, error)
	GetCertificateDetails(ctx context.Context, certNo string) (map[string]interface{}, error)
}

var authority Authority

// Init wires the Phoenix client
func Init(a Authority) {
	authority = a
}

// phoenixErrorResponse maps a Phoenix client failure onto the response
// envelope: bad credentials are ours to report as 401, everything else is
// the authority's fault.
func phoenixErrorResponse(c *fiber.Ctx, err error) error {
	var authErr *phoenix.AuthError
	if errors.As(err, &authErr) {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Phoenix authentication failed!", nil)
	}
	var apiErr *phoenix.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusNotFound {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Certificate not found in Phoenix!", nil)
	}
	log.Printf("Phoenix request failed: %v", err)
	return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Phoenix is unavailable!", nil)
}

// Report returns the stored evaluation report for one certificate
func Report(c *fiber.Ctx) error {
	certNo := c.Params("certNo")

	db := database.Database.Db

	var eval models.EvaluationRecord
	if err := db.Where("cert_no = ?", certNo).Order("created_at DESC").First(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "No evaluation exists for this certificate!", nil)
		}
		log.Printf("Error fetching evaluation for %s: %v", certNo, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch evaluation!", nil)
	}

	// The stored payload is opaque JSON; parse it so the caller gets a
	// structured report rather than a quoted blob
	var report interface{}
	if len(eval.Result) > 0 {
		if err := json.Unmarshal(eval.Result, &report); err != nil {
			log.Printf("Stored evaluation for %s is not valid JSON: %v", certNo, err)
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Stored evaluation is corrupted!", nil)
		}
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Evaluation report fetched.", fiber.Map{
		"cert_no":       eval.CertNo,
		"CalibrationId": eval.CalibrationID,
		"status":        eval.DerivedStatus(),
		"created_at":    eval.CreatedAt,
		"ai_analysis":   eval.AIAnalysis,
		"report":        report,
	})
}

// Current returns the live certificate list from Phoenix
func Current(c *fiber.Ctx) error {
	certs, err := authority.GetAllCertificates(c.Context())
	if err != nil {
		return phoenixErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Current certificates fetched.", fiber.Map{
		"certificates": certs,
		"count":        len(certs),
	})
}

// List returns paginated stored evaluation summaries with a derived status
func List(c *fiber.Ctx) error {
	all := c.Query("all") == "true"
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	status := c.Query("status")
	search := c.Query("search")

	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	db := database.Database.Db

	query := db.Model(&models.EvaluationRecord{})
	switch status {
	case "ATTENTION":
		query = query.Where("tolerance_ok IS NULL")
	case "PASS":
		query = query.Where("tolerance_ok = ? AND (cmc_ok IS NULL OR cmc_ok = ?) AND (requirements_ok IS NULL OR requirements_ok = ?)", true, true, true)
	case "FAIL":
		query = query.Where("tolerance_ok = ? OR cmc_ok = ? OR requirements_ok = ?", false, false, false)
	}
	if search != "" {
		query = query.Where("cert_no ILIKE ?", "%"+search+"%")
	}

	var total int64
	query.Count(&total)

	query = query.Order("created_at DESC")
	if !all {
		query = query.Offset(offset).Limit(limit)
	}

	var evals []models.EvaluationRecord
	if err := query.Find(&evals).Error; err != nil {
		log.Printf("Error fetching evaluations: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch evaluations!", nil)
	}

	type summary struct {
		CertNo        string      `json:"cert_no"`
		CalibrationID string      `json:"CalibrationId"`
		Status        string      `json:"status"`
		CreatedAt     interface{} `json:"created_at"`
	}

	summaries := make([]summary, 0, len(evals))
	for _, eval := range evals {
		summaries = append(summaries, summary{
			CertNo:        eval.CertNo,
			CalibrationID: eval.CalibrationID,
			Status:        eval.DerivedStatus(),
			CreatedAt:     eval.CreatedAt,
		})
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Evaluations fetched.", fiber.Map{
		"certificates": summaries,
		"pagination": fiber.Map{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// Compare returns the local record and the Phoenix record side by side
func Compare(c *fiber.Ctx) error {
	reqData := new(struct {
		CertNo string `json:"cert_no"`
	})
	if err := c.BodyParser(reqData); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}
	if reqData.CertNo == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "cert_no is required!", nil)
	}

	db := database.Database.Db

	var eval models.EvaluationRecord
	localFound := true
	if err := db.Where("cert_no = ?", reqData.CertNo).Order("created_at DESC").First(&eval).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Error fetching evaluation for %s: %v", reqData.CertNo, err)
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch evaluation!", nil)
		}
		localFound = false
	}

	detail, err := authority.GetCertificateDetails(c.Context(), reqData.CertNo)
	if err != nil {
		return phoenixErrorResponse(c, err)
	}

	local := fiber.Map{"found": false}
	if localFound {
		local = fiber.Map{
			"found":         true,
			"CalibrationId": eval.CalibrationID,
			"status":        eval.DerivedStatus(),
			"created_at":    eval.CreatedAt,
		}
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate compared.", fiber.Map{
		"cert_no":  reqData.CertNo,
		"local":    local,
		"external": detail,
	})
}

// Coverage reports how much of the Phoenix certificate universe has a local
// evaluation. Dashboard metric.
func Coverage(c *fiber.Ctx) error {
	certs, err := authority.GetAllCertificates(c.Context())
	if err != nil {
		return phoenixErrorResponse(c, err)
	}

	db := database.Database.Db

	var localCertNos []string
	if err := db.Model(&models.EvaluationRecord{}).Distinct("cert_no").Pluck("cert_no", &localCertNos).Error; err != nil {
		log.Printf("Error fetching evaluated cert numbers: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch evaluations!", nil)
	}

	coverage := phoenix.CalculateProcessingCoverage(certs, localCertNos)
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Processing coverage calculated.", coverage)
}
