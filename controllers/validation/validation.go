package validationController

import (
	"calreview/database"
	"calreview/middleware"
	"calreview/models"
	"calreview/workflow"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wiring set by main (and by tests with stubs)
var (
	authority workflow.CertificateAuthority
	notifier  workflow.Notifier
)

// Init wires the external authority client and the approval notifier
func Init(a workflow.CertificateAuthority, n workflow.Notifier) {
	authority = a
	notifier = n
}

// reviewerIdentity prefers the session name, falling back to the email
func reviewerIdentity(c *fiber.Ctx) string {
	if name, ok := c.Locals("reviewerName").(string); ok && name != "" {
		return name
	}
	if email, ok := c.Locals("reviewerEmail").(string); ok && email != "" {
		return email
	}
	return ""
}

// workflowError translates a classified workflow error into the response
// envelope; anything unclassified is a 500.
func workflowError(c *fiber.Ctx, err error) error {
	var wErr *workflow.Error
	if errors.As(err, &wErr) {
		return middleware.JsonResponse(c, wErr.Status, false, wErr.Message, wErr.Details())
	}
	log.Printf("Unclassified workflow error: %v", err)
	return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Internal error!", nil)
}

// Approve runs the approval workflow for one certificate
func Approve(c *fiber.Ctx) error {
	reqData := new(struct {
		CertNo               string `json:"cert_no"`
		CalibrationID        string `json:"CalibrationId"`
		RevisionComment      string `json:"revision_comment"`
		JustificationComment string `json:"justification_comment"`
	})
	if err := c.BodyParser(reqData); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	record, err := workflow.Approve(c.Context(), database.Database.Db, authority, notifier, workflow.ApproveInput{
		CertNo:               reqData.CertNo,
		CalibrationID:        reqData.CalibrationID,
		RevisionComment:      reqData.RevisionComment,
		JustificationComment: reqData.JustificationComment,
		ApprovedBy:           reviewerIdentity(c),
	})
	if err != nil {
		return workflowError(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate approved.", record)
}

// Reject records a rejection with its structured error detail
func Reject(c *fiber.Ctx) error {
	reqData := new(struct {
		CertNo             string         `json:"cert_no"`
		ToleranceErrors    datatypes.JSON `json:"tolerance_errors"`
		CMCErrors          datatypes.JSON `json:"cmc_errors"`
		RequirementsErrors datatypes.JSON `json:"requirements_errors"`
	})
	if err := c.BodyParser(reqData); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	record, err := workflow.Reject(database.Database.Db, workflow.RejectInput{
		CertNo:             reqData.CertNo,
		RejectedBy:         reviewerIdentity(c),
		ToleranceErrors:    reqData.ToleranceErrors,
		CMCErrors:          reqData.CMCErrors,
		RequirementsErrors: reqData.RequirementsErrors,
	})
	if err != nil {
		return workflowError(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate rejected.", record)
}

// CanReapprove reports re-approval eligibility for the UI
func CanReapprove(c *fiber.Ctx) error {
	certNo := c.Query("cert_no")
	if certNo == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "cert_no query parameter is required!", nil)
	}

	eligibility, err := workflow.CanReapprove(database.Database.Db, certNo)
	if err != nil {
		return workflowError(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Re-approval eligibility checked.", eligibility)
}

// Status returns the current validation record for a certificate
func Status(c *fiber.Ctx) error {
	certNo := c.Query("cert_no")
	if certNo == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "cert_no query parameter is required!", nil)
	}

	db := database.Database.Db

	var record models.ValidationRecord
	if err := db.Where("cert_no = ?", certNo).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate has not been validated.", fiber.Map{
				"validated": false,
			})
		}
		log.Printf("Error fetching validation record for %s: %v", certNo, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch validation status!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Validation status fetched.", fiber.Map{
		"validated": true,
		"record":    record,
	})
}

// List returns paginated validation records
func List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("pageSize", 10)
	status := c.Query("status")
	search := c.Query("search")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	db := database.Database.Db

	query := db.Model(&models.ValidationRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if search != "" {
		query = query.Where("cert_no ILIKE ?", "%"+search+"%")
	}

	var total int64
	query.Count(&total)

	var records []models.ValidationRecord
	if err := query.
		Order("approved_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		log.Printf("Error fetching validation records: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch validation records!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Validation records fetched.", fiber.Map{
		"records": records,
		"pagination": fiber.Map{
			"total":    total,
			"page":     page,
			"pageSize": pageSize,
		},
	})
}

// CertNos returns the certificate numbers carrying a given status
func CertNos(c *fiber.Ctx) error {
	status := c.Query("status")

	db := database.Database.Db

	query := db.Model(&models.ValidationRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var certNos []string
	if err := query.Order("cert_no ASC").Pluck("cert_no", &certNos).Error; err != nil {
		log.Printf("Error fetching cert numbers: %v", err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch certificate numbers!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate numbers fetched.", fiber.Map{
		"cert_nos": certNos,
	})
}

// SaveFeedback stores client feedback on an approved certificate
func SaveFeedback(c *fiber.Ctx) error {
	reqData := new(struct {
		CertNo         string `json:"cert_no"`
		ClientFeedback string `json:"client_feedback"`
	})
	if err := c.BodyParser(reqData); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	db := database.Database.Db

	var record models.ValidationRecord
	if err := db.Where("cert_no = ?", reqData.CertNo).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return middleware.JsonResponse(c, fiber.StatusNotFound, false, "No validation record exists for this certificate!", nil)
		}
		log.Printf("Error fetching validation record for %s: %v", reqData.CertNo, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch validation record!", nil)
	}

	// Feedback only attaches to approved certificates
	if record.Status != models.StatusApproved {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "Client feedback can only be saved on approved certificates!", nil)
	}

	record.ClientFeedback = &reqData.ClientFeedback
	if err := db.Save(&record).Error; err != nil {
		log.Printf("Error saving client feedback for %s: %v", reqData.CertNo, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to save client feedback!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Client feedback saved.", record)
}
