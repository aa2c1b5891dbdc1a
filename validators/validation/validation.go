package validationValidator

import (
	"calreview/middleware"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Approve validates the certificate approval request
func Approve() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			CertNo          string `json:"cert_no"`
			RevisionComment string `json:"revision_comment"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		if reqData.CertNo == "" {
			errors["cert_no"] = "Certificate number is required!"
		}
		if strings.TrimSpace(reqData.RevisionComment) == "" {
			errors["revision_comment"] = "Revision comment is required!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		return c.Next()
	}
}

// Reject validates the certificate rejection request
func Reject() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			CertNo string `json:"cert_no"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		if reqData.CertNo == "" {
			errors["cert_no"] = "Certificate number is required!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		return c.Next()
	}
}

// SaveFeedback validates the client feedback request
func SaveFeedback() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			CertNo         string `json:"cert_no"`
			ClientFeedback string `json:"client_feedback"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		if reqData.CertNo == "" {
			errors["cert_no"] = "Certificate number is required!"
		}
		if strings.TrimSpace(reqData.ClientFeedback) == "" {
			errors["client_feedback"] = "Client feedback is required!"
		}

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		return c.Next()
	}
}
