package certificateValidator

import (
	"calreview/middleware"

	"github.com/gofiber/fiber/v2"
)

// Compare validates the certificate comparison request
func Compare() fiber.Handler {
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
