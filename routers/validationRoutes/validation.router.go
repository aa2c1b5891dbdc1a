package validationRoutes

import (
	validationControllers "calreview/controllers/validation"
	"calreview/middleware"
	validationValidators "calreview/validators/validation"

	"github.com/gofiber/fiber/v2"
)

func SetupValidationRoutes(app *fiber.App) {
	validationGroup := app.Group("/validation")

	validationGroup.Post("/approve", middleware.JWTMiddleware, validationValidators.Approve(), validationControllers.Approve)
	validationGroup.Post("/reject", middleware.JWTMiddleware, validationValidators.Reject(), validationControllers.Reject)
	validationGroup.Get("/can-reapprove", validationControllers.CanReapprove)
	validationGroup.Get("/status", validationControllers.Status)
	validationGroup.Get("/list", middleware.JWTMiddleware, validationControllers.List)
	validationGroup.Get("/cert-nos", validationControllers.CertNos)
	validationGroup.Post("/recommendation", validationControllers.Recommendation)
	validationGroup.Post("/recommendation/save", middleware.JWTMiddleware, validationValidators.SaveFeedback(), validationControllers.SaveFeedback)
}
