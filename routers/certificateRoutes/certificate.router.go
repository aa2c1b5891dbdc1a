package certificateRoutes

import (
	certificateControllers "calreview/controllers/certificates"
	certificateValidators "calreview/validators/certificates"

	"github.com/gofiber/fiber/v2"
)

func SetupCertificateRoutes(app *fiber.App) {
	certGroup := app.Group("/certificates")

	certGroup.Get("/current", certificateControllers.Current)
	certGroup.Get("/list", certificateControllers.List)
	certGroup.Get("/coverage", certificateControllers.Coverage)
	certGroup.Post("/compare", certificateValidators.Compare(), certificateControllers.Compare)
	certGroup.Get("/:certNo/report", certificateControllers.Report)
}
