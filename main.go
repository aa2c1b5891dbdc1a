package main

import (
	"calreview/config"
	certificateControllers "calreview/controllers/certificates"
	validationControllers "calreview/controllers/validation"
	"calreview/database"
	"calreview/phoenix"
	authRoutes "calreview/routers/authRoutes"
	certificateRoutes "calreview/routers/certificateRoutes"
	validationRoutes "calreview/routers/validationRoutes"
	"calreview/utils"
	"calreview/workflow"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadConfig()
	database.ConnectDb()

	phoenixClient := phoenix.NewClient()
	validationControllers.Init(phoenixClient, workflow.NewWebhookNotifier())
	certificateControllers.Init(phoenixClient)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",        // Allowed HTTP methods
		AllowHeaders: "Content-Type,Authorization", // Allowed headers
	}))

	// Enable the built-in logger middleware to log all requests
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	// Serve static files from the public folder
	app.Static("/", "./public")

	authRoutes.SetupAuthRoutes(app)
	certificateRoutes.SetupCertificateRoutes(app)
	validationRoutes.SetupValidationRoutes(app)

	utils.InitializeCoverageScheduler(phoenixClient)

	log.Printf("Server is running on port %s", config.AppConfig.Port)
	log.Fatal(app.Listen(":" + config.AppConfig.Port))
}
