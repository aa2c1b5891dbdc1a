package validationController

import (
	"bufio"
	"calreview/config"
	"calreview/middleware"
	"io"
	"log"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Recommendation proxies a streamed text completion from the configured
// completion API back to the reviewer UI.
func Recommendation(c *fiber.Ctx) error {
	reqData := new(struct {
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
	})
	if err := c.BodyParser(reqData); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}
	if reqData.Prompt == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "prompt is required!", nil)
	}

	cfg := config.AppConfig
	if cfg.RecommendationApiURL == "" {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Recommendation API is not configured!", nil)
	}

	model := reqData.Model
	if model == "" {
		model = cfg.RecommendationModel
	}

	client := resty.New().SetDoNotParseResponse(true)
	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.RecommendationApiKey).
		SetBody(map[string]interface{}{
			"model":  model,
			"prompt": reqData.Prompt,
			"stream": true,
		}).
		Post(cfg.RecommendationApiURL)
	if err != nil {
		log.Printf("Recommendation API request failed: %v", err)
		return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Recommendation API is unreachable!", nil)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		resp.RawBody().Close()
		log.Printf("Recommendation API returned status %d", resp.StatusCode())
		return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Recommendation API returned an error!", nil)
	}

	body := resp.RawBody()
	c.Set("Content-Type", "text/plain; charset=utf-8")

	var stream fasthttp.StreamWriter = func(w *bufio.Writer) {
		defer body.Close()
		if _, err := io.Copy(w, body); err != nil {
			log.Printf("Recommendation stream interrupted: %v", err)
		}
	}
	c.Context().SetBodyStreamWriter(stream)
	return nil
}
