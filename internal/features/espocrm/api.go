package espocrm

import (
	"crm-bridge/internal/config"
	"crm-bridge/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type EspoCrmApi struct {
	controller *EspoCrmController
	config     *config.Config
}

func NewEspoCrmApi(controller *EspoCrmController, config *config.Config) *EspoCrmApi {
	return &EspoCrmApi{
		controller: controller,
		config:     config,
	}
}

func (h *EspoCrmApi) Setup(app *fiber.App) {
	// EspoCRM authenticates pushes with an HMAC signature, not a JWT
	app.Post("/api/espocrm/webhook", h.controller.Webhook)

	espo := app.Group("/api/espocrm", middleware.AuthMiddleware(h.config.SkipAuth))

	espo.Get("/config", h.controller.GetConfig)
	espo.Post("/config", h.controller.CreateConfig)
	espo.Put("/config/:id", h.controller.UpdateConfig)
	espo.Post("/test-connection", h.controller.TestConnection)
	espo.Get("/sync/stats", h.controller.GetSyncStats)
	espo.Post("/sync/full", h.controller.FullSync)
	espo.Post("/sync/client/:clientId", h.controller.SyncClient)
	espo.Get("/logs", h.controller.ListLogs)
}
