package espocrm

import (
	"encoding/json"
	"errors"
	"strconv"

	"crm-bridge/internal/features/client"

	"github.com/gofiber/fiber/v2"
)

type EspoCrmController struct {
	Service    Service
	ClientRepo client.ClientRepository
	Dispatcher Dispatcher
}

func NewEspoCrmController(service Service, clientRepo client.ClientRepository, dispatcher Dispatcher) *EspoCrmController {
	return &EspoCrmController{
		Service:    service,
		ClientRepo: clientRepo,
		Dispatcher: dispatcher,
	}
}

// jsonError is the common failure envelope: error carries the cause,
// message the operation that failed
func jsonError(c *fiber.Ctx, status int, message string, err error) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
		"message": message,
	})
}

func (ctrl *EspoCrmController) GetConfig(c *fiber.Ctx) error {
	config, err := ctrl.Service.ActiveConfig(c.UserContext())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load EspoCRM configuration", err)
	}
	if config == nil {
		return jsonError(c, fiber.StatusNotFound, "Failed to load EspoCRM configuration", ErrNoActiveConfig)
	}

	return c.JSON(fiber.Map{
		"data": config,
	})
}

func (ctrl *EspoCrmController) CreateConfig(c *fiber.Ctx) error {
	var config Config
	if err := c.BodyParser(&config); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	// APIKey and WebhookSecret are write-only and never rendered back,
	// so they are read from the raw body rather than the struct tags.
	var secrets struct {
		APIKey        string `json:"api_key"`
		WebhookSecret string `json:"webhook_secret"`
	}
	if err := json.Unmarshal(c.Body(), &secrets); err == nil {
		config.APIKey = secrets.APIKey
		config.WebhookSecret = secrets.WebhookSecret
	}

	if err := ctrl.Service.CreateConfig(c.UserContext(), &config); err != nil {
		return jsonError(c, statusForError(err), "Failed to create EspoCRM configuration", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "EspoCRM configuration created successfully",
		"data":    config,
	})
}

func (ctrl *EspoCrmController) UpdateConfig(c *fiber.Ctx) error {
	id := c.Params("id")

	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := ctrl.Service.UpdateConfig(c.UserContext(), id, updates); err != nil {
		return jsonError(c, statusForError(err), "Failed to update EspoCRM configuration", err)
	}

	return c.JSON(fiber.Map{
		"message": "EspoCRM configuration updated successfully",
	})
}

func (ctrl *EspoCrmController) TestConnection(c *fiber.Ctx) error {
	user, err := ctrl.Service.TestConnection(c.UserContext())
	if err != nil {
		return jsonError(c, statusForError(err), "Connection to EspoCRM failed", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Connection to EspoCRM established",
		"data":    user,
	})
}

func (ctrl *EspoCrmController) GetSyncStats(c *fiber.Ctx) error {
	stats, err := ctrl.Service.SyncStats(c.UserContext())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load sync statistics", err)
	}

	return c.JSON(fiber.Map{
		"data": stats,
	})
}

func (ctrl *EspoCrmController) FullSync(c *fiber.Ctx) error {
	var req struct {
		Async bool `json:"async"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}

	if req.Async {
		if err := ctrl.Dispatcher.Dispatch(c.UserContext(), ForFullSync()); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Failed to queue full synchronization", err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Full synchronization queued",
		})
	}

	stats, err := ctrl.Service.FullSync(c.UserContext())
	if err != nil {
		return jsonError(c, statusForError(err), "Full synchronization failed", err)
	}

	return c.JSON(fiber.Map{
		"message": "Full synchronization completed",
		"data":    stats,
	})
}

func (ctrl *EspoCrmController) SyncClient(c *fiber.Ctx) error {
	clientID := c.Params("clientId")

	var req struct {
		Async bool `json:"async"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "Invalid request body", err)
		}
	}

	if req.Async {
		if err := ctrl.Dispatcher.Dispatch(c.UserContext(), ForClientToEspoCrm(clientID)); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Failed to queue client synchronization", err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Client synchronization queued",
		})
	}

	cl, err := ctrl.ClientRepo.Get(c.UserContext(), clientID)
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "Client not found", err)
	}

	if err := ctrl.Service.SyncClientToEspoCrm(c.UserContext(), cl); err != nil {
		return jsonError(c, statusForError(err), "Client synchronization failed", err)
	}

	return c.JSON(fiber.Map{
		"message": "Client synchronized successfully",
		"data":    cl,
	})
}

func (ctrl *EspoCrmController) ListLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	filter := SyncLogFilter{
		Status:   SyncStatus(c.Query("status")),
		SyncType: SyncType(c.Query("sync_type")),
		Page:     page,
		Limit:    limit,
	}

	logs, total, err := ctrl.Service.ListLogs(c.UserContext(), filter)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to list sync logs", err)
	}

	pages := int64(0)
	if filter.Limit > 0 {
		pages = (total + int64(filter.Limit) - 1) / int64(filter.Limit)
	}

	return c.JSON(fiber.Map{
		"data": logs,
		"pagination": fiber.Map{
			"page":  filter.Page,
			"limit": filter.Limit,
			"total": total,
			"pages": pages,
		},
	})
}

// Webhook is the unauthenticated receiver for EspoCRM push notifications.
// The signature is verified at processing time against the raw body bytes,
// so the handler only pre-validates the payload shape before queueing.
func (ctrl *EspoCrmController) Webhook(c *fiber.Ctx) error {
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	var probe map[string]interface{}
	if err := json.Unmarshal(body, &probe); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid payload")
	}

	signature := c.Get("X-Espocrm-Signature")

	if err := ctrl.Dispatcher.Dispatch(c.UserContext(), ForWebhook(body, signature)); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("queue unavailable")
	}

	return c.SendString("OK")
}

func statusForError(err error) int {
	var validation *ValidationError
	var auth *AuthError
	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest
	case errors.As(err, &auth):
		return fiber.StatusBadGateway
	case errors.Is(err, ErrNoActiveConfig), errors.Is(err, ErrSyncDisabled):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
