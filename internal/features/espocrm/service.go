package espocrm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"crm-bridge/internal/features/client"

	"go.uber.org/zap"
)

const accountPageSize = 200

type Service interface {
	ActiveConfig(ctx context.Context) (*Config, error)
	RequireActiveConfig(ctx context.Context) (*Config, error)
	CreateConfig(ctx context.Context, config *Config) error
	UpdateConfig(ctx context.Context, id string, updates map[string]interface{}) error

	SyncClientToEspoCrm(ctx context.Context, c *client.Client) error
	SyncClientFromEspoCrm(ctx context.Context, espocrmID string) (*client.Client, error)
	FullSync(ctx context.Context) (*FullSyncStats, error)
	ProcessWebhook(ctx context.Context, payload []byte, signature string) error

	TestConnection(ctx context.Context) (map[string]interface{}, error)
	SyncStats(ctx context.Context) (*SyncStats, error)
	ListLogs(ctx context.Context, filter SyncLogFilter) ([]SyncLog, int64, error)
}

type ServiceImpl struct {
	ConfigRepo ConfigRepository
	LogRepo    SyncLogRepository
	ClientRepo client.ClientRepository
	Api        ApiClient
	Logger     *zap.Logger
}

func NewService(configRepo ConfigRepository, logRepo SyncLogRepository, clientRepo client.ClientRepository, api ApiClient, logger *zap.Logger) Service {
	return &ServiceImpl{
		ConfigRepo: configRepo,
		LogRepo:    logRepo,
		ClientRepo: clientRepo,
		Api:        api,
		Logger:     logger,
	}
}

// ActiveConfig returns (nil, nil) when no configuration is active. Best-effort
// callers use this to skip silently.
func (s *ServiceImpl) ActiveConfig(ctx context.Context) (*Config, error) {
	return s.ConfigRepo.GetActive(ctx)
}

// RequireActiveConfig is the strict variant for CLI/API entry points: absence
// of an active configuration is a hard error.
func (s *ServiceImpl) RequireActiveConfig(ctx context.Context) (*Config, error) {
	config, err := s.ConfigRepo.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, ErrNoActiveConfig
	}
	return config, nil
}

func (s *ServiceImpl) CreateConfig(ctx context.Context, config *Config) error {
	if config.APIURL == "" || config.APIKey == "" || config.Username == "" {
		return &ValidationError{Message: "api_url, api_key and username are required"}
	}
	if config.SyncDirection == "" {
		config.SyncDirection = DirectionBidirectional
	}
	if !config.SyncDirection.Valid() {
		return &ValidationError{Message: fmt.Sprintf("invalid sync direction %q", config.SyncDirection)}
	}
	config.SetAPIURL(config.APIURL)

	return s.ConfigRepo.Create(ctx, config)
}

func (s *ServiceImpl) UpdateConfig(ctx context.Context, id string, updates map[string]interface{}) error {
	if raw, ok := updates["sync_direction"]; ok {
		direction, _ := raw.(string)
		if !SyncDirection(direction).Valid() {
			return &ValidationError{Message: fmt.Sprintf("invalid sync direction %q", direction)}
		}
	}
	if raw, ok := updates["api_url"]; ok {
		if url, isString := raw.(string); isString {
			c := Config{}
			c.SetAPIURL(url)
			updates["api_url"] = c.APIURL
		}
	}

	return s.ConfigRepo.Update(ctx, id, updates)
}

// SyncClientToEspoCrm pushes one local client to EspoCRM. A set espocrm_id
// routes to an update, otherwise the account is created and the new remote id
// persisted back onto the client.
func (s *ServiceImpl) SyncClientToEspoCrm(ctx context.Context, c *client.Client) error {
	config, err := s.ActiveConfig(ctx)
	if err != nil {
		return err
	}
	if config == nil || !config.IsOutboundSyncEnabled() {
		return ErrSyncDisabled
	}

	log := NewSyncLog(SyncTypeClientToEspoCrm)
	log.EntityType = "Client"
	log.EntityID = c.ID.Hex()
	if err := s.LogRepo.Create(ctx, log); err != nil {
		return err
	}

	if err := s.pushClient(ctx, config, c, log); err != nil {
		log.MarkFailed(err.Error(), map[string]interface{}{"error": err.Error()})
		if updateErr := s.LogRepo.Update(ctx, log); updateErr != nil {
			s.Logger.Error("failed to update sync log", zap.Error(updateErr))
		}
		s.Logger.Error("client sync to EspoCRM failed",
			zap.String("sync_type", string(SyncTypeClientToEspoCrm)),
			zap.String("client_id", c.ID.Hex()),
			zap.Error(err))
		return err
	}

	log.MarkCompleted(StatusSuccess, "Client synchronized to EspoCRM")
	return s.LogRepo.Update(ctx, log)
}

func (s *ServiceImpl) pushClient(ctx context.Context, config *Config, c *client.Client, log *SyncLog) error {
	payload := accountPayload(c)

	if c.EspoCrmID != "" {
		// Update existing account: full replace, not merge
		if _, err := s.Api.Request(ctx, config, http.MethodPut, "Account/"+c.EspoCrmID, payload); err != nil {
			return err
		}
		log.EspoCrmID = c.EspoCrmID
		return nil
	}

	response, err := s.Api.Request(ctx, config, http.MethodPost, "Account", payload)
	if err != nil {
		return err
	}

	espocrmID, _ := response["id"].(string)
	if espocrmID == "" {
		return fmt.Errorf("EspoCRM did not return an id for the created account")
	}

	c.EspoCrmID = espocrmID
	log.EspoCrmID = espocrmID
	return s.ClientRepo.Save(ctx, c)
}

// SyncClientFromEspoCrm pulls one remote account into local storage, upserting
// by espocrm_id so repeated delivery never creates duplicate rows.
func (s *ServiceImpl) SyncClientFromEspoCrm(ctx context.Context, espocrmID string) (*client.Client, error) {
	config, err := s.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config == nil || !config.IsInboundSyncEnabled() {
		return nil, ErrSyncDisabled
	}

	log := NewSyncLog(SyncTypeEspoCrmToClient)
	log.EntityType = "Client"
	log.EspoCrmID = espocrmID
	if err := s.LogRepo.Create(ctx, log); err != nil {
		return nil, err
	}

	c, err := s.pullClient(ctx, config, espocrmID)
	if err != nil {
		log.MarkFailed(err.Error(), map[string]interface{}{"error": err.Error()})
		if updateErr := s.LogRepo.Update(ctx, log); updateErr != nil {
			s.Logger.Error("failed to update sync log", zap.Error(updateErr))
		}
		s.Logger.Error("client sync from EspoCRM failed",
			zap.String("sync_type", string(SyncTypeEspoCrmToClient)),
			zap.String("espocrm_id", espocrmID),
			zap.Error(err))
		return nil, err
	}

	log.EntityID = c.ID.Hex()
	log.MarkCompleted(StatusSuccess, "Client synchronized from EspoCRM")
	if err := s.LogRepo.Update(ctx, log); err != nil {
		return nil, err
	}

	return c, nil
}

func (s *ServiceImpl) pullClient(ctx context.Context, config *Config, espocrmID string) (*client.Client, error) {
	response, err := s.Api.Request(ctx, config, http.MethodGet, "Account/"+espocrmID, nil)
	if err != nil {
		return nil, err
	}

	if id, _ := response["id"].(string); id == "" {
		return nil, fmt.Errorf("account %s not found in EspoCRM", espocrmID)
	}

	c, err := s.ClientRepo.GetByEspoCrmID(ctx, espocrmID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &client.Client{EspoCrmID: espocrmID}
	}

	applyAccountData(c, response)

	if err := s.ClientRepo.Save(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

// FullSync runs one round in the configured directions. A single item failure
// is counted and never aborts the batch; last_sync_at is updated regardless of
// partial errors.
func (s *ServiceImpl) FullSync(ctx context.Context) (*FullSyncStats, error) {
	config, err := s.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, ErrNoActiveConfig
	}

	stats := &FullSyncStats{}

	if config.IsOutboundSyncEnabled() {
		clients, err := s.ClientRepo.List(ctx)
		if err != nil {
			return nil, err
		}

		for i := range clients {
			if err := s.SyncClientToEspoCrm(ctx, &clients[i]); err != nil {
				stats.Errors++
				s.Logger.Warn("full sync: outbound client failed",
					zap.String("client_id", clients[i].ID.Hex()),
					zap.Error(err))
				continue
			}
			stats.SyncedToEspoCrm++
		}
	}

	if config.IsInboundSyncEnabled() {
		s.pullAllAccounts(ctx, config, stats)
	}

	now := time.Now()
	if err := s.ConfigRepo.Update(ctx, config.ID.Hex(), map[string]interface{}{"last_sync_at": now}); err != nil {
		s.Logger.Error("full sync: failed to update last_sync_at", zap.Error(err))
	}

	s.Logger.Info("full EspoCRM sync completed",
		zap.Int("synced_to_espocrm", stats.SyncedToEspoCrm),
		zap.Int("synced_from_espocrm", stats.SyncedFromEspoCrm),
		zap.Int("errors", stats.Errors))

	return stats, nil
}

func (s *ServiceImpl) pullAllAccounts(ctx context.Context, config *Config, stats *FullSyncStats) {
	offset := 0
	for {
		endpoint := fmt.Sprintf("Account?maxSize=%d&offset=%d", accountPageSize, offset)
		response, err := s.Api.Request(ctx, config, http.MethodGet, endpoint, nil)
		if err != nil {
			stats.Errors++
			s.Logger.Error("full sync: failed to list EspoCRM accounts", zap.Error(err))
			return
		}

		list, _ := response["list"].([]interface{})
		for _, raw := range list {
			account, ok := raw.(map[string]interface{})
			if !ok {
				stats.Errors++
				continue
			}
			espocrmID, _ := account["id"].(string)
			if espocrmID == "" {
				stats.Errors++
				continue
			}

			if _, err := s.SyncClientFromEspoCrm(ctx, espocrmID); err != nil {
				stats.Errors++
				s.Logger.Warn("full sync: inbound account failed",
					zap.String("espocrm_id", espocrmID),
					zap.Error(err))
				continue
			}
			stats.SyncedFromEspoCrm++
		}

		if len(list) < accountPageSize {
			return
		}
		offset += accountPageSize
	}
}

// ProcessWebhook verifies and applies one EspoCRM webhook. The signature is
// checked over the raw body bytes with a constant-time compare; a configured
// secret with a missing or wrong signature fails closed.
func (s *ServiceImpl) ProcessWebhook(ctx context.Context, payload []byte, signature string) error {
	config, err := s.ActiveConfig(ctx)
	if err != nil {
		return err
	}
	if config == nil || !config.WebhookEnabled {
		return ErrSyncDisabled
	}

	log := NewSyncLog(SyncTypeWebhook)

	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err == nil {
		log.Data = data
	}

	if err := s.LogRepo.Create(ctx, log); err != nil {
		return err
	}

	if err := s.applyWebhook(ctx, config, payload, signature, data, log); err != nil {
		log.MarkFailed(err.Error(), map[string]interface{}{"error": err.Error()})
		if updateErr := s.LogRepo.Update(ctx, log); updateErr != nil {
			s.Logger.Error("failed to update sync log", zap.Error(updateErr))
		}
		s.Logger.Error("EspoCRM webhook processing failed",
			zap.String("sync_type", string(SyncTypeWebhook)),
			zap.Error(err))
		return err
	}

	log.MarkCompleted(StatusSuccess, "Webhook processed")
	return s.LogRepo.Update(ctx, log)
}

func (s *ServiceImpl) applyWebhook(ctx context.Context, config *Config, payload []byte, signature string, data map[string]interface{}, log *SyncLog) error {
	if config.WebhookSecret != "" {
		if !verifySignature(payload, signature, config.WebhookSecret) {
			return ErrSignatureInvalid
		}
	}

	if data == nil {
		return &ValidationError{Message: "webhook body is not valid JSON"}
	}

	entityType, _ := data["entityType"].(string)
	entityID, _ := data["entityId"].(string)
	action, _ := data["action"].(string)
	if entityType == "" || entityID == "" || action == "" {
		return &ValidationError{Message: "webhook requires entityType, entityId and action"}
	}

	log.EntityType = entityType
	log.EspoCrmID = entityID

	switch RemoteEntityType(entityType) {
	case EntityAccount:
		return s.handleAccountWebhook(ctx, entityID, WebhookAction(action))
	case EntityContact:
		// Observation point only: contacts are not linked to a local entity yet
		s.Logger.Info("EspoCRM Contact webhook received",
			zap.String("espocrm_id", entityID),
			zap.String("action", action))
		return nil
	default:
		s.Logger.Info("unhandled EspoCRM webhook entity type",
			zap.String("entity_type", entityType))
		return nil
	}
}

func (s *ServiceImpl) handleAccountWebhook(ctx context.Context, espocrmID string, action WebhookAction) error {
	switch action {
	case ActionCreate, ActionUpdate:
		_, err := s.SyncClientFromEspoCrm(ctx, espocrmID)
		if err == ErrSyncDisabled {
			// Inbound direction disabled: the webhook is acknowledged, not applied
			return nil
		}
		return err
	case ActionDelete:
		c, err := s.ClientRepo.GetByEspoCrmID(ctx, espocrmID)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		return s.ClientRepo.Delete(ctx, c.ID.Hex())
	default:
		s.Logger.Info("unhandled EspoCRM webhook action", zap.String("action", string(action)))
		return nil
	}
}

func verifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// TestConnection authenticates and fetches the API user to prove the
// credentials work end to end.
func (s *ServiceImpl) TestConnection(ctx context.Context) (map[string]interface{}, error) {
	config, err := s.RequireActiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Api.Authenticate(ctx, config); err != nil {
		return nil, err
	}

	return s.Api.Request(ctx, config, http.MethodGet, "User/me", nil)
}

func (s *ServiceImpl) SyncStats(ctx context.Context) (*SyncStats, error) {
	total, err := s.LogRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	successful, err := s.LogRepo.CountByStatus(ctx, StatusSuccess)
	if err != nil {
		return nil, err
	}
	failed, err := s.LogRepo.CountByStatus(ctx, StatusError)
	if err != nil {
		return nil, err
	}
	lastSuccess, err := s.LogRepo.LastSuccessfulAt(ctx)
	if err != nil {
		return nil, err
	}
	config, err := s.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	var successRate float64
	if total > 0 {
		successRate = math.Round(float64(successful)/float64(total)*100*100) / 100
	}

	return &SyncStats{
		Total:              total,
		Successful:         successful,
		Failed:             failed,
		SuccessRate:        successRate,
		LastSuccessfulSync: lastSuccess,
		ConfigActive:       config != nil,
	}, nil
}

func (s *ServiceImpl) ListLogs(ctx context.Context, filter SyncLogFilter) ([]SyncLog, int64, error) {
	return s.LogRepo.List(ctx, filter)
}

// accountPayload shapes a local client as an EspoCRM Account body
func accountPayload(c *client.Client) map[string]interface{} {
	return map[string]interface{}{
		"name":                     c.CompanyName,
		"type":                     "Customer",
		"phoneNumber":              c.Phone,
		"emailAddress":             c.Email,
		"billingAddress":           c.Address,
		"billingAddressCity":       c.City,
		"billingAddressPostalCode": c.PostalCode,
		"billingAddressCountry":    c.Country,
		"vatNumber":                c.VatNumber,
		"description":              c.Notes,
	}
}

// applyAccountData overwrites all mapped client fields from the remote
// account: last writer wins, no merge
func applyAccountData(c *client.Client, data map[string]interface{}) {
	c.CompanyName = stringField(data, "name")
	c.Phone = stringField(data, "phoneNumber")
	c.Email = stringField(data, "emailAddress")
	c.Address = stringField(data, "billingAddress")
	c.City = stringField(data, "billingAddressCity")
	c.PostalCode = stringField(data, "billingAddressPostalCode")
	c.Country = stringField(data, "billingAddressCountry")
	c.VatNumber = stringField(data, "vatNumber")
	c.Notes = stringField(data, "description")
}

func stringField(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}
