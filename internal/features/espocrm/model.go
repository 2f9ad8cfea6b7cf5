package espocrm

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SyncDirection controls which way data is allowed to flow
type SyncDirection string

const (
	DirectionBidirectional     SyncDirection = "bidirectional"
	DirectionUnidirectionalIn  SyncDirection = "unidirectional_in"
	DirectionUnidirectionalOut SyncDirection = "unidirectional_out"
)

func (d SyncDirection) Valid() bool {
	switch d {
	case DirectionBidirectional, DirectionUnidirectionalIn, DirectionUnidirectionalOut:
		return true
	}
	return false
}

// SyncType classifies a sync log entry
type SyncType string

const (
	SyncTypeClientToEspoCrm SyncType = "client_to_espocrm"
	SyncTypeEspoCrmToClient SyncType = "espocrm_to_client"
	SyncTypeWebhook         SyncType = "webhook"
)

// SyncStatus is the outcome recorded on a sync log entry
type SyncStatus string

const (
	StatusSuccess SyncStatus = "success"
	StatusError   SyncStatus = "error"
)

// WebhookAction is the change kind announced by an EspoCRM webhook
type WebhookAction string

const (
	ActionCreate WebhookAction = "create"
	ActionUpdate WebhookAction = "update"
	ActionDelete WebhookAction = "delete"
)

// RemoteEntityType is the EspoCRM entity a webhook refers to
type RemoteEntityType string

const (
	EntityAccount RemoteEntityType = "Account"
	EntityContact RemoteEntityType = "Contact"
)

// Config holds the EspoCRM connection settings. At most one document may have
// is_active set, enforced by the repository on create.
type Config struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	APIURL         string             `json:"api_url" bson:"api_url"`
	APIKey         string             `json:"-" bson:"api_key"`
	Username       string             `json:"username" bson:"username"`
	WebhookURL     string             `json:"webhook_url,omitempty" bson:"webhook_url,omitempty"`
	WebhookSecret  string             `json:"-" bson:"webhook_secret,omitempty"`
	IsActive       bool               `json:"is_active" bson:"is_active"`
	SyncEnabled    bool               `json:"sync_enabled" bson:"sync_enabled"`
	WebhookEnabled bool               `json:"webhook_enabled" bson:"webhook_enabled"`
	SyncDirection  SyncDirection      `json:"sync_direction" bson:"sync_direction"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
	LastSyncAt     *time.Time         `json:"last_sync_at,omitempty" bson:"last_sync_at,omitempty"`
}

// SetAPIURL stores the base URL without its trailing slash
func (c *Config) SetAPIURL(url string) {
	c.APIURL = strings.TrimRight(url, "/")
}

// APIEndpoint builds the full URL for an API v1 endpoint
func (c *Config) APIEndpoint(endpoint string) string {
	return c.APIURL + "/api/v1/" + strings.TrimLeft(endpoint, "/")
}

func (c *Config) IsOutboundSyncEnabled() bool {
	return c.SyncEnabled &&
		(c.SyncDirection == DirectionBidirectional || c.SyncDirection == DirectionUnidirectionalOut)
}

func (c *Config) IsInboundSyncEnabled() bool {
	return c.SyncEnabled &&
		(c.SyncDirection == DirectionBidirectional || c.SyncDirection == DirectionUnidirectionalIn)
}

// SyncLog is one synchronization attempt. Created when the operation starts,
// completed exactly once via MarkCompleted or MarkFailed.
type SyncLog struct {
	ID           primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	SyncType     SyncType               `json:"sync_type" bson:"sync_type"`
	Status       SyncStatus             `json:"status" bson:"status"`
	EntityType   string                 `json:"entity_type,omitempty" bson:"entity_type,omitempty"`
	EntityID     string                 `json:"entity_id,omitempty" bson:"entity_id,omitempty"`
	EspoCrmID    string                 `json:"espocrm_id,omitempty" bson:"espocrm_id,omitempty"`
	Message      string                 `json:"message,omitempty" bson:"message,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`
	ErrorDetails map[string]interface{} `json:"error_details,omitempty" bson:"error_details,omitempty"`
	CreatedAt    time.Time              `json:"created_at" bson:"created_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Duration     int64                  `json:"duration" bson:"duration"` // milliseconds
}

// NewSyncLog starts a log entry for the given sync type
func NewSyncLog(syncType SyncType) *SyncLog {
	return &SyncLog{
		SyncType:  syncType,
		CreatedAt: time.Now(),
	}
}

// MarkCompleted stamps the completion time and computes the duration from the
// creation time. The record is write-once after completion: callers must not
// complete the same entry twice.
func (l *SyncLog) MarkCompleted(status SyncStatus, message string) {
	now := time.Now()
	l.Status = status
	l.Message = message
	l.CompletedAt = &now
	l.Duration = (now.Unix() - l.CreatedAt.Unix()) * 1000
}

// MarkFailed records the error outcome with optional details
func (l *SyncLog) MarkFailed(message string, errorDetails map[string]interface{}) {
	now := time.Now()
	l.Status = StatusError
	l.Message = message
	l.ErrorDetails = errorDetails
	l.CompletedAt = &now
	l.Duration = (now.Unix() - l.CreatedAt.Unix()) * 1000
}

func (l *SyncLog) IsSuccess() bool {
	return l.Status == StatusSuccess
}

// SyncStats aggregates the sync log history for the admin surface
type SyncStats struct {
	Total              int64      `json:"total"`
	Successful         int64      `json:"successful"`
	Failed             int64      `json:"failed"`
	SuccessRate        float64    `json:"success_rate"` // percentage, 2 decimals
	LastSuccessfulSync *time.Time `json:"last_successful_sync"`
	ConfigActive       bool       `json:"config_active"`
}

// FullSyncStats is the aggregate outcome of one full sync round
type FullSyncStats struct {
	SyncedToEspoCrm   int `json:"clients_synced_to_espocrm"`
	SyncedFromEspoCrm int `json:"clients_synced_from_espocrm"`
	Errors            int `json:"errors"`
}
