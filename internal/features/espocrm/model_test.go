package espocrm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SetAPIURL_StripsTrailingSlashes(t *testing.T) {
	var c Config

	c.SetAPIURL("https://crm.example.com/")
	assert.Equal(t, "https://crm.example.com", c.APIURL)

	c.SetAPIURL("https://crm.example.com///")
	assert.Equal(t, "https://crm.example.com", c.APIURL)

	c.SetAPIURL("https://crm.example.com")
	assert.Equal(t, "https://crm.example.com", c.APIURL)
}

func TestConfig_APIEndpoint(t *testing.T) {
	var c Config
	c.SetAPIURL("https://crm.example.com/")

	assert.Equal(t, "https://crm.example.com/api/v1/Account", c.APIEndpoint("Account"))
	assert.Equal(t, "https://crm.example.com/api/v1/Account/123", c.APIEndpoint("/Account/123"))
	assert.Equal(t, "https://crm.example.com/api/v1/accessToken", c.APIEndpoint("accessToken"))
}

func TestConfig_DirectionPredicates(t *testing.T) {
	tests := []struct {
		name        string
		syncEnabled bool
		direction   SyncDirection
		outbound    bool
		inbound     bool
	}{
		{"bidirectional", true, DirectionBidirectional, true, true},
		{"outbound only", true, DirectionUnidirectionalOut, true, false},
		{"inbound only", true, DirectionUnidirectionalIn, false, true},
		{"sync disabled", false, DirectionBidirectional, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{SyncEnabled: tt.syncEnabled, SyncDirection: tt.direction}
			assert.Equal(t, tt.outbound, c.IsOutboundSyncEnabled())
			assert.Equal(t, tt.inbound, c.IsInboundSyncEnabled())
		})
	}
}

func TestSyncDirection_Valid(t *testing.T) {
	assert.True(t, DirectionBidirectional.Valid())
	assert.True(t, DirectionUnidirectionalIn.Valid())
	assert.True(t, DirectionUnidirectionalOut.Valid())
	assert.False(t, SyncDirection("both_ways").Valid())
	assert.False(t, SyncDirection("").Valid())
}

func TestSyncLog_MarkCompleted(t *testing.T) {
	log := NewSyncLog(SyncTypeClientToEspoCrm)
	log.CreatedAt = time.Now().Add(-10 * time.Second)

	log.MarkCompleted(StatusSuccess, "done")

	require.NotNil(t, log.CompletedAt)
	assert.Equal(t, StatusSuccess, log.Status)
	assert.Equal(t, "done", log.Message)
	assert.True(t, log.IsSuccess())
	// duration is whole seconds scaled to milliseconds
	assert.InDelta(t, 10000, log.Duration, 1001)
	assert.Zero(t, log.Duration%1000)
}

func TestSyncLog_MarkFailed(t *testing.T) {
	log := NewSyncLog(SyncTypeWebhook)

	log.MarkFailed("boom", map[string]interface{}{"error": "boom"})

	require.NotNil(t, log.CompletedAt)
	assert.Equal(t, StatusError, log.Status)
	assert.Equal(t, "boom", log.Message)
	assert.Equal(t, "boom", log.ErrorDetails["error"])
	assert.False(t, log.IsSuccess())
}
