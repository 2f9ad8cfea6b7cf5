package espocrm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncMessage_Constructors(t *testing.T) {
	msg := ForClientToEspoCrm("abc123")
	assert.Equal(t, MessageClientToEspoCrm, msg.Type)
	assert.Equal(t, "abc123", msg.ClientID)
	assert.Empty(t, msg.EspoCrmID)

	msg = ForEspoCrmToClient("espo42")
	assert.Equal(t, MessageEspoCrmToClient, msg.Type)
	assert.Equal(t, "espo42", msg.EspoCrmID)
	assert.Empty(t, msg.ClientID)

	msg = ForFullSync()
	assert.Equal(t, MessageFullSync, msg.Type)

	body := []byte(`{"entityType":"Account"}`)
	msg = ForWebhook(body, "sig")
	assert.Equal(t, MessageWebhook, msg.Type)
	assert.Equal(t, body, msg.Payload)
	assert.Equal(t, "sig", msg.Signature)
}
