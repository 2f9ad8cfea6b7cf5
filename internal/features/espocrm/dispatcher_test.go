package espocrm

import (
	"context"
	"testing"

	"crm-bridge/internal/config"
	"crm-bridge/internal/features/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMessageHandler_ValidatesMessage(t *testing.T) {
	svc := newTestService(&MockConfigRepo{Active: activeConfig()}, &MockLogRepo{}, NewMockClientRepo(), &MockApi{})
	handler := NewMessageHandler(svc, NewMockClientRepo(), zap.NewNop())

	var validation *ValidationError

	err := handler.Handle(context.Background(), SyncMessage{Type: MessageClientToEspoCrm})
	require.ErrorAs(t, err, &validation)

	err = handler.Handle(context.Background(), SyncMessage{Type: MessageEspoCrmToClient})
	require.ErrorAs(t, err, &validation)

	err = handler.Handle(context.Background(), SyncMessage{Type: MessageWebhook})
	require.ErrorAs(t, err, &validation)

	err = handler.Handle(context.Background(), SyncMessage{Type: MessageType("reindex")})
	require.ErrorAs(t, err, &validation)
}

func TestMessageHandler_OutboundSync(t *testing.T) {
	c := &client.Client{CompanyName: "Acme"}
	clientRepo := NewMockClientRepo(c)
	api := &MockApi{Responses: map[string]map[string]interface{}{
		"POST Account": {"id": "espo-1"},
	}}
	svc := newTestService(&MockConfigRepo{Active: activeConfig()}, &MockLogRepo{}, clientRepo, api)
	handler := NewMessageHandler(svc, clientRepo, zap.NewNop())

	err := handler.Handle(context.Background(), ForClientToEspoCrm(c.ID.Hex()))
	require.NoError(t, err)
	assert.Equal(t, "espo-1", c.EspoCrmID)
}

func TestMessageHandler_DisabledSyncIsSkipped(t *testing.T) {
	cfg := activeConfig()
	cfg.SyncEnabled = false
	c := &client.Client{CompanyName: "Acme"}
	clientRepo := NewMockClientRepo(c)
	svc := newTestService(&MockConfigRepo{Active: cfg}, &MockLogRepo{}, clientRepo, &MockApi{})
	handler := NewMessageHandler(svc, clientRepo, zap.NewNop())

	// a disabled integration drops the message without failing the worker
	err := handler.Handle(context.Background(), ForClientToEspoCrm(c.ID.Hex()))
	assert.NoError(t, err)
}

func TestMessageHandler_PropagatesEngineErrors(t *testing.T) {
	c := &client.Client{CompanyName: "Acme", EspoCrmID: "espo-9"}
	clientRepo := NewMockClientRepo(c)
	api := &MockApi{Errs: map[string]error{
		"PUT Account/espo-9": &RequestError{Method: "PUT", Endpoint: "Account/espo-9", Status: 500},
	}}
	svc := newTestService(&MockConfigRepo{Active: activeConfig()}, &MockLogRepo{}, clientRepo, api)
	handler := NewMessageHandler(svc, clientRepo, zap.NewNop())

	err := handler.Handle(context.Background(), ForClientToEspoCrm(c.ID.Hex()))
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 500, reqErr.Status)
}

func TestQueueDispatcher_RetriesTransientFailures(t *testing.T) {
	c := &client.Client{CompanyName: "Acme", EspoCrmID: "espo-9"}
	clientRepo := NewMockClientRepo(c)
	api := &MockApi{Errs: map[string]error{
		"PUT Account/espo-9": &RequestError{Method: "PUT", Endpoint: "Account/espo-9", Status: 503},
	}}
	svc := newTestService(&MockConfigRepo{Active: activeConfig()}, &MockLogRepo{}, clientRepo, api)
	handler := NewMessageHandler(svc, clientRepo, zap.NewNop())

	cfg := &config.Config{SyncWorkerBuffer: 4, SyncMaxAttempts: 2}
	dispatcher := NewDispatcher(cfg, handler, zap.NewNop())
	go dispatcher.Run()

	require.NoError(t, dispatcher.Dispatch(context.Background(), ForClientToEspoCrm(c.ID.Hex())))
	require.NoError(t, dispatcher.Stop(context.Background()))

	assert.Len(t, api.Calls, 2)
}

func TestQueueDispatcher_DoesNotRetryPermanentFailures(t *testing.T) {
	cfg := activeConfig()
	cfg.WebhookSecret = "topsecret"
	logRepo := &MockLogRepo{}
	clientRepo := NewMockClientRepo()
	svc := newTestService(&MockConfigRepo{Active: cfg}, logRepo, clientRepo, &MockApi{})
	handler := NewMessageHandler(svc, clientRepo, zap.NewNop())

	dispatcher := NewDispatcher(&config.Config{SyncWorkerBuffer: 4, SyncMaxAttempts: 3}, handler, zap.NewNop())
	go dispatcher.Run()

	payload := []byte(`{"entityType":"Account","entityId":"espo-5","action":"create"}`)
	require.NoError(t, dispatcher.Dispatch(context.Background(), ForWebhook(payload, "bad-signature")))
	require.NoError(t, dispatcher.Stop(context.Background()))

	// one attempt, one failed log entry
	assert.Len(t, logRepo.Entries, 1)
	assert.Equal(t, StatusError, logRepo.Entries[0].Status)
}

func TestQueueDispatcher_ProcessesQueuedMessages(t *testing.T) {
	one := &client.Client{CompanyName: "One"}
	two := &client.Client{CompanyName: "Two"}
	clientRepo := NewMockClientRepo(one, two)
	api := &MockApi{Responses: map[string]map[string]interface{}{
		"POST Account": {"id": "espo-1"},
	}}
	svc := newTestService(&MockConfigRepo{Active: activeConfig()}, &MockLogRepo{}, clientRepo, api)
	handler := NewMessageHandler(svc, clientRepo, zap.NewNop())

	dispatcher := NewDispatcher(&config.Config{SyncWorkerBuffer: 4, SyncMaxAttempts: 1}, handler, zap.NewNop())
	go dispatcher.Run()

	require.NoError(t, dispatcher.Dispatch(context.Background(), ForClientToEspoCrm(one.ID.Hex())))
	require.NoError(t, dispatcher.Dispatch(context.Background(), ForClientToEspoCrm(two.ID.Hex())))
	require.NoError(t, dispatcher.Stop(context.Background()))

	assert.Len(t, api.Calls, 2)
}
