package espocrm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-bridge/internal/config"
	"crm-bridge/internal/features/client"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// MessageHandler executes one SyncMessage against the engine. Engine errors
// propagate out unmodified so the queue's retry policy can engage; only a
// disabled-configuration skip is absorbed here, matching the best-effort
// semantics of async execution.
type MessageHandler struct {
	Service    Service
	ClientRepo client.ClientRepository
	Logger     *zap.Logger
}

func NewMessageHandler(service Service, clientRepo client.ClientRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		Service:    service,
		ClientRepo: clientRepo,
		Logger:     logger,
	}
}

func (h *MessageHandler) Handle(ctx context.Context, msg SyncMessage) error {
	h.Logger.Info("processing EspoCRM sync message",
		zap.String("sync_type", string(msg.Type)),
		zap.String("client_id", msg.ClientID),
		zap.String("espocrm_id", msg.EspoCrmID))

	err := h.handle(ctx, msg)
	if errors.Is(err, ErrSyncDisabled) {
		h.Logger.Info("sync message skipped: integration disabled",
			zap.String("sync_type", string(msg.Type)))
		return nil
	}
	if err != nil {
		h.Logger.Error("EspoCRM sync message failed",
			zap.String("sync_type", string(msg.Type)),
			zap.Error(err))
		return err
	}

	return nil
}

func (h *MessageHandler) handle(ctx context.Context, msg SyncMessage) error {
	switch msg.Type {
	case MessageClientToEspoCrm:
		if msg.ClientID == "" {
			return &ValidationError{Message: "client id missing for outbound sync"}
		}
		c, err := h.ClientRepo.Get(ctx, msg.ClientID)
		if err != nil {
			return fmt.Errorf("client %s not found: %w", msg.ClientID, err)
		}
		return h.Service.SyncClientToEspoCrm(ctx, c)

	case MessageEspoCrmToClient:
		if msg.EspoCrmID == "" {
			return &ValidationError{Message: "EspoCRM id missing for inbound sync"}
		}
		_, err := h.Service.SyncClientFromEspoCrm(ctx, msg.EspoCrmID)
		return err

	case MessageFullSync:
		_, err := h.Service.FullSync(ctx)
		return err

	case MessageWebhook:
		if len(msg.Payload) == 0 {
			return &ValidationError{Message: "webhook payload missing"}
		}
		return h.Service.ProcessWebhook(ctx, msg.Payload, msg.Signature)

	default:
		return &ValidationError{Message: fmt.Sprintf("unknown sync message type %q", msg.Type)}
	}
}

// Dispatcher enqueues sync messages for out-of-band execution
type Dispatcher interface {
	Dispatch(ctx context.Context, msg SyncMessage) error
}

// QueueDispatcher runs a buffered in-process queue with one worker. Failed
// messages are retried with backoff up to the configured attempt count, then
// dropped with a dead-letter log entry.
type QueueDispatcher struct {
	handler  *MessageHandler
	logger   *zap.Logger
	queue    chan SyncMessage
	attempts uint
	drained  chan struct{}
}

func NewDispatcher(cfg *config.Config, handler *MessageHandler, logger *zap.Logger) *QueueDispatcher {
	attempts := cfg.SyncMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &QueueDispatcher{
		handler:  handler,
		logger:   logger,
		queue:    make(chan SyncMessage, cfg.SyncWorkerBuffer),
		attempts: uint(attempts),
		drained:  make(chan struct{}),
	}
}

// Dispatch blocks while the buffer is full
func (d *QueueDispatcher) Dispatch(ctx context.Context, msg SyncMessage) error {
	select {
	case d.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue until Stop closes it
func (d *QueueDispatcher) Run() {
	for msg := range d.queue {
		d.process(msg)
	}
	close(d.drained)
}

// Stop closes the queue and waits for in-flight messages to drain
func (d *QueueDispatcher) Stop(ctx context.Context) error {
	close(d.queue)
	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *QueueDispatcher) process(msg SyncMessage) {
	err := retry.Do(
		func() error {
			return d.handler.Handle(context.Background(), msg)
		},
		retry.Attempts(d.attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !isPermanent(err)
		}),
	)
	if err != nil {
		d.logger.Error("sync message dead-lettered after retries",
			zap.String("sync_type", string(msg.Type)),
			zap.String("client_id", msg.ClientID),
			zap.String("espocrm_id", msg.EspoCrmID),
			zap.Uint("attempts", d.attempts),
			zap.Error(err))
	}
}

// isPermanent marks errors that retrying cannot fix
func isPermanent(err error) bool {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return true
	}
	return errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrNoActiveConfig)
}
