package espocrm

// MessageType is the closed set of sync task kinds
type MessageType string

const (
	MessageClientToEspoCrm MessageType = "client_to_espocrm"
	MessageEspoCrmToClient MessageType = "espocrm_to_client"
	MessageFullSync        MessageType = "full_sync"
	MessageWebhook         MessageType = "webhook"
)

// SyncMessage is an immutable sync task handed to the dispatch worker.
// Exactly one of the For* constructors builds it; consumed once, never stored.
type SyncMessage struct {
	Type      MessageType
	ClientID  string
	EspoCrmID string
	Payload   []byte // raw webhook body, verified against Signature at processing time
	Signature string
}

// ForClientToEspoCrm builds a task pushing one local client to EspoCRM
func ForClientToEspoCrm(clientID string) SyncMessage {
	return SyncMessage{Type: MessageClientToEspoCrm, ClientID: clientID}
}

// ForEspoCrmToClient builds a task pulling one remote account into local storage
func ForEspoCrmToClient(espocrmID string) SyncMessage {
	return SyncMessage{Type: MessageEspoCrmToClient, EspoCrmID: espocrmID}
}

// ForFullSync builds a task running one complete sync round
func ForFullSync() SyncMessage {
	return SyncMessage{Type: MessageFullSync}
}

// ForWebhook builds a task processing a raw webhook body
func ForWebhook(payload []byte, signature string) SyncMessage {
	return SyncMessage{Type: MessageWebhook, Payload: payload, Signature: signature}
}
