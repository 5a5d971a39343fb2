package ipc

import (
	"conveyor/internal/api"
	"conveyor/internal/synch"
	"conveyor/internal/vault"
)

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Conveyor"

// Meta is embedded in every request.
type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

func (m *Meta) setRequestID(id string) {
	if m.RequestID == "" {
		m.RequestID = id
	}
}

// Empty is used by calls without parameters.
type Empty struct {
	Meta
}

// IDRequest addresses one transfer, account or synchronization.
type IDRequest struct {
	Meta
	ID int64 `json:"id"`
}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusResponse represents combined daemon and engine status.
type StatusResponse struct {
	Running      bool             `json:"running"`
	PID          int              `json:"pid"`
	DatabasePath string           `json:"database_path"`
	LockPath     string           `json:"lock_path"`
	MetricsAddr  string           `json:"metrics_addr,omitempty"`
	Engine       api.EngineStatus `json:"engine"`
}

// EnqueueRequest creates a PUT, GET, REPLICATE or COPY transfer.
type EnqueueRequest struct {
	Meta
	Transfer api.EnqueueRequest `json:"transfer"`
}

// TransferResponse carries one transfer.
type TransferResponse struct {
	Transfer api.Transfer `json:"transfer"`
}

// EngineResponse reports engine state after pause or resume.
type EngineResponse struct {
	Running string `json:"running"`
}

// PurgeRequest selects which history to delete: completed, successful or all.
type PurgeRequest struct {
	Meta
	Mode string `json:"mode"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// QueueListRequest selects a queue view: current, recent, errors or warnings.
type QueueListRequest struct {
	Meta
	View  string `json:"view"`
	Limit int    `json:"limit,omitempty"`
}

// TransfersResponse contains queue entries.
type TransfersResponse struct {
	Transfers []api.Transfer `json:"transfers"`
}

// ItemsRequest pages through the items of a transfer's current attempt.
type ItemsRequest struct {
	Meta
	TransferID  int64 `json:"transfer_id"`
	ShowSuccess bool  `json:"show_success"`
	ShowSkipped bool  `json:"show_skipped"`
	Offset      int   `json:"offset"`
	Limit       int   `json:"limit"`
}

// PhraseRequest carries a pass phrase.
type PhraseRequest struct {
	Meta
	PassPhrase string `json:"pass_phrase"`
}

// AccountRequest adds or updates a grid account.
type AccountRequest struct {
	Meta
	Account vault.AccountSpec `json:"account"`
}

// AccountResponse carries one grid account.
type AccountResponse struct {
	Account api.Account `json:"account"`
}

// AccountsResponse lists grid accounts.
type AccountsResponse struct {
	Accounts []api.Account `json:"accounts"`
}

// SyncRequest adds or updates a synchronization.
type SyncRequest struct {
	Meta
	Sync synch.Spec `json:"sync"`
}

// SyncResponse carries one synchronization.
type SyncResponse struct {
	Sync api.Synchronization `json:"sync"`
}

// SyncsResponse lists synchronizations.
type SyncsResponse struct {
	Syncs []api.Synchronization `json:"syncs"`
}

// TriggerResponse carries the transfer a trigger created. Transfer is nil when
// a run was already pending.
type TriggerResponse struct {
	Transfer *api.Transfer `json:"transfer,omitempty"`
}

// Ack acknowledges a call without a payload.
type Ack struct {
	OK bool `json:"ok"`
}
