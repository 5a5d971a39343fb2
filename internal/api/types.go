package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Transfer describes a queued transfer.
type Transfer struct {
	ID                int64     `json:"id"`
	Type              string    `json:"type"`
	State             string    `json:"state"`
	Status            string    `json:"status"`
	LocalPath         string    `json:"localPath"`
	RemotePath        string    `json:"remotePath"`
	Resource          string    `json:"resource,omitempty"`
	AccountID         int64     `json:"accountId"`
	SynchronizationID int64     `json:"synchronizationId,omitempty"`
	CreatedAt         string    `json:"createdAt,omitempty"`
	UpdatedAt         string    `json:"updatedAt,omitempty"`
	Attempts          []Attempt `json:"attempts,omitempty"`
}

// Attempt describes one execution try of a transfer.
type Attempt struct {
	ID                   int64  `json:"id"`
	TransferID           int64  `json:"transferId"`
	Status               string `json:"status"`
	StartedAt            string `json:"startedAt,omitempty"`
	EndedAt              string `json:"endedAt,omitempty"`
	LastSuccessfulPath   string `json:"lastSuccessfulPath,omitempty"`
	TotalFiles           int    `json:"totalFiles"`
	FilesTransferred     int    `json:"filesTransferred"`
	FilesSkipped         int    `json:"filesSkipped"`
	ErrorCount           int    `json:"errorCount"`
	ErrorMessage         string `json:"errorMessage,omitempty"`
	GlobalException      string `json:"globalException,omitempty"`
	GlobalExceptionTrace string `json:"globalExceptionTrace,omitempty"`
	CorrelationID        string `json:"correlationId,omitempty"`
}

// Item is one per-file outcome.
type Item struct {
	ID           int64  `json:"id"`
	AttemptID    int64  `json:"attemptId"`
	SourcePath   string `json:"sourcePath"`
	TargetPath   string `json:"targetPath"`
	IsFile       bool   `json:"isFile"`
	IsError      bool   `json:"isError"`
	IsSkipped    bool   `json:"isSkipped"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// ItemPage is one page of items for an attempt.
type ItemPage struct {
	AttemptID int64  `json:"attemptId"`
	Total     int    `json:"total"`
	Items     []Item `json:"items"`
}

// Account is a grid account as shown to operators.
type Account struct {
	ID              int64  `json:"id"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Zone            string `json:"zone"`
	UserName        string `json:"userName"`
	DefaultResource string `json:"defaultResource,omitempty"`
	HomePath        string `json:"homePath,omitempty"`
	AuthScheme      string `json:"authScheme"`
	Comment         string `json:"comment,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// Synchronization describes a recurring sync definition.
type Synchronization struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	FrequencyType    string `json:"frequencyType"`
	FrequencyMinutes int    `json:"frequencyMinutes,omitempty"`
	Mode             string `json:"mode"`
	LocalDir         string `json:"localDir"`
	RemoteDir        string `json:"remoteDir"`
	Resource         string `json:"resource,omitempty"`
	AccountID        int64  `json:"accountId"`
	LastSynchronized string `json:"lastSynchronized,omitempty"`
	LastStatus       string `json:"lastStatus,omitempty"`
	LastMessage      string `json:"lastMessage,omitempty"`
}

// EngineStatus summarizes execution state.
type EngineStatus struct {
	Running     string         `json:"running"`
	ErrorStatus string         `json:"errorStatus"`
	Active      *Transfer      `json:"active,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	QueueStats  map[string]int `json:"queueStats"`
	Total       int            `json:"total"`
	Pending     int            `json:"pending"`
}

// VaultStatus reports pass-phrase state.
type VaultStatus struct {
	Stored    bool `json:"stored"`
	Validated bool `json:"validated"`
	Accounts  int  `json:"accounts"`
}

// EnqueueRequest is the transport form of a new transfer. Target is the
// remote collection for COPY and ignored otherwise.
type EnqueueRequest struct {
	Type       string `json:"type"`
	AccountID  int64  `json:"accountId"`
	LocalPath  string `json:"localPath"`
	RemotePath string `json:"remotePath"`
	Target     string `json:"target,omitempty"`
	Resource   string `json:"resource,omitempty"`
}
