package api

import (
	"time"

	"conveyor/internal/engine"
	"conveyor/internal/queue"
	"conveyor/internal/synch"
	"conveyor/internal/vault"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromTransfer converts a queue record to its API representation.
func FromTransfer(t *queue.Transfer) Transfer {
	if t == nil {
		return Transfer{}
	}
	dto := Transfer{
		ID:                t.ID,
		Type:              string(t.Type),
		State:             string(t.State),
		Status:            string(t.Status),
		LocalPath:         t.LocalPath,
		RemotePath:        t.RemotePath,
		Resource:          t.Resource,
		AccountID:         t.AccountID,
		SynchronizationID: t.SynchronizationID,
		CreatedAt:         formatTime(t.CreatedAt),
		UpdatedAt:         formatTime(t.UpdatedAt),
	}
	for _, a := range t.Attempts {
		dto.Attempts = append(dto.Attempts, FromAttempt(a))
	}
	return dto
}

// FromTransfers converts a slice, skipping nil entries.
func FromTransfers(transfers []*queue.Transfer) []Transfer {
	out := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t == nil {
			continue
		}
		out = append(out, FromTransfer(t))
	}
	return out
}

// FromAttempt converts an attempt record.
func FromAttempt(a *queue.Attempt) Attempt {
	if a == nil {
		return Attempt{}
	}
	dto := Attempt{
		ID:                   a.ID,
		TransferID:           a.TransferID,
		Status:               string(a.Status),
		StartedAt:            formatTime(a.StartedAt),
		LastSuccessfulPath:   a.LastSuccessfulPath,
		TotalFiles:           a.TotalFiles,
		FilesTransferred:     a.FilesTransferred,
		FilesSkipped:         a.FilesSkipped,
		ErrorCount:           a.ErrorCount,
		ErrorMessage:         a.ErrorMessage,
		GlobalException:      a.GlobalException,
		GlobalExceptionTrace: a.GlobalExceptionTrace,
		CorrelationID:        a.CorrelationID,
	}
	if a.EndedAt != nil {
		dto.EndedAt = formatTime(*a.EndedAt)
	}
	return dto
}

// FromItems converts item records.
func FromItems(items []*queue.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		out = append(out, Item{
			ID:           it.ID,
			AttemptID:    it.AttemptID,
			SourcePath:   it.SourcePath,
			TargetPath:   it.TargetPath,
			IsFile:       it.IsFile,
			IsError:      it.IsError,
			IsSkipped:    it.IsSkipped,
			ErrorMessage: it.ErrorMessage,
			CreatedAt:    formatTime(it.CreatedAt),
		})
	}
	return out
}

// FromAccount converts a grid account, dropping the password ciphertext.
func FromAccount(a *vault.GridAccount) Account {
	if a == nil {
		return Account{}
	}
	return Account{
		ID:              a.ID,
		Host:            a.Host,
		Port:            a.Port,
		Zone:            a.Zone,
		UserName:        a.UserName,
		DefaultResource: a.DefaultResource,
		HomePath:        a.HomePath,
		AuthScheme:      string(a.AuthScheme),
		Comment:         a.Comment,
		UpdatedAt:       formatTime(a.UpdatedAt),
	}
}

// FromSynchronization converts a synchronization record.
func FromSynchronization(s *synch.Synchronization) Synchronization {
	if s == nil {
		return Synchronization{}
	}
	dto := Synchronization{
		ID:               s.ID,
		Name:             s.Name,
		FrequencyType:    string(s.FrequencyType),
		FrequencyMinutes: s.FrequencyMinutes,
		Mode:             string(s.Mode),
		LocalDir:         s.LocalDir,
		RemoteDir:        s.RemoteDir,
		Resource:         s.Resource,
		AccountID:        s.AccountID,
		LastStatus:       string(s.LastStatus),
		LastMessage:      s.LastMessage,
	}
	if s.LastSynchronized != nil {
		dto.LastSynchronized = formatTime(*s.LastSynchronized)
	}
	return dto
}

// FromSummary converts an engine summary.
func FromSummary(s engine.Summary) EngineStatus {
	dto := EngineStatus{
		Running:     string(s.Running),
		ErrorStatus: string(s.Error),
		LastError:   s.LastError,
		QueueStats:  make(map[string]int, len(s.Stats.ByState)),
		Total:       s.Stats.Total,
		Pending:     s.Stats.Pending(),
	}
	for state, n := range s.Stats.ByState {
		dto.QueueStats[string(state)] = n
	}
	if s.Active != nil {
		active := FromTransfer(s.Active)
		dto.Active = &active
	}
	return dto
}
