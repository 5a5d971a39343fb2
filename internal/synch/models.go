package synch

import (
	"time"

	"conveyor/internal/queue"
)

// FrequencyType controls how often the scheduler triggers a synchronization.
type FrequencyType string

const (
	FrequencyManual        FrequencyType = "MANUAL"
	FrequencyEveryNMinutes FrequencyType = "EVERY_N_MINUTES"
	FrequencyHourly        FrequencyType = "HOURLY"
	FrequencyDaily         FrequencyType = "DAILY"
	FrequencyWeekly        FrequencyType = "WEEKLY"
)

// Mode is the direction files move.
type Mode string

const (
	ModeLocalToRemote Mode = "LOCAL_TO_REMOTE"
	ModeRemoteToLocal Mode = "REMOTE_TO_LOCAL"
)

// Synchronization is a recurring sync definition.
type Synchronization struct {
	ID               int64
	Name             string
	FrequencyType    FrequencyType
	FrequencyMinutes int
	Mode             Mode
	LocalDir         string
	RemoteDir        string
	Resource         string
	AccountID        int64
	LastSynchronized *time.Time
	LastStatus       queue.Status
	LastMessage      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Interval returns the scheduling period, zero for MANUAL.
func (s Synchronization) Interval() time.Duration {
	switch s.FrequencyType {
	case FrequencyEveryNMinutes:
		return time.Duration(s.FrequencyMinutes) * time.Minute
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Due reports whether the scheduler should trigger s at now.
func (s Synchronization) Due(now time.Time) bool {
	interval := s.Interval()
	if interval <= 0 {
		return false
	}
	if s.LastSynchronized == nil {
		return true
	}
	return !now.Before(s.LastSynchronized.Add(interval))
}

// Spec is the operator input for AddOrUpdate. A zero ID creates a new
// synchronization.
type Spec struct {
	ID               int64         `json:"id" validate:"gte=0"`
	Name             string        `json:"name" validate:"notblank"`
	FrequencyType    FrequencyType `json:"frequency_type" validate:"oneof=MANUAL EVERY_N_MINUTES HOURLY DAILY WEEKLY"`
	FrequencyMinutes int           `json:"frequency_minutes" validate:"gte=0"`
	Mode             Mode          `json:"mode" validate:"oneof=LOCAL_TO_REMOTE REMOTE_TO_LOCAL"`
	LocalDir         string        `json:"local_dir" validate:"notblank"`
	RemoteDir        string        `json:"remote_dir" validate:"notblank"`
	Resource         string        `json:"resource"`
	AccountID        int64         `json:"account_id" validate:"gt=0"`
}
