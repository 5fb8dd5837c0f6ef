package campaign

import (
	"errors"
	"time"

	"power-dialer/internal/calls"
)

// AttemptStatus is the outcome of one number within a campaign.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptSuccess    AttemptStatus = "success"
	AttemptFailed     AttemptStatus = "failed"
)

func (s AttemptStatus) Resolved() bool {
	return s == AttemptSuccess || s == AttemptFailed
}

// Attempt is the dial record for numbers[i].
type Attempt struct {
	Destination string        `json:"number"`
	Status      AttemptStatus `json:"status"`
	// CallStatus is the last provider status applied to the attempt.
	CallStatus     calls.CallStatus `json:"callStatus,omitempty"`
	ProviderCallID string           `json:"sid,omitempty"`
	ConferenceTag  string           `json:"conference,omitempty"`
	ErrorDetail    string           `json:"error,omitempty"`

	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type State string

const (
	StateIdle      State = "idle"
	StateReady     State = "ready"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

// Snapshot is a read-only copy of the campaign.
type Snapshot struct {
	State     State     `json:"state"`
	CallerID  string    `json:"from,omitempty"`
	Total     int       `json:"total"`
	Cursor    int       `json:"currentIndex"`
	IsPaused  bool      `json:"isPaused"`
	IsStopped bool      `json:"isStopped"`
	Results   []Attempt `json:"results"`

	Generation uint64 `json:"-"`
}

// InProgress returns how many attempts are currently in flight.
func (s Snapshot) InProgress() int {
	n := 0
	for _, a := range s.Results {
		if a.Status == AttemptInProgress {
			n++
		}
	}
	return n
}

var (
	ErrNoNumbersUploaded       = errors.New("campaign: no numbers uploaded")
	ErrCampaignAlreadyComplete = errors.New("campaign: all calls already completed")
	ErrNotPaused               = errors.New("campaign: bulk calling is not paused")
	ErrCampaignStopped         = errors.New("campaign: campaign stopped, upload a new list to run again")
	ErrAlreadyRunning          = errors.New("campaign: campaign already running")
	ErrCallInFlight            = errors.New("campaign: a call is still in progress")
	ErrCallerIDRequired        = errors.New("campaign: caller id is required")
)
