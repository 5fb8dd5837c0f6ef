package calls

import (
	"regexp"
	"strings"
	"time"
)

// CallStatus is the provider call status vocabulary as delivered by status callbacks.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusAnswered   CallStatus = "answered"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusCanceled   CallStatus = "canceled"
)

// ParseStatus maps a raw provider string onto the vocabulary.
// ok is false for empty or unknown values.
func ParseStatus(raw string) (CallStatus, bool) {
	s := CallStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case CallStatusQueued, CallStatusInitiated, CallStatusRinging, CallStatusAnswered, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return s, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further events follow for the call.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// Rank orders statuses along the call lifecycle. Events ranked below the
// recorded status of an attempt are stale.
func (s CallStatus) Rank() int {
	switch s {
	case CallStatusQueued, CallStatusInitiated:
		return 1
	case CallStatusRinging:
		return 2
	case CallStatusAnswered, CallStatusInProgress:
		return 3
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled:
		return 4
	default:
		return 0
	}
}

// StatusCallbackEvents are the progress events requested on every outbound call.
var StatusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// DialRequest is a provider-agnostic outbound call request.
type DialRequest struct {
	From string
	To   string

	// AnswerURL returns the instructions executed when the callee picks up.
	AnswerURL string
	// StatusURL receives the status callbacks.
	StatusURL    string
	StatusEvents []string

	Record  bool
	Timeout time.Duration
}

// Call is a call detail record as reported by the provider.
type Call struct {
	SID       string     `json:"sid"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Status    CallStatus `json:"status"`
	Direction string     `json:"direction"`

	StartTime *time.Time `json:"startTime"`
	// DurationSeconds as reported by the provider; 0 while the call is live.
	DurationSeconds int    `json:"duration"`
	Price           string `json:"price"`

	RecordingURL string `json:"recordingUrl,omitempty"`
}

var phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)

// ValidNumber accepts 10 to 15 digits with an optional leading plus.
func ValidNumber(s string) bool {
	return phonePattern.MatchString(s)
}
