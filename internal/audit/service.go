package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// Events are append-only; there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}

// Service writes the journal.
//
// Callers treat the Log* helpers as best-effort: failures are logged and swallowed.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var (
	ErrInvalidEvent      = errors.New("audit: invalid event")
	ErrRepoNotConfigured = errors.New("audit: repository not configured")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return ErrRepoNotConfigured
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// List returns the newest events. limit is clamped to [1, MaxListLimit].
func (s *Service) List(ctx context.Context, limit int) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, ErrRepoNotConfigured
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.List(ctx, limit)
}

// LogCampaignControl records an operator start/pause/resume/stop/upload.
func (s *Service) LogCampaignControl(ctx context.Context, a Actor, action, metadata string) {
	s.record(ctx, Event{
		Type:      EventTypeCampaignControl,
		Actor:     a.Login,
		Role:      a.Role,
		IPAddress: a.IP,
		Message:   action,
		Metadata:  metadata,
	})
}

func (s *Service) LogManualCall(ctx context.Context, a Actor, sid, destination, message string) {
	s.record(ctx, Event{
		Type:        EventTypeManualCall,
		Actor:       a.Login,
		Role:        a.Role,
		IPAddress:   a.IP,
		CallID:      sid,
		Destination: destination,
		Message:     message,
	})
}

// LogCallOutcome records a terminal provider status.
func (s *Service) LogCallOutcome(ctx context.Context, sid, destination, status string) {
	s.record(ctx, Event{
		Type:        EventTypeCallOutcome,
		CallID:      sid,
		Destination: destination,
		Status:      status,
	})
}

func (s *Service) record(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "type", e.Type, "err", err)
	}
}
