package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingRepo struct{}

func (failingRepo) Append(context.Context, Event) error        { return errors.New("db down") }
func (failingRepo) List(context.Context, int) ([]Event, error) { return nil, errors.New("db down") }

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)

	if err := svc.Append(context.Background(), Event{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	svc.LogCampaignControl(context.Background(), Actor{Login: "admin@example.com", Role: "admin", IP: "1.2.3.4"}, "start", `{"from":"+15550000000"}`)

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].Type != EventTypeCampaignControl || evs[0].Message != "start" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled")
	}
}

func TestService_ListNewestFirstAndClamped(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	n := 0
	svc.clock = func() time.Time { n++; return base.Add(time.Duration(n) * time.Second) }

	svc.LogCallOutcome(context.Background(), "CA1", "+15551110001", "completed")
	svc.LogCallOutcome(context.Background(), "CA2", "+15551110002", "busy")
	svc.LogManualCall(context.Background(), Actor{Login: "agent@example.com"}, "CA3", "+15551110003", "dialed")

	evs, err := svc.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 2 || evs[0].CallID != "CA3" || evs[1].CallID != "CA2" {
		t.Fatalf("unexpected order: %+v", evs)
	}

	all, _ := svc.List(context.Background(), 0)
	if len(all) != 3 {
		t.Fatalf("expected default limit to cover all, got %d", len(all))
	}
}

func TestService_LogHelpersAreBestEffort(t *testing.T) {
	svc := NewService(failingRepo{}, nil)

	// Must not panic or block.
	svc.LogCallOutcome(context.Background(), "CA1", "+15551110001", "failed")

	var nilSvc *Service
	nilSvc.LogCallOutcome(context.Background(), "CA1", "+15551110001", "failed")
	if _, err := nilSvc.List(context.Background(), 1); !errors.Is(err, ErrRepoNotConfigured) {
		t.Fatalf("expected ErrRepoNotConfigured, got %v", err)
	}
}
