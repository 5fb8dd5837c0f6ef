package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"power-dialer/internal/calls"
	"power-dialer/internal/telephony"
)

type stubLister struct {
	rows []calls.Call
	got  []telephony.CallFilter
	err  error
}

func (s *stubLister) ListCalls(_ context.Context, f telephony.CallFilter) ([]calls.Call, error) {
	s.got = append(s.got, f)
	return s.rows, s.err
}

func TestCallLogs_Limits(t *testing.T) {
	l := &stubLister{}
	svc := NewService(l, nil)

	if _, err := svc.CallLogs(context.Background(), ""); err != nil {
		t.Fatalf("call logs: %v", err)
	}
	if _, err := svc.CallLogs(context.Background(), "+15551112222"); err != nil {
		t.Fatalf("call logs: %v", err)
	}
	if l.got[0].Limit != 100 || l.got[0].To != "" {
		t.Fatalf("unexpected all filter: %+v", l.got[0])
	}
	if l.got[1].Limit != 50 || l.got[1].To != "+15551112222" {
		t.Fatalf("unexpected number filter: %+v", l.got[1])
	}
}

func TestCallLogs_WrapsErrors(t *testing.T) {
	svc := NewService(&stubLister{err: errors.New("boom")}, nil)
	if _, err := svc.CallLogs(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDashboardStats_GroupsByFrom(t *testing.T) {
	l := &stubLister{rows: []calls.Call{
		{From: "+15550000001", Status: calls.CallStatusCompleted, DurationSeconds: 30},
		{From: "+15550000001", Status: calls.CallStatusBusy},
		{From: "+15550000001", Status: calls.CallStatusNoAnswer},
		{From: "+15550000002", Status: calls.CallStatusInProgress, DurationSeconds: 5},
		{From: "", Status: calls.CallStatusFailed},
	}}
	svc := NewService(l, nil)

	d, err := svc.DashboardStats(context.Background(), "2026-03-01", "2026-03-02")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.From != "2026-03-01" || d.To != "2026-03-02" {
		t.Fatalf("unexpected range: %s..%s", d.From, d.To)
	}
	a := d.Stats["+15550000001"]
	if a.Total != 3 || a.Completed != 1 || a.Busy != 1 || a.NoAnswer != 1 || a.TotalDuration != 30 {
		t.Fatalf("unexpected stats: %+v", a)
	}
	if d.Stats["+15550000002"].InProgress != 1 || d.Stats["Unknown"].Failed != 1 {
		t.Fatalf("unexpected stats: %+v", d.Stats)
	}

	f := l.got[0]
	if f.Limit != 1000 {
		t.Fatalf("expected limit 1000, got %d", f.Limit)
	}
	if !f.StartedAfter.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || !f.StartedBefore.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window: %s .. %s", f.StartedAfter, f.StartedBefore)
	}
}

func TestDashboardStats_DefaultsToToday(t *testing.T) {
	l := &stubLister{}
	svc := NewService(l, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 14, 15, 4, 0, 0, time.UTC) }

	d, err := svc.DashboardStats(context.Background(), "", "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.From != "2026-10-14" || d.To != "2026-10-14" {
		t.Fatalf("expected today, got %s..%s", d.From, d.To)
	}
	if d.Stats == nil {
		t.Fatalf("expected empty stats map, not nil")
	}
}

func TestDashboardStats_RejectsBadDates(t *testing.T) {
	svc := NewService(&stubLister{}, nil)

	for _, tc := range [][2]string{{"03/01/2026", ""}, {"2026-03-02", "2026-03-01"}} {
		if _, err := svc.DashboardStats(context.Background(), tc[0], tc[1]); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%v: expected ErrInvalidRequest, got %v", tc, err)
		}
	}
}
