package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"power-dialer/internal/calls"
	"power-dialer/internal/telephony"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallLister is the read side of the telephony gateway.
//
// Reporting reads provider call records directly; nothing here is stored locally.
type CallLister interface {
	ListCalls(ctx context.Context, f telephony.CallFilter) ([]calls.Call, error)
}

type Service struct {
	calls CallLister
	loc   *time.Location
	now   func() time.Time
}

// NewService interprets dates in loc (UTC when nil).
func NewService(l CallLister, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{calls: l, loc: loc, now: time.Now}
}

// CallLogs lists recent calls. An empty number lists everything; otherwise
// calls placed to number.
func (s *Service) CallLogs(ctx context.Context, number string) ([]calls.Call, error) {
	f := telephony.CallFilter{Limit: AllLogsLimit}
	if n := strings.TrimSpace(number); n != "" {
		f = telephony.CallFilter{To: n, Limit: NumberLogsLimit}
	}
	out, err := s.calls.ListCalls(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reporting: call logs: %w", err)
	}
	if out == nil {
		out = []calls.Call{}
	}
	return out, nil
}

// DashboardStats groups calls started between the start of fromDate and the
// end of toDate by originating number. Either date defaults to today.
func (s *Service) DashboardStats(ctx context.Context, fromDate, toDate string) (Dashboard, error) {
	today := s.now().In(s.loc)
	from, err := s.parseDay(fromDate, today)
	if err != nil {
		return Dashboard{}, err
	}
	to, err := s.parseDay(toDate, today)
	if err != nil {
		return Dashboard{}, err
	}
	if to.Before(from) {
		return Dashboard{}, fmt.Errorf("%w: toDate before fromDate", ErrInvalidRequest)
	}
	end := to.AddDate(0, 0, 1)

	rows, err := s.calls.ListCalls(ctx, telephony.CallFilter{StartedAfter: &from, StartedBefore: &end, Limit: DashboardLimit})
	if err != nil {
		return Dashboard{}, fmt.Errorf("reporting: dashboard: %w", err)
	}

	out := Dashboard{From: from.Format(DateLayout), To: to.Format(DateLayout), Stats: map[string]NumberStats{}}
	for _, c := range rows {
		key := c.From
		if key == "" {
			key = unknownNumberName
		}
		st := out.Stats[key]
		st.Total++
		st.TotalDuration += c.DurationSeconds
		switch c.Status {
		case calls.CallStatusCompleted:
			st.Completed++
		case calls.CallStatusBusy:
			st.Busy++
		case calls.CallStatusFailed:
			st.Failed++
		case calls.CallStatusNoAnswer:
			st.NoAnswer++
		case calls.CallStatusInProgress:
			st.InProgress++
		}
		out.Stats[key] = st
	}
	return out, nil
}

func (s *Service) parseDay(raw string, today time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		y, m, d := today.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, s.loc), nil
	}
	t, err := time.ParseInLocation(DateLayout, raw, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRequest, raw)
	}
	return t, nil
}
