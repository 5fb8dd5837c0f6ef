package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrInvalidNumber    = errors.New("calls: invalid phone number")
	ErrCallerIDRequired = errors.New("calls: caller id is required")
	ErrCallIDRequired   = errors.New("calls: call sid is required")
)

// Dialer is the slice of the telephony gateway the call services need.
type Dialer interface {
	PlaceCall(ctx context.Context, req DialRequest) (string, error)
	HangUp(ctx context.Context, callID string) error
}

// CallbackURLs builds the public URLs handed to the provider.
type CallbackURLs interface {
	ConnectURL(customerNumber, callerID string) string
	StatusURL() string
}

// ManualCall is the result of a single operator dial.
type ManualCall struct {
	SID  string `json:"sid"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Service places manual (non-bulk) calls guarded by the destination lock table.
type Service struct {
	locks       LockTable
	dialer      Dialer
	urls        CallbackURLs
	defaultFrom string
	log         *slog.Logger
}

func NewService(locks LockTable, dialer Dialer, urls CallbackURLs, defaultFrom string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{locks: locks, dialer: dialer, urls: urls, defaultFrom: defaultFrom, log: log}
}

// Dial reserves to, places the call and binds the lock to the provider sid.
func (s *Service) Dial(ctx context.Context, to, from string) (ManualCall, error) {
	to = strings.TrimSpace(to)
	from = strings.TrimSpace(from)
	if from == "" {
		from = s.defaultFrom
	}
	if !ValidNumber(to) {
		return ManualCall{}, fmt.Errorf("%w: to %q", ErrInvalidNumber, to)
	}
	if from == "" {
		return ManualCall{}, ErrCallerIDRequired
	}

	token, err := s.locks.Reserve(ctx, to)
	if err != nil {
		return ManualCall{}, err
	}

	sid, err := s.dialer.PlaceCall(ctx, DialRequest{
		From:         from,
		To:           to,
		AnswerURL:    s.urls.ConnectURL(to, from),
		StatusURL:    s.urls.StatusURL(),
		StatusEvents: StatusCallbackEvents,
		Record:       true,
	})
	if err != nil {
		if rerr := s.locks.Release(context.WithoutCancel(ctx), to, token); rerr != nil {
			s.log.Warn("manual call lock release failed", "to", to, "err", rerr)
		}
		return ManualCall{}, err
	}

	switch err := s.locks.Bind(ctx, to, token, sid); {
	case errors.Is(err, ErrCallEnded):
		s.log.Info("manual call ended before lock bind", "to", to, "sid", sid)
	case err != nil:
		s.log.Warn("manual call lock bind failed", "to", to, "sid", sid, "err", err)
		if rerr := s.locks.Release(context.WithoutCancel(ctx), to, token); rerr != nil {
			s.log.Warn("manual call lock release failed", "to", to, "err", rerr)
		}
	}
	s.log.Info("manual call placed", "to", to, "from", from, "sid", sid)
	return ManualCall{SID: sid, From: from, To: to}, nil
}

// Terminate hangs up sid. The terminal status callback releases its lock.
func (s *Service) Terminate(ctx context.Context, sid string) error {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return ErrCallIDRequired
	}
	return s.dialer.HangUp(ctx, sid)
}

func (s *Service) Active(ctx context.Context) ([]Lock, error) {
	return s.locks.Active(ctx)
}
