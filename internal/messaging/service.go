package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"power-dialer/internal/telephony"
)

var (
	ErrMissingFields = errors.New("messaging: to, from and body are required")
	ErrInvalidFilter = errors.New("messaging: filter must be replied, unreplied or all")
)

const (
	inboxLimit        = 100
	conversationLimit = 50
)

type Filter string

const (
	FilterAll       Filter = "all"
	FilterReplied   Filter = "replied"
	FilterUnreplied Filter = "unreplied"
)

// ParseFilter accepts an empty value as all.
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterReplied, FilterUnreplied:
		return f, nil
	default:
		return "", ErrInvalidFilter
	}
}

// Gateway is the messaging side of the telephony gateway.
type Gateway interface {
	SendMessage(ctx context.Context, req telephony.SendMessageRequest) (telephony.Message, error)
	ListMessages(ctx context.Context, f telephony.MessageFilter) ([]telephony.Message, error)
}

// Service is a thin inbox over the provider's message log; nothing is stored locally.
type Service struct {
	gw          Gateway
	defaultFrom string
	statusURL   string
}

func NewService(gw Gateway, defaultFrom, statusURL string) *Service {
	return &Service{gw: gw, defaultFrom: defaultFrom, statusURL: statusURL}
}

// Send delivers body to to. An empty from uses the default number.
func (s *Service) Send(ctx context.Context, to, body, from string) (telephony.Message, error) {
	to, body, from = strings.TrimSpace(to), strings.TrimSpace(body), strings.TrimSpace(from)
	if from == "" {
		from = s.defaultFrom
	}
	if to == "" || body == "" || from == "" {
		return telephony.Message{}, ErrMissingFields
	}
	m, err := s.gw.SendMessage(ctx, telephony.SendMessageRequest{To: to, From: from, Body: body, StatusURL: s.statusURL})
	if err != nil {
		return telephony.Message{}, fmt.Errorf("messaging: send: %w", err)
	}
	return m, nil
}

// Latest returns the newest message per contact.
func (s *Service) Latest(ctx context.Context) ([]telephony.Message, error) {
	return s.Filter(ctx, FilterAll)
}

// Filter keeps contacts whose newest message is outbound (replied) or
// inbound (unreplied).
func (s *Service) Filter(ctx context.Context, f Filter) ([]telephony.Message, error) {
	msgs, err := s.gw.ListMessages(ctx, telephony.MessageFilter{Limit: inboxLimit})
	if err != nil {
		return nil, fmt.Errorf("messaging: list: %w", err)
	}
	seen := make(map[string]struct{}, len(msgs))
	out := []telephony.Message{}
	for _, m := range msgs {
		key := contact(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		switch {
		case f == FilterReplied && m.Inbound():
			continue
		case f == FilterUnreplied && !m.Inbound():
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Conversation returns both directions between number and from, oldest first.
func (s *Service) Conversation(ctx context.Context, number, from string) ([]telephony.Message, error) {
	number, from = strings.TrimSpace(number), strings.TrimSpace(from)
	if from == "" {
		from = s.defaultFrom
	}
	if number == "" || from == "" {
		return nil, ErrMissingFields
	}
	sent, err := s.gw.ListMessages(ctx, telephony.MessageFilter{To: number, From: from, Limit: conversationLimit})
	if err != nil {
		return nil, fmt.Errorf("messaging: list sent: %w", err)
	}
	received, err := s.gw.ListMessages(ctx, telephony.MessageFilter{To: from, From: number, Limit: conversationLimit})
	if err != nil {
		return nil, fmt.Errorf("messaging: list received: %w", err)
	}
	all := append(append([]telephony.Message{}, sent...), received...)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].DateCreated, all[j].DateCreated
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return all, nil
}

func contact(m telephony.Message) string {
	if m.Inbound() {
		return m.From
	}
	return m.To
}
