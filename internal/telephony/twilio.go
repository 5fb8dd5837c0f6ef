package telephony

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"power-dialer/internal/calls"
)

const twilioAPIBase = "https://api.twilio.com"

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// APIKey and APISecret replace the auth token for REST calls when both are set.
	APIKey    string
	APISecret string

	// CallsPerSecond paces call-create requests; Twilio queues anything above 1 cps
	// on a standard account.
	CallsPerSecond float64

	// RequestTimeout bounds each REST request. The SDK calls take no context.
	// Defaults to 15s.
	RequestTimeout time.Duration
}

// TwilioGateway talks to the Twilio REST API.
type TwilioGateway struct {
	client     *twilio.RestClient
	http       *twclient.Client
	accountSID string
	limiter    *rate.Limiter
}

func NewTwilioGateway(cfg TwilioConfig) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: account sid and auth token are required", ErrNotConfigured)
	}
	creds := twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken)
	if cfg.APIKey != "" && cfg.APISecret != "" {
		creds = twclient.NewCredentials(cfg.APIKey, cfg.APISecret)
	}
	httpClient := &twclient.Client{Credentials: creds}
	httpClient.SetAccountSid(cfg.AccountSID)
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient.SetTimeout(timeout)
	cps := cfg.CallsPerSecond
	if cps <= 0 {
		cps = 1
	}
	return &TwilioGateway{
		client:     twilio.NewRestClientWithParams(twilio.ClientParams{Client: httpClient}),
		http:       httpClient,
		accountSID: cfg.AccountSID,
		limiter:    rate.NewLimiter(rate.Limit(cps), 1),
	}, nil
}

func (g *TwilioGateway) Name() string { return "twilio" }

func (g *TwilioGateway) HealthCheck(ctx context.Context) error {
	if _, err := g.client.Api.FetchAccount(g.accountSID); err != nil {
		return fmt.Errorf("telephony: twilio account fetch: %w", err)
	}
	return ctx.Err()
}

func (g *TwilioGateway) PlaceCall(ctx context.Context, req calls.DialRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("telephony: waiting for call pacing: %w", err)
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetUrl(req.AnswerURL)
	if req.StatusURL != "" {
		params.SetStatusCallback(req.StatusURL)
		params.SetStatusCallbackMethod("POST")
		if len(req.StatusEvents) > 0 {
			params.SetStatusCallbackEvent(req.StatusEvents)
		}
	}
	if req.Record {
		params.SetRecord(true)
	}
	if req.Timeout > 0 {
		params.SetTimeout(int(req.Timeout / time.Second))
	}

	resp, err := g.client.Api.CreateCall(params)
	if err != nil {
		return "", classifyTwilioError(err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", &DialRejectedError{Reason: "provider returned no call sid"}
	}
	return *resp.Sid, nil
}

func (g *TwilioGateway) HangUp(_ context.Context, callID string) error {
	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := g.client.Api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("telephony: hang up %s: %w", callID, classifyTwilioError(err))
	}
	return nil
}

func (g *TwilioGateway) ListCalls(_ context.Context, f CallFilter) ([]calls.Call, error) {
	params := &openapi.ListCallParams{}
	if f.To != "" {
		params.SetTo(f.To)
	}
	if f.From != "" {
		params.SetFrom(f.From)
	}
	if f.StartedAfter != nil {
		params.SetStartTimeAfter(*f.StartedAfter)
	}
	if f.StartedBefore != nil {
		params.SetStartTimeBefore(*f.StartedBefore)
	}
	if f.Limit > 0 {
		params.SetLimit(f.Limit)
	}

	records, err := g.client.Api.ListCall(params)
	if err != nil {
		return nil, fmt.Errorf("telephony: list calls: %w", classifyTwilioError(err))
	}
	out := make([]calls.Call, 0, len(records))
	for _, r := range records {
		out = append(out, callFromTwilio(r))
	}
	return out, nil
}

func (g *TwilioGateway) ListNumbers(_ context.Context) ([]PhoneNumber, error) {
	records, err := g.client.Api.ListIncomingPhoneNumber(&openapi.ListIncomingPhoneNumberParams{})
	if err != nil {
		return nil, fmt.Errorf("telephony: list numbers: %w", classifyTwilioError(err))
	}
	out := make([]PhoneNumber, 0, len(records))
	for _, r := range records {
		out = append(out, PhoneNumber{SID: str(r.Sid), PhoneNumber: str(r.PhoneNumber), FriendlyName: str(r.FriendlyName)})
	}
	return out, nil
}

func (g *TwilioGateway) SendMessage(_ context.Context, req SendMessageRequest) (Message, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetBody(req.Body)
	if req.StatusURL != "" {
		params.SetStatusCallback(req.StatusURL)
	}
	resp, err := g.client.Api.CreateMessage(params)
	if err != nil {
		return Message{}, classifyTwilioError(err)
	}
	return messageFromTwilio(*resp), nil
}

func (g *TwilioGateway) ListMessages(_ context.Context, f MessageFilter) ([]Message, error) {
	params := &openapi.ListMessageParams{}
	if f.To != "" {
		params.SetTo(f.To)
	}
	if f.From != "" {
		params.SetFrom(f.From)
	}
	if f.Limit > 0 {
		params.SetLimit(f.Limit)
	}
	records, err := g.client.Api.ListMessage(params)
	if err != nil {
		return nil, fmt.Errorf("telephony: list messages: %w", classifyTwilioError(err))
	}
	out := make([]Message, 0, len(records))
	for _, r := range records {
		out = append(out, messageFromTwilio(r))
	}
	return out, nil
}

// classifyTwilioError turns REST 4xx answers into DialRejectedError.
func classifyTwilioError(err error) error {
	var rest *twclient.TwilioRestError
	if errors.As(err, &rest) && rest.Status >= 400 && rest.Status < 500 {
		return &DialRejectedError{Code: rest.Code, Reason: rest.Message, Status: rest.Status}
	}
	return err
}

func callFromTwilio(r openapi.ApiV2010Call) calls.Call {
	c := calls.Call{
		SID:       str(r.Sid),
		From:      str(r.From),
		To:        str(r.To),
		Direction: str(r.Direction),
		Price:     str(r.Price),
	}
	if st, ok := calls.ParseStatus(str(r.Status)); ok {
		c.Status = st
	} else {
		c.Status = calls.CallStatus(str(r.Status))
	}
	if t, ok := parseTwilioTime(str(r.StartTime)); ok {
		c.StartTime = &t
	}
	if d, err := strconv.Atoi(str(r.Duration)); err == nil {
		c.DurationSeconds = d
	}
	if r.SubresourceUris != nil {
		if rec, ok := (*r.SubresourceUris)["recordings"].(string); ok && rec != "" {
			c.RecordingURL = twilioAPIBase + strings.TrimSuffix(rec, ".json")
		}
	}
	return c
}

func messageFromTwilio(r openapi.ApiV2010Message) Message {
	m := Message{
		SID:          str(r.Sid),
		From:         str(r.From),
		To:           str(r.To),
		Body:         str(r.Body),
		Status:       str(r.Status),
		Direction:    str(r.Direction),
		ErrorMessage: str(r.ErrorMessage),
	}
	if t, ok := parseTwilioTime(str(r.DateCreated)); ok {
		m.DateCreated = &t
	}
	return m
}

// Twilio returns RFC 2822 dates on v2010 resources.
func parseTwilioTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
