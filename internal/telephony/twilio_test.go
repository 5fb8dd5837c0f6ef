package telephony

import (
	"errors"
	"net/http"
	"testing"
	"time"

	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"power-dialer/internal/calls"
)

func strp(s string) *string { return &s }

func TestNewTwilioGateway_RequiresCredentials(t *testing.T) {
	if _, err := NewTwilioGateway(TwilioConfig{AccountSID: "AC1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	g, err := NewTwilioGateway(TwilioConfig{AccountSID: "AC1", AuthToken: "tok"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if g.Name() != "twilio" {
		t.Fatalf("unexpected name %q", g.Name())
	}
}

func TestNewTwilioGateway_BoundsRequests(t *testing.T) {
	g, err := NewTwilioGateway(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", RequestTimeout: 7 * time.Second})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if g.http.HTTPClient == nil || g.http.HTTPClient.Timeout != 7*time.Second {
		t.Fatalf("expected 7s request timeout, got %+v", g.http.HTTPClient)
	}
	if g.http.AccountSid() != "AC1" {
		t.Fatalf("unexpected account sid %q", g.http.AccountSid())
	}

	keyed, err := NewTwilioGateway(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", APIKey: "SK1", APISecret: "sec"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if keyed.http.Username != "SK1" || keyed.http.HTTPClient.Timeout != 15*time.Second {
		t.Fatalf("expected api key credentials and default timeout")
	}
}

func TestClassifyTwilioError(t *testing.T) {
	err := classifyTwilioError(&twclient.TwilioRestError{Code: 21211, Message: "Invalid 'To' Phone Number", Status: http.StatusBadRequest})
	var rej *DialRejectedError
	if !errors.As(err, &rej) || rej.Code != 21211 {
		t.Fatalf("expected DialRejectedError, got %v", err)
	}

	server := &twclient.TwilioRestError{Code: 20500, Message: "internal", Status: http.StatusInternalServerError}
	if err := classifyTwilioError(server); errors.Is(err, ErrDialRejected) {
		t.Fatalf("expected 5xx to stay a transport error")
	}
}

func TestCallFromTwilio(t *testing.T) {
	uris := map[string]interface{}{"recordings": "/2010-04-01/Accounts/AC1/Calls/CA1/Recordings.json"}
	c := callFromTwilio(openapi.ApiV2010Call{
		Sid:             strp("CA1"),
		From:            strp("+15550000000"),
		To:              strp("+15551112222"),
		Status:          strp("no-answer"),
		StartTime:       strp("Fri, 02 Jan 2026 10:00:00 +0000"),
		Duration:        strp("42"),
		SubresourceUris: &uris,
	})
	if c.Status != calls.CallStatusNoAnswer || c.DurationSeconds != 42 {
		t.Fatalf("unexpected call: %+v", c)
	}
	if c.StartTime == nil || c.StartTime.Hour() != 10 {
		t.Fatalf("expected parsed start time, got %v", c.StartTime)
	}
	if c.RecordingURL != "https://api.twilio.com/2010-04-01/Accounts/AC1/Calls/CA1/Recordings" {
		t.Fatalf("unexpected recording url %q", c.RecordingURL)
	}
}
