package telephony

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestNewVoiceTokens_RequiresCredentials(t *testing.T) {
	_, err := NewVoiceTokens(VoiceTokenConfig{AccountSID: "AC1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClientIdentity(t *testing.T) {
	cases := map[string]string{
		"agent@example.com": "agent_example_com",
		"ops_1":             "ops_1",
		"":                  "agent",
	}
	for in, want := range cases {
		if got := ClientIdentity(in); got != want {
			t.Fatalf("ClientIdentity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVoiceTokens_IssueCarriesVoiceGrant(t *testing.T) {
	tokens, err := NewVoiceTokens(VoiceTokenConfig{AccountSID: "AC1", APIKey: "SK1", APISecret: "secret", TwiMLAppSID: "AP1"})
	if err != nil {
		t.Fatalf("new voice tokens: %v", err)
	}
	jwt, err := tokens.Issue("agent@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(jwt, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a signed jwt, got %q", jwt)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	for _, want := range []string{`"AP1"`, `"agent_example_com"`, `"voice"`} {
		if !strings.Contains(string(payload), want) {
			t.Fatalf("expected %s in payload %s", want, payload)
		}
	}
}
