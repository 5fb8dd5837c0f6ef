package telephony

import (
	"fmt"
	"regexp"
	"time"

	twiliojwt "github.com/twilio/twilio-go/client/jwt"
)

type VoiceTokenConfig struct {
	AccountSID  string
	APIKey      string
	APISecret   string
	TwiMLAppSID string
	TTL         time.Duration
}

// VoiceTokens mints access tokens for the browser voice client.
type VoiceTokens struct {
	cfg VoiceTokenConfig
}

func NewVoiceTokens(cfg VoiceTokenConfig) (*VoiceTokens, error) {
	if cfg.AccountSID == "" || cfg.APIKey == "" || cfg.APISecret == "" || cfg.TwiMLAppSID == "" {
		return nil, fmt.Errorf("%w: voice tokens need account sid, api key, api secret and twiml app sid", ErrNotConfigured)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &VoiceTokens{cfg: cfg}, nil
}

var identityUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// ClientIdentity maps a login (usually an email) to a voice client identity.
func ClientIdentity(login string) string {
	id := identityUnsafe.ReplaceAllString(login, "_")
	if id == "" {
		return "agent"
	}
	return id
}

// Issue returns a signed token allowing identity to place calls through the
// TwiML app and to receive calls.
func (v *VoiceTokens) Issue(identity string) (string, error) {
	token := twiliojwt.CreateAccessToken(twiliojwt.AccessTokenParams{
		AccountSid:    v.cfg.AccountSID,
		SigningKeySid: v.cfg.APIKey,
		Secret:        v.cfg.APISecret,
		Identity:      ClientIdentity(identity),
		Ttl:           v.cfg.TTL.Seconds(),
	})
	token.AddGrant(&twiliojwt.VoiceGrant{
		Incoming: twiliojwt.Incoming{Allow: true},
		Outgoing: twiliojwt.Outgoing{ApplicationSid: v.cfg.TwiMLAppSID},
	})
	jwt, err := token.ToJwt()
	if err != nil {
		return "", fmt.Errorf("telephony: sign voice token: %w", err)
	}
	return jwt, nil
}
