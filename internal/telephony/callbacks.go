package telephony

import (
	"net/url"
	"strings"
)

const (
	PathEvents        = "/api/twilio/events"
	PathConnect       = "/api/twilio/connect"
	PathBridge        = "/api/twilio/bridge"
	PathConference    = "/api/twilio/conference"
	PathVoice         = "/api/twilio/voice"
	PathIncoming      = "/api/twilio/incoming"
	PathMessageStatus = "/api/messages/status-callback"
)

// Callbacks builds the public URLs handed to the provider.
type Callbacks struct {
	BaseURL string
}

func NewCallbacks(baseURL string) Callbacks {
	return Callbacks{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (c Callbacks) StatusURL() string { return c.BaseURL + PathEvents }

func (c Callbacks) MessageStatusURL() string { return c.BaseURL + PathMessageStatus }

// ConnectURL dials customerNumber directly once the outbound leg answers.
func (c Callbacks) ConnectURL(customerNumber, callerID string) string {
	q := url.Values{}
	q.Set("customerNumber", customerNumber)
	if callerID != "" {
		q.Set("callerId", callerID)
	}
	return c.BaseURL + PathConnect + "?" + q.Encode()
}

// ConferenceURL drops the answered leg into the conference named tag.
func (c Callbacks) ConferenceURL(tag string) string {
	q := url.Values{}
	q.Set("conference", tag)
	return c.BaseURL + PathConference + "?" + q.Encode()
}
