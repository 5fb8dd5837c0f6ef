package telephony

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	twclient "github.com/twilio/twilio-go/client"

	"power-dialer/internal/calls"
	"power-dialer/pkg/logger"
)

// StatusCallback is a Twilio call status webhook.
// Twilio sends application/x-www-form-urlencoded by default.
type StatusCallback struct {
	CallSid       string
	ParentCallSid string
	AccountSid    string
	From          string
	To            string
	Direction     string
	RawStatus     string
	Duration      string
	RecordingURL  string
	Timestamp     string
	SequenceNum   string
}

// Status parses RawStatus. ok is false for a missing call sid or an unknown status.
func (f StatusCallback) Status() (calls.CallStatus, bool) {
	if f.CallSid == "" {
		return "", false
	}
	return calls.ParseStatus(f.RawStatus)
}

func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	return StatusCallback{
		CallSid:       strings.TrimSpace(r.PostFormValue("CallSid")),
		ParentCallSid: strings.TrimSpace(r.PostFormValue("ParentCallSid")),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		RawStatus:     r.PostFormValue("CallStatus"),
		Duration:      r.PostFormValue("CallDuration"),
		RecordingURL:  r.PostFormValue("RecordingUrl"),
		Timestamp:     r.PostFormValue("Timestamp"),
		SequenceNum:   r.PostFormValue("SequenceNumber"),
	}, nil
}

// MessageStatusCallback is the delivery status webhook for outbound SMS.
type MessageStatusCallback struct {
	MessageSid   string `json:"sid"`
	Status       string `json:"status"`
	From         string `json:"from"`
	To           string `json:"to"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func ParseMessageStatusCallback(r *http.Request) (MessageStatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return MessageStatusCallback{}, err
	}
	return MessageStatusCallback{
		MessageSid:   strings.TrimSpace(r.PostFormValue("MessageSid")),
		Status:       r.PostFormValue("MessageStatus"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		ErrorCode:    r.PostFormValue("ErrorCode"),
		ErrorMessage: r.PostFormValue("ErrorMessage"),
	}, nil
}

// VoiceRequest is the webhook Twilio sends when a call needs instructions.
// Query parameters we put on our own callback URLs are read alongside the form.
type VoiceRequest struct {
	CallSid    string
	From       string
	To         string
	Direction  string
	CallerName string

	CustomerNumber string
	CallerID       string
	Conference     string
}

func ParseVoiceRequest(r *http.Request) (VoiceRequest, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceRequest{}, err
	}
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := r.Form.Get(k); strings.TrimSpace(v) != "" {
				return v
			}
		}
		return ""
	}
	return VoiceRequest{
		CallSid:        r.PostFormValue("CallSid"),
		From:           normalizePhone(r.PostFormValue("From")),
		To:             normalizePhone(r.PostFormValue("To")),
		Direction:      r.PostFormValue("Direction"),
		CallerName:     r.PostFormValue("CallerName"),
		CustomerNumber: normalizePhone(first("customerNumber", "To", "to")),
		CallerID:       normalizePhone(first("callerId")),
		Conference:     strings.TrimSpace(first("conference")),
	}, nil
}

// Form values use "+" for the E.164 prefix; a query string that was not
// encoded turns it into a space.
func normalizePhone(s string) string {
	t := strings.TrimSpace(s)
	if t != "" && strings.HasPrefix(s, " ") && t[0] >= '0' && t[0] <= '9' {
		return "+" + t
	}
	return t
}

// SignatureValidator checks the X-Twilio-Signature header.
type SignatureValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

func NewSignatureValidator(authToken string) SignatureValidator {
	v := twclient.NewRequestValidator(authToken)
	return &v
}

const HeaderTwilioSignature = "X-Twilio-Signature"

// RequireSignature rejects requests whose signature does not match
// PublicBaseURL + request URI. Forged requests get an empty 200 by default so
// the sender learns nothing; reject switches to 403.
func RequireSignature(v SignatureValidator, publicBaseURL string, reject bool) gin.HandlerFunc {
	base := strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			logger.FromGin(c).Warn("webhook form parse failed", "err", err)
			c.AbortWithStatus(http.StatusOK)
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, vals := range c.Request.PostForm {
			if len(vals) > 0 {
				params[k] = vals[0]
			}
		}
		url := base + c.Request.URL.RequestURI()
		if !v.Validate(url, params, c.GetHeader(HeaderTwilioSignature)) {
			logger.FromGin(c).Warn("webhook signature mismatch", "path", c.Request.URL.Path)
			if reject {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "InvalidSignature", "message": "invalid webhook signature"})
				return
			}
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
