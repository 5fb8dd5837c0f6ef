package telephony

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"power-dialer/internal/calls"
	"power-dialer/pkg/logger"
)

const (
	sayInvalidCustomer = "Missing or invalid customer number"
	sayBridgeInvalid   = "Invalid customer number."
	sayIncomingHold    = "Thank you for calling. Please hold."
	sayInternalError   = "Internal error occurred."
)

// Publisher receives observational events.
type Publisher interface {
	Publish(event string, data any)
}

// TwiMLHandler answers the provider's "what next" webhooks.
// No business logic here: each endpoint maps query/form input to TwiML.
type TwiMLHandler struct {
	// ConnectCallerID is presented to customers on connect and voice legs.
	ConnectCallerID string
	Publisher       Publisher
}

// Connect dials the customer number directly. Invalid input still answers 200
// with a spoken message so the provider does not retry.
func (h TwiMLHandler) Connect(c *gin.Context) {
	vr, err := ParseVoiceRequest(c.Request)
	if err != nil {
		writeTwiML(c, http.StatusOK, SayTwiML, sayInvalidCustomer)
		return
	}
	callerID := h.ConnectCallerID
	if callerID == "" {
		callerID = vr.CallerID
	}
	if !calls.ValidNumber(vr.CustomerNumber) {
		logger.FromGin(c).Warn("connect without a valid customer number", "customer", vr.CustomerNumber)
		writeTwiML(c, http.StatusOK, SayTwiML, sayInvalidCustomer)
		return
	}
	h.dial(c, http.StatusOK, vr.CustomerNumber, callerID)
}

// Bridge dials the customer number from the query string; bad input is a 400.
func (h TwiMLHandler) Bridge(c *gin.Context) {
	customer := normalizePhone(c.Query("customerNumber"))
	if !calls.ValidNumber(customer) {
		writeTwiML(c, http.StatusBadRequest, SayTwiML, sayBridgeInvalid)
		return
	}
	h.dial(c, http.StatusOK, customer, "")
}

// Conference drops the answered callee leg into the attempt's conference.
func (h TwiMLHandler) Conference(c *gin.Context) {
	vr, err := ParseVoiceRequest(c.Request)
	if err != nil || vr.Conference == "" {
		writeTwiML(c, http.StatusOK, SayHangupTwiML, sayInternalError)
		return
	}
	xml, err := ConferenceTwiML(vr.Conference, true)
	h.write(c, xml, err)
}

// Voice serves the browser client's outgoing leg through the TwiML app: it
// joins a bulk attempt conference when one is named, otherwise dials To.
func (h TwiMLHandler) Voice(c *gin.Context) {
	vr, err := ParseVoiceRequest(c.Request)
	if err != nil {
		writeTwiML(c, http.StatusOK, SayTwiML, sayInvalidCustomer)
		return
	}
	if vr.Conference != "" {
		xml, err := ConferenceTwiML(vr.Conference, true)
		h.write(c, xml, err)
		return
	}
	if !calls.ValidNumber(vr.CustomerNumber) {
		writeTwiML(c, http.StatusOK, SayTwiML, sayInvalidCustomer)
		return
	}
	callerID := vr.CallerID
	if callerID == "" {
		callerID = h.ConnectCallerID
	}
	h.dial(c, http.StatusOK, vr.CustomerNumber, callerID)
}

// Incoming answers inbound calls with a hold message and tells the UI.
func (h TwiMLHandler) Incoming(c *gin.Context) {
	vr, err := ParseVoiceRequest(c.Request)
	if err == nil && h.Publisher != nil {
		h.Publisher.Publish("incoming-call", gin.H{"sid": vr.CallSid, "from": vr.From, "to": vr.To, "callerName": vr.CallerName})
	}
	writeTwiML(c, http.StatusOK, SayTwiML, sayIncomingHold)
}

func (h TwiMLHandler) dial(c *gin.Context, status int, number, callerID string) {
	xml, err := DialNumberTwiML(number, callerID)
	if err != nil {
		h.write(c, "", err)
		return
	}
	c.Data(status, "text/xml; charset=utf-8", []byte(xml))
}

func (h TwiMLHandler) write(c *gin.Context, xml string, err error) {
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.Data(http.StatusInternalServerError, "text/xml; charset=utf-8", []byte("<Response><Say>"+sayInternalError+"</Say></Response>"))
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(xml))
}

func writeTwiML(c *gin.Context, status int, build func(string) (string, error), text string) {
	xml, err := build(text)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		status = http.StatusInternalServerError
		xml = "<Response><Say>" + sayInternalError + "</Say></Response>"
	}
	c.Data(status, "text/xml; charset=utf-8", []byte(xml))
}

// TokenHandler hands the browser a voice access token.
type TokenHandler struct {
	Tokens *VoiceTokens
	// Identity resolves the caller's login from the authenticated request.
	Identity func(c *gin.Context) string
}

func (h TokenHandler) Issue(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "VoiceTokensDisabled", "message": ErrNotConfigured.Error()})
		return
	}
	identity := ""
	if h.Identity != nil {
		identity = h.Identity(c)
	}
	token, err := h.Tokens.Issue(identity)
	if err != nil {
		logger.FromGin(c).Error("voice token failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "TokenFailed", "message": "could not issue voice token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "identity": ClientIdentity(identity)})
}
