package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"power-dialer/internal/audit"
	"power-dialer/internal/auth"
	"power-dialer/internal/calls"
	"power-dialer/internal/campaign"
	"power-dialer/internal/ingest"
	"power-dialer/internal/messaging"
	"power-dialer/internal/reporting"
	"power-dialer/internal/telephony"
	"power-dialer/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Campaign  *campaign.Engine
	Calls     *calls.Service
	Gateway   telephony.Gateway
	Reporting *reporting.Service
	Messaging *messaging.Service
	Audit     *audit.Service
	Publisher telephony.Publisher

	// MaxUploadBytes bounds the bulk upload body. Defaults to 10 MiB.
	MaxUploadBytes int64
}

// apiError is a classified failure with the JSON error code sent to clients.
type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{ingest.ErrNoValidNumbersFound, apiError{http.StatusBadRequest, "NoValidNumbersFound", "No valid numbers found"}},
	{ingest.ErrEmptyFile, apiError{http.StatusBadRequest, "NoValidNumbersFound", "No valid numbers found"}},
	{ingest.ErrUnreadableFile, apiError{http.StatusBadRequest, "UnreadableFile", "Uploaded file could not be read as a spreadsheet or CSV"}},
	{campaign.ErrNoNumbersUploaded, apiError{http.StatusBadRequest, "NoNumbersUploaded", "No numbers uploaded"}},
	{campaign.ErrCampaignAlreadyComplete, apiError{http.StatusBadRequest, "CampaignAlreadyComplete", "All calls already completed"}},
	{campaign.ErrNotPaused, apiError{http.StatusBadRequest, "NotPaused", "Bulk calling is not paused"}},
	{campaign.ErrCampaignStopped, apiError{http.StatusConflict, "CampaignStopped", "Bulk calling was stopped; upload a new list to run again"}},
	{campaign.ErrAlreadyRunning, apiError{http.StatusConflict, "AlreadyRunning", "Bulk calling is already running"}},
	{campaign.ErrCallInFlight, apiError{http.StatusConflict, "CallInFlight", "A bulk call is still in progress"}},
	{campaign.ErrCallerIDRequired, apiError{http.StatusBadRequest, "CallerIDRequired", "Missing 'from' number"}},
	{calls.ErrCallerIDRequired, apiError{http.StatusBadRequest, "CallerIDRequired", "Missing 'to' or 'from' number"}},
	{calls.ErrInvalidNumber, apiError{http.StatusBadRequest, "InvalidNumber", "Missing or invalid 'to' number"}},
	{calls.ErrCallIDRequired, apiError{http.StatusBadRequest, "CallIDRequired", "Call sid is required"}},
	{calls.ErrDuplicateCallInProgress, apiError{http.StatusConflict, "DuplicateCallInProgress", "A call to this customer is already in progress. Please wait until the current call ends."}},
	{messaging.ErrMissingFields, apiError{http.StatusBadRequest, "MissingFields", "Missing 'to', 'from', or 'body'"}},
	{messaging.ErrInvalidFilter, apiError{http.StatusBadRequest, "InvalidFilter", "status must be replied, unreplied or all"}},
	{reporting.ErrInvalidRequest, apiError{http.StatusBadRequest, "InvalidRequest", "Dates must be YYYY-MM-DD and fromDate must not be after toDate"}},
	{audit.ErrRepoNotConfigured, apiError{http.StatusServiceUnavailable, "AuditDisabled", "Audit journal is not configured"}},
	{telephony.ErrNotConfigured, apiError{http.StatusServiceUnavailable, "ProviderNotConfigured", "Telephony provider is not configured"}},
}

func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.apiError
		}
	}
	var rej *telephony.DialRejectedError
	if errors.As(err, &rej) {
		return apiError{http.StatusBadGateway, "DialRejected", rej.Error()}
	}
	return apiError{http.StatusInternalServerError, "Internal", "Internal server error"}
}

// fail writes err as {"error": code, "message": text}. Unclassified errors are
// logged with the request logger.
func fail(c *gin.Context, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(e.status, gin.H{"error": e.code, "message": e.message})
}

func badRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code, "message": message})
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "NotConfigured", "message": what + " not configured"})
}

func actor(c *gin.Context) audit.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{Login: uid, Role: role, IP: c.ClientIP()}
}
