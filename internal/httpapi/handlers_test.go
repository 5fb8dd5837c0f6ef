package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-dialer/internal/audit"
	"power-dialer/internal/auth"
	"power-dialer/internal/calls"
	"power-dialer/internal/campaign"
	"power-dialer/internal/fanout"
	"power-dialer/internal/messaging"
	"power-dialer/internal/reporting"
	"power-dialer/internal/telephony"
	"power-dialer/pkg/logger"
)

const callerID = "+15550000000"

type fixture struct {
	router  *gin.Engine
	engine  *campaign.Engine
	gateway *telephony.SandboxGateway
	journal *audit.MemoryRepo
	hub     *fanout.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	gw := &telephony.SandboxGateway{Log: log}
	t.Cleanup(gw.Close)
	cb := telephony.NewCallbacks("https://dialer.example.com")
	locks := calls.NewMemoryLocks(time.Hour)
	hub := fanout.NewHub(log)
	t.Cleanup(hub.Close)

	eng := campaign.NewEngine(campaign.NewStore(), gw, cb, campaign.Options{
		AdvanceDelay:    time.Millisecond,
		RetryDelay:      time.Millisecond,
		AttemptTimeout:  time.Minute,
		DefaultCallerID: callerID,
		Locks:           locks,
		Publisher:       hub,
		Logger:          log,
	})
	t.Cleanup(eng.Close)

	journal := audit.NewMemoryRepo()
	h := Handlers{
		Campaign:  eng,
		Calls:     calls.NewService(locks, gw, cb, callerID, log),
		Gateway:   gw,
		Reporting: reporting.NewService(gw, nil),
		Messaging: messaging.NewService(gw, callerID, cb.MessageStatusURL()),
		Audit:     audit.NewService(journal, log),
		Publisher: hub,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "admin@example.com", "admin"))
		c.Next()
	})
	r.POST("/bulk/upload", h.UploadNumbers)
	r.POST("/bulk/start", h.StartBulk)
	r.POST("/bulk/pause", h.PauseBulk)
	r.POST("/bulk/resume", h.ResumeBulk)
	r.POST("/bulk/stop", h.StopBulk)
	r.GET("/bulk/status", h.BulkStatus)
	r.POST("/calls/manual", h.ManualCall)
	r.POST("/calls/terminate/:sid", h.TerminateCall)
	r.GET("/calls/active", h.ActiveCalls)
	r.GET("/call-logs/all", h.CallLogs)
	r.GET("/call-logs/:number", h.CallLogs)
	r.GET("/dashboard", h.DashboardStats)
	r.POST("/messages/send", h.SendMessage)
	r.GET("/messages/filter", h.FilterMessages)
	r.POST("/messages/status", h.MessageStatus)
	r.GET("/audit", h.AuditEvents)

	return &fixture{router: r, engine: eng, gateway: gw, journal: journal, hub: hub}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) send(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

func (f *fixture) upload(t *testing.T, csv string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "numbers.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/bulk/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(t, req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "name,phone\nA,15551112222\nB,+15553334444\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Numbers uploaded", body["message"])
	assert.Equal(t, float64(2), body["total"])

	snap := f.engine.Status()
	assert.Equal(t, []string{"+15551112222", "+15553334444"}, []string{snap.Results[0].Destination, snap.Results[1].Destination})

	w = f.upload(t, "name,city\nA,Paris\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NoValidNumbersFound", decode(t, w)["error"])

	w = f.send(t, http.MethodPost, "/bulk/upload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FileRequired", decode(t, w)["error"])
}

func TestUpload_TruncatedWorkbook(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.upload(t, "number\n+15551112222\n").Code)

	w := f.upload(t, "PK\x03\x04\x14\x00\x06\x00truncated")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UnreadableFile", decode(t, w)["error"])
	assert.Equal(t, 1, f.engine.Status().Total, "a rejected upload keeps the previous list")
}

func TestBulkControlErrors(t *testing.T) {
	f := newFixture(t)

	w := f.send(t, http.MethodPost, "/bulk/start", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NoNumbersUploaded", decode(t, w)["error"])

	w = f.send(t, http.MethodPost, "/bulk/resume", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "NotPaused", body["error"])
	assert.Equal(t, "Bulk calling is not paused", body["message"])

	w = f.send(t, http.MethodPost, "/bulk/start", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkLifecycle(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.upload(t, "number\n+15551112222\n+15553334444\n").Code)

	w := f.send(t, http.MethodPost, "/bulk/start", gin.H{"from": "+15559990000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Bulk calling initialized", decode(t, w)["message"])

	require.Eventually(t, func() bool {
		return f.engine.Status().Results[0].ProviderCallID != ""
	}, 2*time.Second, time.Millisecond)

	w = f.send(t, http.MethodPost, "/bulk/pause", nil)
	assert.Equal(t, "Bulk calling paused", decode(t, w)["message"])

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/bulk/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, true, status["isPaused"])
	assert.Equal(t, float64(0), status["currentIndex"])
	assert.Equal(t, "+15559990000", status["from"])
	results := status["results"].([]any)
	assert.Equal(t, "in-progress", results[0].(map[string]any)["status"])

	w = f.send(t, http.MethodPost, "/bulk/resume", nil)
	assert.Equal(t, "Bulk calling resumed", decode(t, w)["message"])

	w = f.send(t, http.MethodPost, "/bulk/stop", nil)
	assert.Equal(t, "Bulk calling stopped", decode(t, w)["message"])
	assert.True(t, f.engine.Status().IsStopped)

	var actions []string
	for _, e := range f.journal.Events() {
		if e.Type == audit.EventTypeCampaignControl {
			actions = append(actions, e.Message)
		}
	}
	assert.Equal(t, []string{"upload", "start", "pause", "resume", "stop"}, actions)
}

func TestManualCall_DuplicateDestination(t *testing.T) {
	f := newFixture(t)

	w := f.send(t, http.MethodPost, "/calls/manual", gin.H{"to": "+15551112222"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sid := decode(t, w)["sid"].(string)
	assert.True(t, strings.HasPrefix(sid, "CA"))

	w = f.send(t, http.MethodPost, "/calls/manual", gin.H{"to": "+15551112222"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DuplicateCallInProgress", decode(t, w)["error"])

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/calls/active", nil))
	var active []calls.Lock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, sid, active[0].CallID)

	w = f.send(t, http.MethodPost, "/calls/manual", gin.H{"to": "12"})
	assert.Equal(t, "InvalidNumber", decode(t, w)["error"])

	w = f.send(t, http.MethodPost, "/calls/terminate/"+sid, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.send(t, http.MethodPost, "/calls/terminate/CAnope", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "DialRejected", decode(t, w)["error"])
}

func TestCallLogsAndDashboard(t *testing.T) {
	f := newFixture(t)
	_, err := f.gateway.PlaceCall(context.Background(), calls.DialRequest{From: callerID, To: "+15551112222"})
	require.NoError(t, err)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/call-logs/%2B15551112222", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var logs []calls.Call
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var dash reporting.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dash))
	assert.Equal(t, 1, dash.Stats[callerID].Total)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/dashboard?fromDate=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidRequest", decode(t, w)["error"])
}

func TestMessages(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.hub.Subscribe(4)
	defer cancel()

	w := f.send(t, http.MethodPost, "/messages/send", gin.H{"to": "+15551112222", "body": "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])

	w = f.send(t, http.MethodPost, "/messages/send", gin.H{"to": "+15551112222"})
	assert.Equal(t, "MissingFields", decode(t, w)["error"])

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/messages/filter?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/messages/status", strings.NewReader("MessageSid=SM1&MessageStatus=delivered&To=%2B15551112222"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = f.do(t, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Status received", w.Body.String())

	select {
	case ev := <-events:
		assert.Equal(t, fanout.EventMessageStatus, ev.Name)
	case <-time.After(time.Second):
		t.Fatalf("expected message-status event")
	}
}

func TestAuditEvents(t *testing.T) {
	f := newFixture(t)
	f.send(t, http.MethodPost, "/bulk/stop", nil)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/audit?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var evs []audit.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, "admin@example.com", evs[0].Actor)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/audit?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, http.StatusConflict, classify(calls.ErrDuplicateCallInProgress).status)
	assert.Equal(t, "CampaignAlreadyComplete", classify(campaign.ErrCampaignAlreadyComplete).code)
	assert.Equal(t, http.StatusInternalServerError, classify(assert.AnError).status)
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", Root)
	r.GET("/healthz", Healthz(time.Second,
		HealthCheck{Name: "ok", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "db", Check: func(context.Context) error { return assert.AnError }},
	))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OK"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":"ok"`)
}
