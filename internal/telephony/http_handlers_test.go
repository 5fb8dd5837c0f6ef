package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (p *capturePublisher) Publish(event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.data = append(p.data, data)
}

func twimlRouter(h TwiMLHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any(PathConnect, h.Connect)
	r.Any(PathBridge, h.Bridge)
	r.Any(PathConference, h.Conference)
	r.Any(PathVoice, h.Voice)
	r.Any(PathIncoming, h.Incoming)
	return r
}

func serve(t *testing.T, r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConnect_DialsCustomerWithConfiguredCallerID(t *testing.T) {
	r := twimlRouter(TwiMLHandler{ConnectCallerID: "+15550000000"})
	w := serve(t, r, formRequest(PathConnect+"?customerNumber=%2B15551112222", "CallSid=CA1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `callerId="+15550000000"`) || !strings.Contains(body, "<Number>+15551112222</Number>") {
		t.Fatalf("unexpected twiml: %s", body)
	}
}

func TestConnect_InvalidNumberSpeaksAndReturns200(t *testing.T) {
	r := twimlRouter(TwiMLHandler{})
	w := serve(t, r, httptest.NewRequest(http.MethodGet, PathConnect+"?customerNumber=123", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Say>Missing or invalid customer number</Say>") {
		t.Fatalf("unexpected twiml: %s", w.Body.String())
	}
}

func TestBridge_InvalidNumberIs400(t *testing.T) {
	r := twimlRouter(TwiMLHandler{})
	w := serve(t, r, httptest.NewRequest(http.MethodGet, PathBridge+"?customerNumber=abc", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid customer number.") {
		t.Fatalf("unexpected twiml: %s", w.Body.String())
	}

	w = serve(t, r, httptest.NewRequest(http.MethodGet, PathBridge+"?customerNumber=%2B15551112222", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<Number>+15551112222</Number>") {
		t.Fatalf("expected dial, got %d %s", w.Code, w.Body.String())
	}
}

func TestConference_JoinsTaggedRoom(t *testing.T) {
	r := twimlRouter(TwiMLHandler{})
	w := serve(t, r, formRequest(PathConference+"?conference=bulk-15551112222-1-1", "CallSid=CA1"))

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), ">bulk-15551112222-1-1</Conference>") {
		t.Fatalf("unexpected response: %d %s", w.Code, w.Body.String())
	}

	w = serve(t, r, formRequest(PathConference, "CallSid=CA1"))
	if !strings.Contains(w.Body.String(), "<Hangup></Hangup>") {
		t.Fatalf("expected hangup without a conference, got %s", w.Body.String())
	}
}

func TestVoice_PrefersConferenceThenDialsTo(t *testing.T) {
	r := twimlRouter(TwiMLHandler{ConnectCallerID: "+15550000000"})

	w := serve(t, r, formRequest(PathVoice, "conference=bulk-1&To=%2B15551112222"))
	if !strings.Contains(w.Body.String(), ">bulk-1</Conference>") {
		t.Fatalf("expected conference join, got %s", w.Body.String())
	}

	w = serve(t, r, formRequest(PathVoice, "To=%2B15551112222&callerId=%2B15559999999"))
	body := w.Body.String()
	if !strings.Contains(body, `callerId="+15559999999"`) || !strings.Contains(body, "<Number>+15551112222</Number>") {
		t.Fatalf("expected dial with requested caller id, got %s", body)
	}

	w = serve(t, r, formRequest(PathVoice, "To=%2B15551112222"))
	if !strings.Contains(w.Body.String(), `callerId="+15550000000"`) {
		t.Fatalf("expected default caller id, got %s", w.Body.String())
	}
}

func TestIncoming_PublishesAndHolds(t *testing.T) {
	pub := &capturePublisher{}
	r := twimlRouter(TwiMLHandler{Publisher: pub})
	w := serve(t, r, formRequest(PathIncoming, "CallSid=CA7&From=%2B15551112222&To=%2B15550000000"))

	if !strings.Contains(w.Body.String(), "Thank you for calling. Please hold.") {
		t.Fatalf("unexpected twiml: %s", w.Body.String())
	}
	if len(pub.events) != 1 || pub.events[0] != "incoming-call" {
		t.Fatalf("expected incoming-call event, got %v", pub.events)
	}
	data := pub.data[0].(gin.H)
	if data["sid"] != "CA7" || data["from"] != "+15551112222" {
		t.Fatalf("unexpected event data: %v", data)
	}
}

func TestTokenHandler_DisabledWithoutCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/token", TokenHandler{}.Issue)

	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/token", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestTokenHandler_IssuesForIdentity(t *testing.T) {
	tokens, err := NewVoiceTokens(VoiceTokenConfig{AccountSID: "AC1", APIKey: "SK1", APISecret: "secret", TwiMLAppSID: "AP1"})
	if err != nil {
		t.Fatalf("new voice tokens: %v", err)
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/token", TokenHandler{Tokens: tokens, Identity: func(*gin.Context) string { return "agent@example.com" }}.Issue)

	w := serve(t, r, httptest.NewRequest(http.MethodGet, "/token", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"identity":"agent_example_com"`) || !strings.Contains(w.Body.String(), `"token":"ey`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
