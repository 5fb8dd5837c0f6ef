package telephony

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"power-dialer/internal/calls"
)

// SandboxGateway is an in-process provider for local development and tests.
//
// Calls get synthetic sids. With Simulate set, each call walks
// initiated, ringing, in-progress and a final status, posting each step to
// the request's status URL the way the real provider does.
type SandboxGateway struct {
	Numbers []PhoneNumber

	Simulate bool
	Step     time.Duration
	// Outcome picks the final status for a destination. Defaults to completed.
	Outcome func(to string) calls.CallStatus
	HTTP    *http.Client
	Log     *slog.Logger

	mu       sync.Mutex
	calls    []calls.Call
	messages []Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	now func() time.Time
}

func (g *SandboxGateway) init() {
	g.once.Do(func() {
		g.ctx, g.cancel = context.WithCancel(context.Background())
		if g.now == nil {
			g.now = time.Now
		}
		if g.Step <= 0 {
			g.Step = time.Second
		}
		if g.HTTP == nil {
			g.HTTP = &http.Client{Timeout: 10 * time.Second}
		}
		if g.Log == nil {
			g.Log = slog.Default()
		}
	})
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (g *SandboxGateway) PlaceCall(ctx context.Context, req calls.DialRequest) (string, error) {
	g.init()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !calls.ValidNumber(req.To) {
		return "", &DialRejectedError{Code: 21211, Reason: fmt.Sprintf("invalid 'To' phone number: %s", req.To), Status: http.StatusBadRequest}
	}
	if req.From == "" {
		return "", &DialRejectedError{Code: 21212, Reason: "invalid 'From' phone number", Status: http.StatusBadRequest}
	}

	now := g.now().UTC()
	c := calls.Call{
		SID:       "CA" + randomHex(16),
		From:      req.From,
		To:        req.To,
		Status:    calls.CallStatusQueued,
		Direction: "outbound-api",
		StartTime: &now,
	}
	g.mu.Lock()
	g.calls = append(g.calls, c)
	g.mu.Unlock()

	if g.Simulate && req.StatusURL != "" {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.simulate(c, req.StatusURL)
		}()
	}
	return c.SID, nil
}

func (g *SandboxGateway) simulate(c calls.Call, statusURL string) {
	final := calls.CallStatusCompleted
	if g.Outcome != nil {
		final = g.Outcome(c.To)
	}
	steps := []calls.CallStatus{calls.CallStatusInitiated, calls.CallStatusRinging}
	if final == calls.CallStatusCompleted {
		steps = append(steps, calls.CallStatusInProgress)
	}
	steps = append(steps, final)

	for _, st := range steps {
		select {
		case <-g.ctx.Done():
			return
		case <-time.After(g.Step):
		}
		if !g.setStatus(c.SID, st) {
			return
		}
		g.post(statusURL, c, st)
	}
}

// setStatus reports false once the call already ended.
func (g *SandboxGateway) setStatus(sid string, st calls.CallStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.calls {
		if g.calls[i].SID != sid {
			continue
		}
		if g.calls[i].Status.IsTerminal() {
			return false
		}
		g.calls[i].Status = st
		if st.IsTerminal() && g.calls[i].StartTime != nil {
			g.calls[i].DurationSeconds = int(g.now().Sub(*g.calls[i].StartTime) / time.Second)
		}
		return true
	}
	return false
}

func (g *SandboxGateway) post(statusURL string, c calls.Call, st calls.CallStatus) {
	form := url.Values{}
	form.Set("CallSid", c.SID)
	form.Set("CallStatus", string(st))
	form.Set("From", c.From)
	form.Set("To", c.To)
	form.Set("Direction", c.Direction)

	req, err := http.NewRequestWithContext(g.ctx, http.MethodPost, statusURL, strings.NewReader(form.Encode()))
	if err != nil {
		g.Log.Warn("sandbox status callback build failed", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.HTTP.Do(req)
	if err != nil {
		g.Log.Warn("sandbox status callback failed", "sid", c.SID, "status", st, "err", err)
		return
	}
	_ = resp.Body.Close()
}

func (g *SandboxGateway) HangUp(_ context.Context, callID string) error {
	g.init()
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.calls {
		if g.calls[i].SID == callID {
			if !g.calls[i].Status.IsTerminal() {
				g.calls[i].Status = calls.CallStatusCompleted
			}
			return nil
		}
	}
	return &DialRejectedError{Code: 20404, Reason: "call " + callID + " not found", Status: http.StatusNotFound}
}

func (g *SandboxGateway) ListCalls(_ context.Context, f CallFilter) ([]calls.Call, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []calls.Call
	for i := len(g.calls) - 1; i >= 0; i-- {
		c := g.calls[i]
		if f.To != "" && c.To != f.To {
			continue
		}
		if f.From != "" && c.From != f.From {
			continue
		}
		if c.StartTime != nil {
			if f.StartedAfter != nil && c.StartTime.Before(*f.StartedAfter) {
				continue
			}
			if f.StartedBefore != nil && !c.StartTime.Before(*f.StartedBefore) {
				continue
			}
		}
		out = append(out, c)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (g *SandboxGateway) ListNumbers(_ context.Context) ([]PhoneNumber, error) {
	out := append([]PhoneNumber(nil), g.Numbers...)
	sort.Slice(out, func(i, j int) bool { return out[i].PhoneNumber < out[j].PhoneNumber })
	return out, nil
}

func (g *SandboxGateway) SendMessage(_ context.Context, req SendMessageRequest) (Message, error) {
	g.init()
	if !calls.ValidNumber(req.To) {
		return Message{}, &DialRejectedError{Code: 21211, Reason: "invalid 'To' phone number", Status: http.StatusBadRequest}
	}
	now := g.now().UTC()
	m := Message{
		SID:         "SM" + randomHex(16),
		From:        req.From,
		To:          req.To,
		Body:        req.Body,
		Status:      "queued",
		Direction:   "outbound-api",
		DateCreated: &now,
	}
	g.mu.Lock()
	g.messages = append(g.messages, m)
	g.mu.Unlock()
	return m, nil
}

// Receive records an inbound message, as if a customer texted one of our numbers.
func (g *SandboxGateway) Receive(from, to, body string) Message {
	g.init()
	now := g.now().UTC()
	m := Message{
		SID:         "SM" + randomHex(16),
		From:        from,
		To:          to,
		Body:        body,
		Status:      "received",
		Direction:   "inbound",
		DateCreated: &now,
	}
	g.mu.Lock()
	g.messages = append(g.messages, m)
	g.mu.Unlock()
	return m
}

func (g *SandboxGateway) ListMessages(_ context.Context, f MessageFilter) ([]Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Message
	for i := len(g.messages) - 1; i >= 0; i-- {
		m := g.messages[i]
		if f.To != "" && m.To != f.To {
			continue
		}
		if f.From != "" && m.From != f.From {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Close stops simulated callbacks.
func (g *SandboxGateway) Close() {
	g.init()
	g.cancel()
	g.wg.Wait()
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}
