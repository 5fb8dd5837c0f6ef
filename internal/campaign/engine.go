package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"power-dialer/internal/calls"
)

// Dialer places and hangs up provider calls.
type Dialer interface {
	PlaceCall(ctx context.Context, req calls.DialRequest) (string, error)
	HangUp(ctx context.Context, callID string) error
}

// URLs builds the provider callback URLs for a bulk attempt.
type URLs interface {
	ConferenceURL(tag string) string
	StatusURL() string
}

// Publisher receives observational events. Publish must not block.
type Publisher interface {
	Publish(event string, data any)
}

const EventBulkStatus = "bulk-status"

type Options struct {
	// AdvanceDelay separates a terminal status from the next dial.
	AdvanceDelay time.Duration
	// RetryDelay separates a rejected dial from the next one.
	RetryDelay time.Duration
	// AttemptTimeout forces a failed outcome when no terminal status arrives.
	AttemptTimeout time.Duration
	// DialTimeout bounds the call-create, including provider pacing. Gateways
	// whose SDK ignores the context bound the request with their own client timeout.
	DialTimeout time.Duration

	DefaultCallerID string

	// Locks, when set, makes bulk attempts share the manual-call destination guard.
	Locks     calls.LockTable
	Publisher Publisher
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	out := o
	if out.AdvanceDelay <= 0 {
		out.AdvanceDelay = time.Second
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 2 * time.Second
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 15 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Engine walks the campaign list one call at a time.
//
// All campaign reads and writes go through the Store. The engine claims the
// cursor slot under the store lock, places the call from a goroutine without
// holding it, and records the provider sid or the failure afterwards.
type Engine struct {
	store  *Store
	dialer Dialer
	urls   URLs
	opts   Options
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	timers   map[*time.Timer]struct{}
	deadline map[string]*time.Timer

	seq atomic.Uint64
	now func() time.Time
}

func NewEngine(store *Store, dialer Dialer, urls URLs, opts Options) *Engine {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    store,
		dialer:   dialer,
		urls:     urls,
		opts:     opts,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		timers:   map[*time.Timer]struct{}{},
		deadline: map[string]*time.Timer{},
		now:      time.Now,
	}
}

// Upload replaces the campaign with numbers.
func (e *Engine) Upload(numbers []string) Snapshot {
	e.store.Replace(numbers)
	e.cancelDeadlines()
	snap := e.store.Snapshot()
	e.log.Info("campaign uploaded", "total", snap.Total, "generation", snap.Generation)
	e.publish(snap)
	return snap
}

// Start begins dialing from the cursor. The caller id is fixed once the
// campaign has started; a start from Paused keeps the existing one.
func (e *Engine) Start(callerID string) error {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		callerID = e.opts.DefaultCallerID
	}

	var gen uint64
	err := e.store.Update(func(tx *Tx) error {
		if tx.Len() == 0 {
			return ErrNoNumbersUploaded
		}
		if tx.Stopped() {
			return ErrCampaignStopped
		}
		if tx.Cursor() >= tx.Len() {
			return ErrCampaignAlreadyComplete
		}
		if tx.Started() && !tx.Paused() {
			return ErrAlreadyRunning
		}
		if _, busy := tx.InFlight(); busy {
			return ErrCallInFlight
		}
		if !tx.Started() {
			if callerID == "" {
				return ErrCallerIDRequired
			}
			tx.SetCallerID(callerID)
		}
		tx.SetStarted(true)
		tx.SetPaused(false)
		gen = tx.Generation()
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("campaign started", "from", e.store.Snapshot().CallerID, "generation", gen)
	e.dispatchNext(gen)
	return nil
}

// Pause stops new dials. An in-flight call continues.
func (e *Engine) Pause() {
	changed := false
	_ = e.store.Update(func(tx *Tx) error {
		if tx.State() == StateRunning {
			tx.SetPaused(true)
			changed = true
		}
		return nil
	})
	if changed {
		e.log.Info("campaign paused")
		e.publish(e.store.Snapshot())
	}
}

// Resume continues a paused campaign. It dials only when no call is in flight.
func (e *Engine) Resume() error {
	var (
		gen      uint64
		dispatch bool
	)
	err := e.store.Update(func(tx *Tx) error {
		if !tx.Paused() {
			return ErrNotPaused
		}
		tx.SetPaused(false)
		_, busy := tx.InFlight()
		dispatch = !busy
		gen = tx.Generation()
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("campaign resumed", "dispatch", dispatch)
	if dispatch {
		e.dispatchNext(gen)
		return nil
	}
	e.publish(e.store.Snapshot())
	return nil
}

// Stop ends the campaign. An in-flight call runs to completion and its
// terminal status is still recorded.
func (e *Engine) Stop() {
	changed := false
	_ = e.store.Update(func(tx *Tx) error {
		changed = !tx.Stopped() || tx.Paused()
		tx.SetStopped(true)
		tx.SetPaused(false)
		return nil
	})
	if changed {
		e.log.Info("campaign stopped")
		e.publish(e.store.Snapshot())
	}
}

func (e *Engine) Status() Snapshot {
	return e.store.Snapshot()
}

// OnProviderEvent applies a provider status to the attempt holding sid.
// It reports whether the event changed the campaign. Unknown sids, stale and
// duplicate events are ignored.
func (e *Engine) OnProviderEvent(sid string, status calls.CallStatus) bool {
	if sid == "" || status == "" {
		return false
	}

	var (
		out     eventOutcome
		applied bool
		gen     uint64
	)
	_ = e.store.Update(func(tx *Tx) error {
		gen = tx.Generation()
		idx, ok := tx.FindCall(sid)
		if !ok {
			if i, busy := tx.InFlight(); busy {
				if a, _ := tx.Attempt(i); a.ProviderCallID == "" {
					tx.Park(sid, status)
				}
			}
			return nil
		}
		out, applied = e.applyEvent(tx, idx, status)
		return nil
	})
	if !applied {
		e.log.Debug("provider event ignored", "sid", sid, "status", status)
		return false
	}

	e.afterEvent(gen, out)
	return true
}

// Close stops timers and waits for outstanding dials.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for t := range e.timers {
		if t.Stop() {
			e.wg.Done()
		}
		delete(e.timers, t)
	}
	e.deadline = map[string]*time.Timer{}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

type eventOutcome struct {
	terminal bool
	tag      string
	index    int
	attempt  Attempt
}

// applyEvent must run inside a store update.
func (e *Engine) applyEvent(tx *Tx, idx int, status calls.CallStatus) (eventOutcome, bool) {
	a, _ := tx.Attempt(idx)
	if a.Status.Resolved() {
		return eventOutcome{}, false
	}
	if status.Rank() < a.CallStatus.Rank() || (status == a.CallStatus && !status.IsTerminal()) {
		return eventOutcome{}, false
	}

	a.CallStatus = status
	if !status.IsTerminal() {
		if err := tx.SetAttempt(idx, a); err != nil {
			e.log.Error("record provider status failed", "index", idx, "err", err)
			return eventOutcome{}, false
		}
		return eventOutcome{index: idx, attempt: a}, true
	}

	now := e.now()
	a.EndedAt = &now
	if status == calls.CallStatusCompleted {
		a.Status = AttemptSuccess
	} else {
		a.Status = AttemptFailed
		a.ErrorDetail = "call " + string(status)
	}
	if err := tx.SetAttempt(idx, a); err != nil {
		e.log.Error("record terminal status failed", "index", idx, "err", err)
		return eventOutcome{}, false
	}
	if err := tx.Advance(max(tx.Cursor(), idx+1)); err != nil {
		e.log.Error("advance cursor failed", "index", idx, "err", err)
	}
	return eventOutcome{terminal: true, tag: a.ConferenceTag, index: idx, attempt: a}, true
}

func (e *Engine) afterEvent(gen uint64, out eventOutcome) {
	snap := e.store.Snapshot()
	e.publish(snap)
	if !out.terminal {
		return
	}
	e.cancelDeadline(out.tag)
	e.log.Info("attempt finished",
		"index", out.index,
		"to", out.attempt.Destination,
		"sid", out.attempt.ProviderCallID,
		"status", out.attempt.Status,
		"call_status", out.attempt.CallStatus,
	)
	e.schedule(gen, e.opts.AdvanceDelay)
}

type dialJob struct {
	gen      uint64
	index    int
	dest     string
	tag      string
	callerID string
}

var errNoDispatch = errors.New("campaign: nothing to dispatch")

// dispatchNext claims the cursor slot and dials it. It is a no-op when the
// campaign is stopped, paused, finished, replaced or already has a call in flight.
func (e *Engine) dispatchNext(gen uint64) {
	if e.ctx.Err() != nil {
		return
	}

	var job dialJob
	err := e.store.Update(func(tx *Tx) error {
		if tx.Generation() != gen || !tx.Started() || tx.Stopped() || tx.Paused() {
			return errNoDispatch
		}
		i := tx.Cursor()
		if i >= tx.Len() {
			return errNoDispatch
		}
		if _, busy := tx.InFlight(); busy {
			return errNoDispatch
		}

		a, _ := tx.Attempt(i)
		now := e.now()
		a = Attempt{
			Destination:   a.Destination,
			Status:        AttemptInProgress,
			ConferenceTag: e.newConferenceTag(a.Destination, now),
			StartedAt:     &now,
		}
		if err := tx.SetAttempt(i, a); err != nil {
			return err
		}
		tx.ClearParked()
		job = dialJob{gen: gen, index: i, dest: a.Destination, tag: a.ConferenceTag, callerID: tx.CallerID()}
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNoDispatch) {
			e.log.Error("claim attempt failed", "err", err)
		}
		e.publish(e.store.Snapshot())
		return
	}

	e.publish(e.store.Snapshot())
	e.armDeadline(job)
	e.goSafe("dial", func() { e.dial(job) })
}

func (e *Engine) dial(job dialJob) {
	log := e.log.With("index", job.index, "to", job.dest, "conference", job.tag)

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.DialTimeout)
	defer cancel()

	var token string
	if e.opts.Locks != nil {
		t, err := e.opts.Locks.Reserve(ctx, job.dest)
		if err != nil {
			log.Warn("destination busy, skipping", "err", err)
			e.failDial(job, fmt.Sprintf("destination lock: %v", err))
			return
		}
		token = t
	}

	sid, err := e.dialer.PlaceCall(ctx, calls.DialRequest{
		From:         job.callerID,
		To:           job.dest,
		AnswerURL:    e.urls.ConferenceURL(job.tag),
		StatusURL:    e.urls.StatusURL(),
		StatusEvents: calls.StatusCallbackEvents,
	})
	if err != nil {
		log.Warn("dial failed", "err", err)
		e.releaseToken(job.dest, token)
		e.failDial(job, err.Error())
		return
	}

	if e.opts.Locks != nil {
		switch err := e.opts.Locks.Bind(e.ctx, job.dest, token, sid); {
		case errors.Is(err, calls.ErrCallEnded):
			log.Debug("call ended before lock bind", "sid", sid)
		case err != nil:
			log.Warn("bind destination lock failed", "sid", sid, "err", err)
			e.releaseToken(job.dest, token)
		}
	}
	e.recordDialed(job, sid)
}

// recordDialed stores sid on the claimed attempt and replays parked events.
func (e *Engine) recordDialed(job dialJob, sid string) {
	var (
		out      eventOutcome
		applied  bool
		timedOut bool
	)
	err := e.store.Update(func(tx *Tx) error {
		if tx.Generation() != job.gen {
			return errNoDispatch
		}
		a, _ := tx.Attempt(job.index)
		if a.ConferenceTag != job.tag {
			return errNoDispatch
		}
		if a.Status != AttemptInProgress {
			timedOut = true
			return errNoDispatch
		}
		a.ProviderCallID = sid
		if err := tx.SetAttempt(job.index, a); err != nil {
			return err
		}
		for _, st := range tx.TakeParked(sid) {
			if o, ok := e.applyEvent(tx, job.index, st); ok {
				out, applied = o, true
			}
		}
		return nil
	})

	switch {
	case timedOut:
		e.log.Warn("call accepted after attempt timed out, hanging up", "sid", sid, "to", job.dest)
		e.abandon(sid)
		return
	case errors.Is(err, errNoDispatch):
		e.log.Info("call accepted for a replaced campaign", "sid", sid, "to", job.dest)
		return
	case err != nil:
		e.log.Error("record dialed call failed", "sid", sid, "err", err)
		return
	}

	e.log.Info("call placed", "index", job.index, "to", job.dest, "sid", sid)
	if applied {
		e.afterEvent(job.gen, out)
		return
	}
	e.publish(e.store.Snapshot())
}

// failDial records a synchronous dial failure and moves on after RetryDelay.
func (e *Engine) failDial(job dialJob, detail string) {
	if _, ok := e.resolveFailed(job, detail); ok {
		e.cancelDeadline(job.tag)
		e.publish(e.store.Snapshot())
		e.schedule(job.gen, e.opts.RetryDelay)
	}
}

// expire runs when an attempt produced no terminal status in time.
func (e *Engine) expire(job dialJob) {
	e.mu.Lock()
	delete(e.deadline, job.tag)
	e.mu.Unlock()

	a, ok := e.resolveFailed(job, fmt.Sprintf("no final call status within %s", e.opts.AttemptTimeout))
	if !ok {
		return
	}
	e.log.Warn("attempt timed out", "index", job.index, "to", job.dest, "sid", a.ProviderCallID)
	e.publish(e.store.Snapshot())
	if a.ProviderCallID != "" {
		e.abandon(a.ProviderCallID)
	}
	e.schedule(job.gen, e.opts.AdvanceDelay)
}

// resolveFailed fails the claimed attempt of job if it is still in flight.
func (e *Engine) resolveFailed(job dialJob, detail string) (Attempt, bool) {
	var (
		out Attempt
		ok  bool
	)
	err := e.store.Update(func(tx *Tx) error {
		if tx.Generation() != job.gen {
			return nil
		}
		a, _ := tx.Attempt(job.index)
		if a.ConferenceTag != job.tag || a.Status != AttemptInProgress {
			return nil
		}
		now := e.now()
		a.Status = AttemptFailed
		a.CallStatus = calls.CallStatusFailed
		a.ErrorDetail = detail
		a.EndedAt = &now
		if err := tx.SetAttempt(job.index, a); err != nil {
			return err
		}
		out, ok = a, true
		return tx.Advance(max(tx.Cursor(), job.index+1))
	})
	if err != nil {
		e.log.Error("record failed attempt", "index", job.index, "err", err)
	}
	return out, ok
}

// abandon hangs up sid and frees its destination, best effort.
func (e *Engine) abandon(sid string) {
	e.goSafe("hangup", func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), e.opts.DialTimeout)
		defer cancel()
		if err := e.dialer.HangUp(ctx, sid); err != nil {
			e.log.Warn("hang up abandoned call failed", "sid", sid, "err", err)
		}
		if e.opts.Locks != nil {
			if _, _, err := e.opts.Locks.ReleaseCall(ctx, sid); err != nil {
				e.log.Warn("release abandoned call lock failed", "sid", sid, "err", err)
			}
		}
	})
}

func (e *Engine) releaseToken(dest, token string) {
	if e.opts.Locks == nil || token == "" {
		return
	}
	if err := e.opts.Locks.Release(context.WithoutCancel(e.ctx), dest, token); err != nil {
		e.log.Warn("release destination lock failed", "to", dest, "err", err)
	}
}

func (e *Engine) newConferenceTag(dest string, now time.Time) string {
	digits := strings.TrimPrefix(dest, "+")
	return fmt.Sprintf("bulk-%s-%d-%d", digits, now.UnixNano(), e.seq.Add(1))
}

func (e *Engine) publish(snap Snapshot) {
	if e.opts.Publisher != nil {
		e.opts.Publisher.Publish(EventBulkStatus, snap)
	}
}

// schedule calls dispatchNext(gen) after d.
func (e *Engine) schedule(gen uint64, d time.Duration) {
	e.after(d, "dispatch", func() { e.dispatchNext(gen) })
}

func (e *Engine) armDeadline(job dialJob) {
	if e.opts.AttemptTimeout <= 0 {
		return
	}
	t := e.after(e.opts.AttemptTimeout, "attempt timeout", func() { e.expire(job) })
	if t == nil {
		return
	}
	e.mu.Lock()
	// A timer that already fired has left e.timers and must not be recorded.
	if _, live := e.timers[t]; live {
		e.deadline[job.tag] = t
	}
	e.mu.Unlock()
}

func (e *Engine) cancelDeadline(tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.deadline[tag]
	if !ok {
		return
	}
	delete(e.deadline, tag)
	e.stopLocked(t)
}

func (e *Engine) cancelDeadlines() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for tag, t := range e.deadline {
		delete(e.deadline, tag)
		e.stopLocked(t)
	}
}

func (e *Engine) stopLocked(t *time.Timer) {
	if _, tracked := e.timers[t]; tracked && t.Stop() {
		delete(e.timers, t)
		e.wg.Done()
	}
}

// after runs fn once after d, tracked by Close. It returns nil once closed.
func (e *Engine) after(d time.Duration, name string, fn func()) *time.Timer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		defer e.wg.Done()
		e.mu.Lock()
		delete(e.timers, t)
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return
		}
		e.runSafe(name, fn)
	})
	e.timers[t] = struct{}{}
	return t
}

func (e *Engine) goSafe(name string, fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.runSafe(name, fn)
	}()
}

func (e *Engine) runSafe(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("campaign task panicked", "task", name, "panic", r)
		}
	}()
	fn()
}
