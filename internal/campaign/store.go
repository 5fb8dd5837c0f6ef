package campaign

import (
	"errors"
	"fmt"
	"sync"

	"power-dialer/internal/calls"
)

var (
	ErrIndexOutOfRange     = errors.New("campaign: attempt index out of range")
	ErrCursorOutOfRange    = errors.New("campaign: cursor beyond number list")
	ErrCursorRegression    = errors.New("campaign: cursor cannot move backwards")
	ErrPendingBehindCursor = errors.New("campaign: attempts behind the cursor must be resolved")
	ErrSlotBusy            = errors.New("campaign: another attempt is already in progress")
	ErrDestinationMismatch = errors.New("campaign: attempt destination does not match number list")
)

const maxParked = 32

// Store is the single campaign record. Every read and mutation happens under
// its mutex; mutations go through Tx, which enforces the record invariants.
type Store struct {
	mu sync.Mutex

	gen      uint64
	numbers  []string
	results  []Attempt
	cursor   int
	paused   bool
	stopped  bool
	started  bool
	callerID string

	bySID map[string]int
	// parked holds events for sids not yet recorded while a dial is outstanding.
	parked map[string][]calls.CallStatus
}

func NewStore() *Store {
	return &Store{bySID: map[string]int{}, parked: map[string][]calls.CallStatus{}}
}

// Replace installs a fresh number list with every attempt pending and returns its generation.
func (s *Store) Replace(numbers []string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.numbers = append([]string(nil), numbers...)
	s.results = make([]Attempt, len(numbers))
	for i, n := range s.numbers {
		s.results[i] = Attempt{Destination: n, Status: AttemptPending}
	}
	s.cursor = 0
	s.paused, s.stopped, s.started = false, false, false
	s.callerID = ""
	s.bySID = map[string]int{}
	s.parked = map[string][]calls.CallStatus{}
	return s.gen
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		State:      s.stateLocked(),
		CallerID:   s.callerID,
		Total:      len(s.numbers),
		Cursor:     s.cursor,
		IsPaused:   s.paused,
		IsStopped:  s.stopped,
		Results:    append([]Attempt(nil), s.results...),
		Generation: s.gen,
	}
}

// Update runs fn with exclusive access. Changes made before fn returns an
// error are kept; Tx rejects each invalid change individually.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

func (s *Store) stateLocked() State {
	switch {
	case len(s.numbers) == 0:
		return StateIdle
	case s.stopped:
		return StateStopped
	case s.cursor >= len(s.numbers):
		return StateCompleted
	case s.paused:
		return StatePaused
	case s.started:
		return StateRunning
	default:
		return StateReady
	}
}

// Tx is a locked view of the store, valid only inside Update.
type Tx struct {
	s *Store
}

func (tx *Tx) Generation() uint64 { return tx.s.gen }
func (tx *Tx) Len() int { return len(tx.s.numbers) }
func (tx *Tx) Cursor() int { return tx.s.cursor }
func (tx *Tx) State() State { return tx.s.stateLocked() }
func (tx *Tx) Paused() bool { return tx.s.paused }
func (tx *Tx) Stopped() bool { return tx.s.stopped }
func (tx *Tx) Started() bool { return tx.s.started }
func (tx *Tx) CallerID() string { return tx.s.callerID }

func (tx *Tx) SetPaused(v bool) { tx.s.paused = v }
func (tx *Tx) SetStopped(v bool) { tx.s.stopped = v }
func (tx *Tx) SetStarted(v bool) { tx.s.started = v }
func (tx *Tx) SetCallerID(from string) { tx.s.callerID = from }

func (tx *Tx) Attempt(i int) (Attempt, bool) {
	if i < 0 || i >= len(tx.s.results) {
		return Attempt{}, false
	}
	return tx.s.results[i], true
}

// InFlight returns the index of the in-progress attempt, if any.
func (tx *Tx) InFlight() (int, bool) {
	for i, a := range tx.s.results {
		if a.Status == AttemptInProgress {
			return i, true
		}
	}
	return -1, false
}

// SetAttempt replaces results[i].
func (tx *Tx) SetAttempt(i int, a Attempt) error {
	s := tx.s
	if i < 0 || i >= len(s.results) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if a.Destination != s.numbers[i] {
		return ErrDestinationMismatch
	}
	if a.Status == AttemptPending && i < s.cursor {
		return ErrPendingBehindCursor
	}
	if a.Status == AttemptInProgress {
		if j, busy := tx.InFlight(); busy && j != i {
			return ErrSlotBusy
		}
	}

	prev := s.results[i]
	if prev.ProviderCallID != "" && prev.ProviderCallID != a.ProviderCallID {
		delete(s.bySID, prev.ProviderCallID)
	}
	if a.ProviderCallID != "" {
		s.bySID[a.ProviderCallID] = i
	}
	s.results[i] = a
	return nil
}

// Advance moves the cursor forward to "to". The cursor never decreases and
// never passes len(numbers); every attempt it passes must be resolved.
func (tx *Tx) Advance(to int) error {
	s := tx.s
	if to < s.cursor {
		return ErrCursorRegression
	}
	if to > len(s.numbers) {
		return ErrCursorOutOfRange
	}
	for i := s.cursor; i < to; i++ {
		if !s.results[i].Status.Resolved() {
			return ErrPendingBehindCursor
		}
	}
	s.cursor = to
	return nil
}

// FindCall matches an attempt by provider call id.
func (tx *Tx) FindCall(sid string) (int, bool) {
	i, ok := tx.s.bySID[sid]
	return i, ok
}

// Park keeps an event for a sid the store has not seen yet.
func (tx *Tx) Park(sid string, status calls.CallStatus) {
	s := tx.s
	if _, ok := s.parked[sid]; !ok && len(s.parked) >= maxParked {
		return
	}
	s.parked[sid] = append(s.parked[sid], status)
}

// TakeParked returns and forgets the events parked for sid, oldest first.
func (tx *Tx) TakeParked(sid string) []calls.CallStatus {
	evs := tx.s.parked[sid]
	delete(tx.s.parked, sid)
	return evs
}

// ClearParked drops every parked event.
func (tx *Tx) ClearParked() {
	tx.s.parked = map[string][]calls.CallStatus{}
}
