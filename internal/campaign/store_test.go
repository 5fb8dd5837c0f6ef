package campaign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReplaceAlignsResults(t *testing.T) {
	s := NewStore()
	numbers := []string{"+15551112222", "+15553334444", "+15551112222"}
	gen := s.Replace(numbers)

	snap := s.Snapshot()
	assert.Equal(t, gen, snap.Generation)
	assert.Equal(t, StateReady, snap.State)
	require.Len(t, snap.Results, len(numbers))
	for i, a := range snap.Results {
		assert.Equal(t, numbers[i], a.Destination)
		assert.Equal(t, AttemptPending, a.Status)
	}

	numbers[0] = "mutated"
	assert.Equal(t, "+15551112222", s.Snapshot().Results[0].Destination)

	next := s.Replace([]string{"+15559990000"})
	assert.Greater(t, next, gen)
	assert.Equal(t, 1, s.Snapshot().Total)
}

func TestStore_EmptyIsIdle(t *testing.T) {
	s := NewStore()
	assert.Equal(t, StateIdle, s.Snapshot().State)
	s.Replace(nil)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestStore_AdvanceInvariants(t *testing.T) {
	s := NewStore()
	s.Replace([]string{"+15551112222", "+15553334444"})

	err := s.Update(func(tx *Tx) error {
		require.ErrorIs(t, tx.Advance(1), ErrPendingBehindCursor)

		a, _ := tx.Attempt(0)
		a.Status = AttemptFailed
		require.NoError(t, tx.SetAttempt(0, a))
		require.NoError(t, tx.Advance(1))

		require.ErrorIs(t, tx.Advance(0), ErrCursorRegression)
		require.ErrorIs(t, tx.Advance(3), ErrCursorOutOfRange)

		a.Status = AttemptPending
		require.ErrorIs(t, tx.SetAttempt(0, a), ErrPendingBehindCursor)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Snapshot().Cursor)
}

func TestStore_SetAttemptSingleFlight(t *testing.T) {
	s := NewStore()
	s.Replace([]string{"+15551112222", "+15553334444"})

	_ = s.Update(func(tx *Tx) error {
		require.NoError(t, tx.SetAttempt(0, Attempt{Destination: "+15551112222", Status: AttemptInProgress}))
		require.ErrorIs(t, tx.SetAttempt(1, Attempt{Destination: "+15553334444", Status: AttemptInProgress}), ErrSlotBusy)
		require.ErrorIs(t, tx.SetAttempt(1, Attempt{Destination: "+10000000000", Status: AttemptPending}), ErrDestinationMismatch)
		require.ErrorIs(t, tx.SetAttempt(5, Attempt{}), ErrIndexOutOfRange)

		i, busy := tx.InFlight()
		assert.True(t, busy)
		assert.Equal(t, 0, i)
		return nil
	})
}

func TestStore_FindCallFollowsSID(t *testing.T) {
	s := NewStore()
	s.Replace([]string{"+15551112222"})

	_ = s.Update(func(tx *Tx) error {
		require.NoError(t, tx.SetAttempt(0, Attempt{Destination: "+15551112222", Status: AttemptInProgress, ProviderCallID: "CA1"}))
		i, ok := tx.FindCall("CA1")
		assert.True(t, ok)
		assert.Equal(t, 0, i)
		return nil
	})

	s.Replace([]string{"+15551112222"})
	_ = s.Update(func(tx *Tx) error {
		_, ok := tx.FindCall("CA1")
		assert.False(t, ok, "sids from a replaced list must not match")
		return nil
	})
}

func TestStore_ParkIsBounded(t *testing.T) {
	s := NewStore()
	s.Replace([]string{"+15551112222"})

	_ = s.Update(func(tx *Tx) error {
		for i := 0; i < maxParked+10; i++ {
			tx.Park(string(rune('a'+i%26))+string(rune('A'+i/26)), "ringing")
		}
		assert.Len(t, tx.s.parked, maxParked)

		tx.Park("CA1", "ringing")
		assert.Empty(t, tx.TakeParked("CA1"))
		return nil
	})
}
