package tradestate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTransitionTable(t *testing.T) {
	cases := []struct {
		name      string
		current   State
		direction string
		label     string
		want      State
	}{
		{"waiting to breakout on long", StateWaiting, "LONG", "Impulse wave 1 forming", StateBreakoutWatch},
		{"waiting to breakout on short", StateWaiting, "SHORT", "zigzag", StateBreakoutWatch},
		{"breakout confirms impulse", StateBreakoutWatch, "LONG", "Impulse wave 3", StateConfirmedImpulse},
		{"breakout confirms impulse case-insensitive", StateBreakoutWatch, "LONG", "IMPULSE leg extension", StateConfirmedImpulse},
		{"breakout confirms correction", StateBreakoutWatch, "SHORT", "flat correction b-wave", StateConfirmedCorrection},
		{"breakout holds without keyword", StateBreakoutWatch, "LONG", "triangle forming", StateBreakoutWatch},
		{"confirmed impulse self loop", StateConfirmedImpulse, "LONG", "wave 5 target", StateConfirmedImpulse},
		{"confirmed correction self loop", StateConfirmedCorrection, "SHORT", "c-wave underway", StateConfirmedCorrection},
		{"invalidated reset returns to waiting", StateInvalidatedReset, "LONG", "fresh setup", StateWaiting},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Next(tc.current, tc.direction, tc.label))
		})
	}
}

func TestHoldReturnsToWaitingFromEveryState(t *testing.T) {
	states := []State{StateWaiting, StateBreakoutWatch, StateConfirmedImpulse, StateConfirmedCorrection, StateInvalidatedReset}
	for _, s := range states {
		assert.Equal(t, StateWaiting, Next(s, "HOLD", "whatever"), "from %s", s)
		assert.Equal(t, StateWaiting, Next(s, "hold", ""), "lowercase hold from %s", s)
	}
}

func TestAdvanceBreakoutConfirmationSequence(t *testing.T) {
	m := NewMachine(5 * time.Second)
	rec := NewRecord("conv1", "BTC/USDT", "4h")

	next, err := m.Advance(&rec, "LONG", "Breakout setup")
	require.NoError(t, err)
	assert.Equal(t, StateBreakoutWatch, next)

	next, err = m.Advance(&rec, "LONG", "Impulse wave 3")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmedImpulse, next)
	assert.Equal(t, "LONG", rec.LastDirection)
	assert.Equal(t, "Impulse wave 3", rec.LastLabel)
	assert.False(t, rec.LastAnalysisAt.IsZero())
}

func TestTransitionRejectsTargetsOutsideTable(t *testing.T) {
	m := NewMachine(0)

	rec := NewRecord("conv1", "BTC/USDT", "4h")
	err := m.Transition(&rec, StateConfirmedImpulse)
	require.Error(t, err, "WAITING cannot jump straight to CONFIRMED_IMPULSE")
	assert.Equal(t, StateWaiting, rec.State, "record untouched on rejection")

	rec.State = StateInvalidatedReset
	err = m.Transition(&rec, StateBreakoutWatch)
	require.Error(t, err)

	err = m.Transition(&rec, State("LIMBO"))
	require.Error(t, err)
}

func TestTransitionIntoInvalidatedResetStampsDeadline(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m := NewMachine(5 * time.Second)
	m.NowFn = func() time.Time { return now }

	rec := NewRecord("conv1", "BTC/USDT", "4h")
	rec.State = StateConfirmedImpulse

	require.NoError(t, m.Transition(&rec, StateInvalidatedReset))
	require.NotNil(t, rec.ResetDeadline)
	assert.Equal(t, now.Add(5*time.Second), *rec.ResetDeadline)

	// Leaving the reset state clears the deadline.
	require.NoError(t, m.Transition(&rec, StateWaiting))
	assert.Nil(t, rec.ResetDeadline)
}

func TestRecoverIfDue(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	deadline := base.Add(5 * time.Second)

	t.Run("before deadline stays put", func(t *testing.T) {
		m := NewMachine(5 * time.Second)
		m.NowFn = func() time.Time { return base.Add(2 * time.Second) }
		rec := NewRecord("c", "BTC/USDT", "4h")
		rec.State = StateInvalidatedReset
		rec.ResetDeadline = &deadline
		assert.False(t, m.RecoverIfDue(&rec))
		assert.Equal(t, StateInvalidatedReset, rec.State)
	})

	t.Run("past deadline recovers to waiting", func(t *testing.T) {
		m := NewMachine(5 * time.Second)
		m.NowFn = func() time.Time { return base.Add(6 * time.Second) }
		rec := NewRecord("c", "BTC/USDT", "4h")
		rec.State = StateInvalidatedReset
		rec.ResetDeadline = &deadline
		assert.True(t, m.RecoverIfDue(&rec))
		assert.Equal(t, StateWaiting, rec.State)
		assert.Nil(t, rec.ResetDeadline)
	})

	t.Run("missing deadline treated as due", func(t *testing.T) {
		m := NewMachine(5 * time.Second)
		rec := NewRecord("c", "BTC/USDT", "4h")
		rec.State = StateInvalidatedReset
		assert.True(t, m.RecoverIfDue(&rec))
		assert.Equal(t, StateWaiting, rec.State)
	})

	t.Run("other states untouched", func(t *testing.T) {
		m := NewMachine(5 * time.Second)
		rec := NewRecord("c", "BTC/USDT", "4h")
		rec.State = StateBreakoutWatch
		assert.False(t, m.RecoverIfDue(&rec))
		assert.Equal(t, StateBreakoutWatch, rec.State)
	})
}

func TestParseState(t *testing.T) {
	s, ok := ParseState(" breakout_watch ")
	require.True(t, ok)
	assert.Equal(t, StateBreakoutWatch, s)

	_, ok = ParseState("LIMBO")
	assert.False(t, ok)
}
