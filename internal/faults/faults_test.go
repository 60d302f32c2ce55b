package faults

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := New(InvalidTransition, "stop %d is not IN_PROGRESS", 7)
	wrapped := errors.Wrap(base, "complete stop")

	require.Equal(t, InvalidTransition, KindOf(wrapped))
	require.True(t, Is(wrapped, InvalidTransition))
	require.False(t, Is(wrapped, MissingProof))
}

func TestKindOf_Plain(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(DependencyUnavailable, cause, "osrm table")

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "osrm table")
	require.Contains(t, err.Error(), "refused")
}

func TestRetryable(t *testing.T) {
	require.True(t, DependencyUnavailable.Retryable())
	require.True(t, ConcurrentModification.Retryable())
	require.False(t, InvalidTransition.Retryable())
	require.False(t, MissingProof.Retryable())
	require.False(t, InfeasibleInput.Retryable())
	require.False(t, NotFound.Retryable())
}
