package repos

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisambiguateMiss(t *testing.T) {
	// a readable row means the status condition failed
	require.ErrorIs(t, disambiguateMiss(nil, ErrTaskNotFound, ErrTaskCompleted), ErrTaskCompleted)

	// an absent row stays not-found
	require.ErrorIs(t, disambiguateMiss(ErrTaskNotFound, ErrTaskNotFound, ErrTaskCompleted), ErrTaskNotFound)

	// a transient read error propagates instead of masquerading as not-found
	transient := errors.New("connection reset by peer")
	got := disambiguateMiss(transient, ErrTaskNotFound, ErrTaskCompleted)
	require.ErrorIs(t, got, transient)
	require.NotErrorIs(t, got, ErrTaskNotFound)
	require.NotErrorIs(t, got, ErrTaskCompleted)
}
