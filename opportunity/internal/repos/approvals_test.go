package repos

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisambiguateMiss(t *testing.T) {
	// a readable row means the status condition failed
	require.ErrorIs(t, disambiguateMiss(nil, ErrApprovalNotFound, ErrApprovalNotPending), ErrApprovalNotPending)

	// an absent row stays not-found
	require.ErrorIs(t, disambiguateMiss(ErrApprovalNotFound, ErrApprovalNotFound, ErrApprovalNotPending), ErrApprovalNotFound)

	// a transient read error propagates instead of masquerading as not-found
	transient := errors.New("connection reset by peer")
	got := disambiguateMiss(transient, ErrApprovalNotFound, ErrApprovalNotPending)
	require.ErrorIs(t, got, transient)
	require.NotErrorIs(t, got, ErrApprovalNotFound)
	require.NotErrorIs(t, got, ErrApprovalNotPending)
}
