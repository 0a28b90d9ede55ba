package listquery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

func TestReadyDistinguishesEmptyStates(t *testing.T) {
	st := NewState(20)
	p := Reconcile(st.Page, nil, 0)

	unfiltered := Ready[int](nil, p, st, Capabilities{})
	assert.Equal(t, StateEmpty, unfiltered.State)
	assert.Equal(t, MessageNothingYet, unfiltered.Message)
	assert.NotNil(t, unfiltered.Rows)

	st.SetFilter("status", "archived")
	filtered := Ready[int]([]int{}, p, st, Capabilities{})
	assert.Equal(t, StateEmpty, filtered.State)
	assert.Equal(t, MessageNoMatches, filtered.Message)
	assert.True(t, filtered.Filtered)
}

func TestReadySearchTermCountsAsNarrowing(t *testing.T) {
	st := NewState(20)
	st.Search = "zzzz"
	v := Ready[int](nil, Reconcile(st.Page, nil, 0), st, Capabilities{})

	assert.Equal(t, StateEmpty, v.State)
	assert.True(t, v.Filtered)
	assert.Equal(t, MessageNoMatches, v.Message)

	st.ClearFilters()
	assert.False(t, st.Narrowed())
}

func TestReadyWithRows(t *testing.T) {
	st := NewState(2)
	p := Reconcile(st.Page, nil, 5)
	v := Ready([]int{1, 2}, p, st, Capabilities{CanView: true})

	assert.Equal(t, StateReady, v.State)
	assert.Empty(t, v.Message)
	assert.Len(t, v.Window, 3)
	assert.True(t, v.Capabilities.CanView)
}

func TestFailedClassifiesErrors(t *testing.T) {
	st := NewState(20)

	network := Failed[int](fmt.Errorf("fetch: %w", appErrors.ErrUpstreamUnavailable), st, Capabilities{})
	assert.Equal(t, StateError, network.State)
	assert.True(t, network.Retryable)
	assert.NotEqual(t, StateEmpty, network.State)

	forbidden := Failed[int](appErrors.ErrForbidden, st, Capabilities{})
	assert.Equal(t, StateForbidden, forbidden.State)
	assert.False(t, forbidden.Retryable)

	invalid := Failed[int](appErrors.WithDetails(appErrors.ErrValidation, map[string][]string{"title": {"required"}}), st, Capabilities{})
	assert.Equal(t, StateError, invalid.State)
	assert.False(t, invalid.Retryable)
	assert.Equal(t, "VALIDATION_ERROR", invalid.Code)
	assert.NotNil(t, invalid.Details)
}
